// Package worker serializes event handling per room. Each active room gets
// one goroutine draining a bounded queue; different rooms run concurrently.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tabletop-agent/internal/agent"
)

const (
	DefaultQueueSize   = 32
	DefaultIdleTimeout = 5 * time.Minute
)

var (
	// ErrQueueFull is returned when a room already has QueueSize events waiting
	ErrQueueFull = errors.New("worker: room queue is full")
	// ErrShuttingDown is returned by Submit after Shutdown has started
	ErrShuttingDown = errors.New("worker: manager is shutting down")
)

// Config sizes the room workers
type Config struct {
	QueueSize int
	// IdleTimeout stops a room worker after this long without events; zero keeps it forever
	IdleTimeout time.Duration
}

// Manager owns the room workers
type Manager struct {
	handler     agent.Handler
	workers     map[string]*roomWorker
	mu          sync.RWMutex
	queueSize   int
	idleTimeout time.Duration
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
}

// NewManager creates a manager that hands every event to handler
func NewManager(handler agent.Handler, cfg Config, logger *zap.Logger) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		handler:     handler,
		workers:     make(map[string]*roomWorker),
		queueSize:   cfg.QueueSize,
		idleTimeout: cfg.IdleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("worker"),
	}
}

// Submit queues ev on its room's worker, starting the worker if needed
func (m *Manager) Submit(ev agent.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrShuttingDown
	}

	w, exists := m.workers[ev.RoomID]
	if !exists {
		w = newRoomWorker(m.ctx, ev.RoomID, m.queueSize, m.idleTimeout, m.handler, m.retire, m.logger)
		w.Start()
		m.workers[ev.RoomID] = w
		m.logger.Info("Worker started", zap.String("room_id", ev.RoomID))
	}

	select {
	case w.queue <- ev:
		return nil
	default:
		m.logger.Warn("Queue full, event dropped", zap.String("room_id", ev.RoomID), zap.String("event_id", ev.ID))
		return ErrQueueFull
	}
}

// retire removes an idle worker. It refuses when events arrived meanwhile.
func (m *Manager) retire(w *roomWorker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(w.queue) > 0 {
		return false
	}
	if current, ok := m.workers[w.roomID]; ok && current == w {
		delete(m.workers, w.roomID)
	}
	m.logger.Info("Worker retired", zap.String("room_id", w.roomID))
	return true
}

// StopWorker stops the room's worker, dropping queued events
func (m *Manager) StopWorker(roomID string) {
	m.mu.Lock()
	w, exists := m.workers[roomID]
	delete(m.workers, roomID)
	m.mu.Unlock()

	if !exists {
		return
	}
	w.Stop()
	m.logger.Info("Worker stopped", zap.String("room_id", roomID))
}

// Shutdown stops accepting events, cancels in-flight handlers and waits for
// every worker to exit or ctx to end
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down...")

	m.mu.Lock()
	m.closed = true
	workers := make([]*roomWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*roomWorker)
	m.mu.Unlock()

	m.cancel()

	var group errgroup.Group
	for _, w := range workers {
		group.Go(func() error {
			w.Stop()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		group.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Shutdown complete", zap.Int("stopped_count", len(workers)))
		return nil
	case <-ctx.Done():
		m.logger.Warn("Shutdown timed out", zap.Int("worker_count", len(workers)))
		return ctx.Err()
	}
}

// WorkerCount returns the number of active room workers
func (m *Manager) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// HasWorker reports whether the room has an active worker
func (m *Manager) HasWorker(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.workers[roomID]
	return exists
}
