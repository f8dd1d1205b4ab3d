package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tabletop-agent/internal/agent"
)

// roomWorker handles one room's events in arrival order
type roomWorker struct {
	roomID      string
	queue       chan agent.Event
	handler     agent.Handler
	idleTimeout time.Duration
	retire      func(*roomWorker) bool
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRoomWorker(
	parentCtx context.Context,
	roomID string,
	queueSize int,
	idleTimeout time.Duration,
	handler agent.Handler,
	retire func(*roomWorker) bool,
	logger *zap.Logger,
) *roomWorker {
	ctx, cancel := context.WithCancel(parentCtx)
	return &roomWorker{
		roomID:      roomID,
		queue:       make(chan agent.Event, queueSize),
		handler:     handler,
		idleTimeout: idleTimeout,
		retire:      retire,
		logger:      logger.With(zap.String("room_id", roomID)),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutine
func (w *roomWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop cancels the worker and waits for it to exit
func (w *roomWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *roomWorker) run() {
	defer w.wg.Done()
	defer w.cancel()

	var idle <-chan time.Time
	var timer *time.Timer
	if w.idleTimeout > 0 {
		timer = time.NewTimer(w.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-w.queue:
			w.handle(ev)
			if timer != nil {
				timer.Reset(w.idleTimeout)
			}
		case <-idle:
			if w.retire(w) {
				return
			}
			timer.Reset(w.idleTimeout)
		}
	}
}

func (w *roomWorker) handle(ev agent.Event) {
	start := time.Now()
	if err := w.handler.Handle(w.ctx, ev); err != nil {
		w.logger.Debug("Event failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	w.logger.Debug("Event handled", zap.String("event_id", ev.ID), zap.Duration("elapsed", time.Since(start)))
}
