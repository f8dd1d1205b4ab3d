package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tabletop-agent/internal/agent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingHandler struct {
	mu      sync.Mutex
	handled map[string][]string
	block   map[string]chan struct{}
	started chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		handled: make(map[string][]string),
		block:   make(map[string]chan struct{}),
		started: make(chan string, 100),
	}
}

func (h *recordingHandler) Handle(ctx context.Context, ev agent.Event) error {
	h.started <- ev.ID

	h.mu.Lock()
	gate := h.block[ev.RoomID]
	h.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled[ev.RoomID] = append(h.handled[ev.RoomID], ev.ID)
	return nil
}

func (h *recordingHandler) blockRoom(roomID string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	gate := make(chan struct{})
	h.block[roomID] = gate
	return gate
}

func (h *recordingHandler) events(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled[roomID]...)
}

func shutdown(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}

func TestManager_PreservesOrderWithinRoom(t *testing.T) {
	handler := newRecordingHandler()
	m := NewManager(handler, Config{QueueSize: 100}, nil)
	defer shutdown(t, m)

	want := []string{"e1", "e2", "e3", "e4", "e5"}
	for _, id := range want {
		require.NoError(t, m.Submit(agent.Event{ID: id, RoomID: "room-a"}))
	}

	require.Eventually(t, func() bool { return len(handler.events("room-a")) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, handler.events("room-a"))
	assert.Equal(t, 1, m.WorkerCount())
	assert.True(t, m.HasWorker("room-a"))
}

func TestManager_RoomsRunIndependently(t *testing.T) {
	handler := newRecordingHandler()
	gate := handler.blockRoom("room-a")
	m := NewManager(handler, Config{}, nil)
	defer shutdown(t, m)

	require.NoError(t, m.Submit(agent.Event{ID: "a1", RoomID: "room-a"}))
	require.NoError(t, m.Submit(agent.Event{ID: "b1", RoomID: "room-b"}))

	require.Eventually(t, func() bool { return len(handler.events("room-b")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, handler.events("room-a"))

	close(gate)
	require.Eventually(t, func() bool { return len(handler.events("room-a")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, m.WorkerCount())
}

func TestManager_QueueFull(t *testing.T) {
	handler := newRecordingHandler()
	gate := handler.blockRoom("room-a")
	m := NewManager(handler, Config{QueueSize: 1}, nil)
	defer shutdown(t, m)

	require.NoError(t, m.Submit(agent.Event{ID: "e1", RoomID: "room-a"}))
	assert.Equal(t, "e1", <-handler.started)

	require.NoError(t, m.Submit(agent.Event{ID: "e2", RoomID: "room-a"}))
	assert.ErrorIs(t, m.Submit(agent.Event{ID: "e3", RoomID: "room-a"}), ErrQueueFull)

	close(gate)
	require.Eventually(t, func() bool { return len(handler.events("room-a")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"e1", "e2"}, handler.events("room-a"))
}

func TestManager_ShutdownCancelsInFlight(t *testing.T) {
	handler := newRecordingHandler()
	handler.blockRoom("room-a")
	m := NewManager(handler, Config{}, nil)

	require.NoError(t, m.Submit(agent.Event{ID: "e1", RoomID: "room-a"}))
	<-handler.started

	shutdown(t, m)
	assert.Zero(t, m.WorkerCount())
	assert.Empty(t, handler.events("room-a"))
	assert.ErrorIs(t, m.Submit(agent.Event{ID: "e2", RoomID: "room-a"}), ErrShuttingDown)
}

func TestManager_StopWorker(t *testing.T) {
	handler := newRecordingHandler()
	m := NewManager(handler, Config{}, nil)
	defer shutdown(t, m)

	require.NoError(t, m.Submit(agent.Event{ID: "e1", RoomID: "room-a"}))
	require.Eventually(t, func() bool { return len(handler.events("room-a")) == 1 }, time.Second, 5*time.Millisecond)

	m.StopWorker("room-a")
	assert.False(t, m.HasWorker("room-a"))
	m.StopWorker("room-a")

	require.NoError(t, m.Submit(agent.Event{ID: "e2", RoomID: "room-a"}))
	require.Eventually(t, func() bool { return len(handler.events("room-a")) == 2 }, time.Second, 5*time.Millisecond)
}

func TestManager_IdleWorkerRetires(t *testing.T) {
	handler := newRecordingHandler()
	m := NewManager(handler, Config{IdleTimeout: 20 * time.Millisecond}, nil)
	defer shutdown(t, m)

	require.NoError(t, m.Submit(agent.Event{ID: "e1", RoomID: "room-a"}))
	require.Eventually(t, func() bool { return !m.HasWorker("room-a") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"e1"}, handler.events("room-a"))

	require.NoError(t, m.Submit(agent.Event{ID: "e2", RoomID: "room-a"}))
	require.Eventually(t, func() bool { return len(handler.events("room-a")) == 2 }, time.Second, 5*time.Millisecond)
}
