package api

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"tabletop-agent/internal/agent"
)

// clientBuffer is the number of events a slow SSE client may fall behind
const clientBuffer = 10

// Event is one Server-Sent Event
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventBroadcaster fans room events out to SSE clients. It is also the
// agent's outbound transport: messages and typing notices become events.
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]map[chan Event]struct{} // roomID -> clients
	logger  *zap.Logger
}

// NewEventBroadcaster creates an empty broadcaster
func NewEventBroadcaster(logger *zap.Logger) *EventBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBroadcaster{
		clients: make(map[string]map[chan Event]struct{}),
		logger:  logger.Named("api.sse"),
	}
}

// Subscribe registers a client for the room's events
func (b *EventBroadcaster) Subscribe(roomID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, clientBuffer)
	if b.clients[roomID] == nil {
		b.clients[roomID] = make(map[chan Event]struct{})
	}
	b.clients[roomID][ch] = struct{}{}

	b.logger.Info("Client subscribed", zap.String("room_id", roomID), zap.Int("total_clients", len(b.clients[roomID])))
	return ch
}

// Unsubscribe removes the client and closes its channel
func (b *EventBroadcaster) Unsubscribe(roomID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[roomID]
	if !ok {
		return
	}
	if _, ok := clients[ch]; !ok {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(b.clients, roomID)
	}

	b.logger.Info("Client unsubscribed", zap.String("room_id", roomID))
}

// Broadcast sends event to every client of the room and returns how many
// received it. Clients with a full buffer miss the event.
func (b *EventBroadcaster) Broadcast(roomID string, event Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	clients := b.clients[roomID]
	if len(clients) == 0 {
		return 0
	}

	b.logger.Debug("Broadcasting event",
		zap.String("type", event.Type), zap.String("room_id", roomID), zap.Int("clients", len(clients)))

	delivered := 0
	for ch := range clients {
		select {
		case ch <- event:
			delivered++
		default:
			b.logger.Warn("Client channel full, skipping event", zap.String("room_id", roomID), zap.String("type", event.Type))
		}
	}
	return delivered
}

// Send implements agent.Transport
func (b *EventBroadcaster) Send(ctx context.Context, roomID string, msg agent.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.Broadcast(roomID, Event{Type: "message", Data: msg})
	return nil
}

// Typing implements agent.TypingNotifier
func (b *EventBroadcaster) Typing(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.Broadcast(roomID, Event{Type: "typing", Data: map[string]string{"room_id": roomID}})
	return nil
}

// ClientCount returns the number of clients subscribed to the room
func (b *EventBroadcaster) ClientCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[roomID])
}

// TotalClientCount returns the number of clients across all rooms
func (b *EventBroadcaster) TotalClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}

// FormatSSE renders event in text/event-stream framing
func FormatSSE(event Event) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte("event: " + event.Type + "\ndata: " + string(data) + "\n\n"), nil
}
