package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tabletop-agent/internal/agent"
	"tabletop-agent/internal/worker"
)

// EventQueue accepts inbound events for asynchronous handling
type EventQueue interface {
	Submit(ev agent.Event) error
}

// RoomEventsHandler handles event ingress and the outbound SSE stream
type RoomEventsHandler struct {
	queue       EventQueue
	broadcaster *EventBroadcaster
	logger      *zap.Logger
}

// NewRoomEventsHandler creates a new handler
func NewRoomEventsHandler(queue EventQueue, broadcaster *EventBroadcaster, logger *zap.Logger) *RoomEventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomEventsHandler{
		queue:       queue,
		broadcaster: broadcaster,
		logger:      logger.Named("api"),
	}
}

// PostEventRequest is the body of POST /api/rooms/{id}/events
type PostEventRequest struct {
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
	FromBot  bool   `json:"from_bot"`
	// CanSend defaults to true when omitted
	CanSend *bool `json:"can_send,omitempty"`
}

// PostEventResponse acknowledges an accepted event
type PostEventResponse struct {
	ID string `json:"id"`
}

// PostEvent handles POST /api/rooms/{id}/events
func (h *RoomEventsHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if strings.TrimSpace(roomID) == "" {
		http.Error(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	var req PostEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Post event failed: invalid request body", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AuthorID == "" {
		http.Error(w, "author_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	canSend := true
	if req.CanSend != nil {
		canSend = *req.CanSend
	}
	ev := agent.Event{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		AuthorID: req.AuthorID,
		Content:  req.Content,
		FromBot:  req.FromBot,
		CanSend:  canSend,
	}

	if err := h.queue.Submit(ev); err != nil {
		switch {
		case errors.Is(err, worker.ErrQueueFull):
			http.Error(w, "Room is busy", http.StatusTooManyRequests)
		case errors.Is(err, worker.ErrShuttingDown):
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		default:
			h.logger.Error("Post event failed", zap.String("room_id", roomID), zap.Error(err))
			http.Error(w, "Failed to queue event", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("Event accepted", zap.String("room_id", roomID), zap.String("event_id", ev.ID), zap.String("author_id", ev.AuthorID))
	writeJSON(w, http.StatusAccepted, PostEventResponse{ID: ev.ID})
}

// Stream handles GET /api/rooms/{id}/stream
func (h *RoomEventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if strings.TrimSpace(roomID) == "" {
		http.Error(w, "Invalid room ID", http.StatusBadRequest)
		return
	}
	logger := h.logger.With(zap.String("room_id", roomID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	eventCh := h.broadcaster.Subscribe(roomID)
	defer h.broadcaster.Unsubscribe(roomID, eventCh)

	if _, err := w.Write([]byte("event: connected\ndata: {}\n\n")); err != nil {
		logger.Warn("Failed to send connected event", zap.Error(err))
		return
	}
	flusher.Flush()
	logger.Info("Client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Client disconnected")
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			data, err := FormatSSE(event)
			if err != nil {
				logger.Error("Failed to format event", zap.Error(err))
				continue
			}
			if _, err := w.Write(data); err != nil {
				logger.Warn("Failed to write event", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
