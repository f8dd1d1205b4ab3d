// Package api exposes rooms over HTTP: event ingress, an SSE stream of the
// agent's outbound messages, and read access to stored room state.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher interface for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Store is everything the HTTP surface reads from persistence
type Store interface {
	RoomStore
	Ping(ctx context.Context) error
}

// Router holds the HTTP multiplexer and dependencies
type Router struct {
	mux           *http.ServeMux
	roomHandler   *RoomHandler
	eventsHandler *RoomEventsHandler
	store         Store
	broadcaster   *EventBroadcaster
	logger        *zap.Logger
}

// NewRouter creates a new router with all routes configured. The broadcaster
// must be the same instance the agent uses as its transport.
func NewRouter(store Store, roles RoleAssigner, queue EventQueue, broadcaster *EventBroadcaster, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		mux:           http.NewServeMux(),
		roomHandler:   NewRoomHandler(store, roles, logger),
		eventsHandler: NewRoomEventsHandler(queue, broadcaster, logger),
		store:         store,
		broadcaster:   broadcaster,
		logger:        logger.Named("api"),
	}
	r.setupRoutes()
	return r
}

// setupRoutes configures all HTTP routes
func (r *Router) setupRoutes() {
	r.mux.HandleFunc("GET /health", HealthHandler(r.store))

	// Event routes
	r.mux.HandleFunc("POST /api/rooms/{id}/events", r.eventsHandler.PostEvent)
	r.mux.HandleFunc("GET /api/rooms/{id}/stream", r.eventsHandler.Stream)

	// Room state routes
	r.mux.HandleFunc("GET /api/rooms/{id}/history", r.roomHandler.History)
	r.mux.HandleFunc("GET /api/rooms/{id}/summary", r.roomHandler.Summary)
	r.mux.HandleFunc("GET /api/rooms/{id}/profiles", r.roomHandler.ListProfiles)
	r.mux.HandleFunc("PUT /api/rooms/{id}/profiles", r.roomHandler.PutProfile)
	r.mux.HandleFunc("GET /api/rooms/{id}/role", r.roomHandler.GetRole)
	r.mux.HandleFunc("PUT /api/rooms/{id}/role", r.roomHandler.PutRole)
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Skip SSE streams
	shouldLog := strings.HasPrefix(req.URL.Path, "/api/") && !strings.HasSuffix(req.URL.Path, "/stream")
	if shouldLog {
		r.logger.Debug("Request started", zap.String("method", req.Method), zap.String("path", req.URL.Path))
	}

	wrapped := newResponseWriter(w)
	r.mux.ServeHTTP(wrapped, req)

	if shouldLog {
		r.logger.Info("Request completed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)))
	}
}

// Broadcaster returns the event broadcaster
func (r *Router) Broadcaster() *EventBroadcaster {
	return r.broadcaster
}
