package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tabletop-agent/internal/models"
)

// RoomStore is the read side of a room plus profile registration
type RoomStore interface {
	ListTurns(ctx context.Context, roomID string) ([]models.Turn, error)
	GetSummary(ctx context.Context, roomID string) (string, error)
	ListProfiles(ctx context.Context, roomID string) ([]models.CharacterProfile, error)
	UpsertProfile(ctx context.Context, roomID, ownerID, name, data string) error
	GetRoomRole(ctx context.Context, roomID string) (models.ChannelRole, error)
}

// RoleAssigner changes a room's handler
type RoleAssigner interface {
	SetRole(ctx context.Context, roomID string, role models.ChannelRole) error
}

// RoomHandler serves room state
type RoomHandler struct {
	store  RoomStore
	roles  RoleAssigner
	logger *zap.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(store RoomStore, roles RoleAssigner, logger *zap.Logger) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHandler{store: store, roles: roles, logger: logger.Named("api")}
}

// SummaryResponse is the rolling summary of a room
type SummaryResponse struct {
	RoomID  string `json:"room_id"`
	Summary string `json:"summary"`
}

// ProfileRequest registers or replaces a character sheet
type ProfileRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Data    string `json:"data"`
}

// RoleRequest assigns a handler to a room
type RoleRequest struct {
	Role string `json:"role"`
}

// RoleResponse reports a room's handler; empty when the room is inert
type RoleResponse struct {
	RoomID string             `json:"room_id"`
	Role   models.ChannelRole `json:"role"`
}

// History handles GET /api/rooms/{id}/history
func (h *RoomHandler) History(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	turns, err := h.store.ListTurns(r.Context(), roomID)
	if err != nil {
		h.logger.Error("Failed to list turns", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

// Summary handles GET /api/rooms/{id}/summary
func (h *RoomHandler) Summary(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	summary, err := h.store.GetSummary(r.Context(), roomID)
	if err != nil {
		h.logger.Error("Failed to get summary", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "Failed to get summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{RoomID: roomID, Summary: summary})
}

// ListProfiles handles GET /api/rooms/{id}/profiles
func (h *RoomHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	profiles, err := h.store.ListProfiles(r.Context(), roomID)
	if err != nil {
		h.logger.Error("Failed to list profiles", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "Failed to get profiles", http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = []models.CharacterProfile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// PutProfile handles PUT /api/rooms/{id}/profiles
func (h *RoomHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.OwnerID == "" || req.Name == "" {
		http.Error(w, "owner_id and name are required", http.StatusBadRequest)
		return
	}

	if err := h.store.UpsertProfile(r.Context(), roomID, req.OwnerID, req.Name, req.Data); err != nil {
		h.logger.Error("Failed to upsert profile", zap.String("room_id", roomID), zap.String("owner_id", req.OwnerID), zap.Error(err))
		http.Error(w, "Failed to save profile", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Profile saved", zap.String("room_id", roomID), zap.String("owner_id", req.OwnerID), zap.String("name", req.Name))
	writeJSON(w, http.StatusOK, req)
}

// GetRole handles GET /api/rooms/{id}/role
func (h *RoomHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	role, err := h.store.GetRoomRole(r.Context(), roomID)
	if err != nil {
		h.logger.Error("Failed to get role", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "Failed to get role", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RoleResponse{RoomID: roomID, Role: role})
}

// PutRole handles PUT /api/rooms/{id}/role
func (h *RoomHandler) PutRole(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	role := models.ChannelRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if role != models.ChannelRoleGM && role != models.ChannelRoleAssistant {
		http.Error(w, "role must be gm or assistant", http.StatusBadRequest)
		return
	}

	if err := h.roles.SetRole(r.Context(), roomID, role); err != nil {
		h.logger.Error("Failed to set role", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "Failed to set role", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RoleResponse{RoomID: roomID, Role: role})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
