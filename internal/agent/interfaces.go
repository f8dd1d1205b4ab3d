// Package agent routes room events to the game-master and assistant handlers
// and runs the per-turn pipeline: storage, compaction, mode selection,
// narrative generation, delivery, illustration and character sheet upkeep.
package agent

import (
	"context"

	"tabletop-agent/internal/imagegen"
	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/models"
)

// FailureMessage is sent to the room when a turn fails
const FailureMessage = "OOPS I DONE GOOFED"

// Event is one inbound chat message
type Event struct {
	ID       string `json:"id"`
	RoomID   string `json:"room_id"`
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
	FromBot  bool   `json:"from_bot"`
	// CanSend is false when the agent may not post in the room
	CanSend bool `json:"can_send"`
}

// Attachment is a file delivered with an outbound message
type Attachment struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Outbound is one message posted to a room
type Outbound struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Transport delivers outbound messages to a room
type Transport interface {
	Send(ctx context.Context, roomID string, msg Outbound) error
}

// TypingNotifier is implemented by transports that can show a working indicator
type TypingNotifier interface {
	Typing(ctx context.Context, roomID string) error
}

// Handler processes one event for a room
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HistoryStore is the per-room turn log
type HistoryStore interface {
	AppendTurn(ctx context.Context, roomID, authorID string, role models.TurnRole, content string) (*models.Turn, error)
	ListTurns(ctx context.Context, roomID string) ([]models.Turn, error)
	SoftDeleteOldest(ctx context.Context, roomID string, count int) (int64, error)
}

// SummaryStore holds one rolling summary per room
type SummaryStore interface {
	GetSummary(ctx context.Context, roomID string) (string, error)
	SetSummary(ctx context.Context, roomID, text string) error
}

// ProfileStore holds character sheets
type ProfileStore interface {
	UpsertProfile(ctx context.Context, roomID, ownerID, name, data string) error
	ListProfiles(ctx context.Context, roomID string) ([]models.CharacterProfile, error)
}

// RoleStore holds the handler assignment of each room
type RoleStore interface {
	SetRoomRole(ctx context.Context, roomID string, role models.ChannelRole) error
	GetRoomRole(ctx context.Context, roomID string) (models.ChannelRole, error)
}

// Store is everything the agent persists
type Store interface {
	HistoryStore
	SummaryStore
	ProfileStore
	RoleStore
}

// EngineSource leases per-room query engines
type EngineSource interface {
	Acquire(ctx context.Context, roomID string, opts llm.EngineOptions) (*llm.Handle, error)
	Evict(roomID string) bool
}

// ImageRenderer turns a scene description into image bytes
type ImageRenderer interface {
	Generate(ctx context.Context, description string, heartbeat func()) (*imagegen.Result, error)
}
