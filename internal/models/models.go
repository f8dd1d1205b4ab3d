package models

import "time"

// TurnRole defines who produced a turn
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
	TurnRoleAgent     TurnRole = "agent"
)

// Turn represents a single stored message in a room's history
type Turn struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	AuthorID  string    `json:"author_id"`
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted"`
}

// Summary is the rolling campaign summary for a room
type Summary struct {
	RoomID    string    `json:"room_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CharacterProfile is a named character sheet owned by a user within a room
type CharacterProfile struct {
	RoomID    string    `json:"room_id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Data      string    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelRole selects which handler a room is routed to
type ChannelRole string

const (
	ChannelRoleGM        ChannelRole = "gm"
	ChannelRoleAssistant ChannelRole = "assistant"
)

// RoomRole is the persisted role assignment of a room
type RoomRole struct {
	RoomID    string      `json:"room_id"`
	Role      ChannelRole `json:"role"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Mode is the game-master operation mode derived for a single turn
type Mode string

const (
	ModeSetup       Mode = "setup"
	ModeExploration Mode = "exploration"
	ModeCombat      Mode = "combat"
)

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	switch m {
	case ModeSetup, ModeExploration, ModeCombat:
		return true
	}
	return false
}

// ChatRole is the role of a merged message sent to the narrative model
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one block of the alternating conversation sent to the narrative model
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
