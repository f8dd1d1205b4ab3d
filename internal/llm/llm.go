// Package llm holds the model-facing collaborators: the per-room retrieval
// query engine and the narrative chat model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"tabletop-agent/internal/models"
)

var (
	// ErrEmptyResponse is returned when a model answers with no text at all
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrRoleOrder is returned when narrative messages do not alternate
	ErrRoleOrder = errors.New("llm: messages must alternate between user and assistant")
)

// QueryEngine answers one prompt at a time against a room's retrieval context
type QueryEngine interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// EngineOptions selects what a room's engine retrieves from
type EngineOptions struct {
	// Rulebooks attaches the configured rulebook stores to every query
	Rulebooks bool
}

// EngineFactory builds the query engine for a room
type EngineFactory func(ctx context.Context, roomID string, opts EngineOptions) (QueryEngine, error)

// CompletionRequest is one narrative model call
type CompletionRequest struct {
	System    string
	Messages  []models.ChatMessage
	MaxTokens int
}

// NarrativeClient produces the game-master narrative from an alternating conversation
type NarrativeClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ValidateAlternation checks that messages start with a user turn and alternate roles
func ValidateAlternation(messages []models.ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrRoleOrder)
	}
	if messages[0].Role != models.ChatRoleUser {
		return fmt.Errorf("%w: first message is %s", ErrRoleOrder, messages[0].Role)
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Role == messages[i-1].Role {
			return fmt.Errorf("%w: messages %d and %d are both %s", ErrRoleOrder, i-1, i, messages[i].Role)
		}
	}
	return nil
}
