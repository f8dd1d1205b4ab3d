package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/logic"
	"tabletop-agent/internal/models"
)

// ProfileExtractor refreshes existing character sheets from a narrative reply
type ProfileExtractor struct {
	store  ProfileStore
	logger *zap.Logger
}

// NewProfileExtractor creates an extractor
func NewProfileExtractor(store ProfileStore, logger *zap.Logger) *ProfileExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileExtractor{store: store, logger: logger.Named("agent.extractor")}
}

// Extract asks the engine for updated sheets and overwrites the profiles whose
// names match exactly. Blocks that do not parse or name an unknown character
// are skipped. It returns the number of profiles written.
func (e *ProfileExtractor) Extract(ctx context.Context, engine llm.QueryEngine, roomID string, profiles []models.CharacterProfile, narrative string) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	response, err := engine.Query(ctx, logic.BuildCharacterUpdatePrompt(profiles, narrative))
	if err != nil {
		return 0, fmt.Errorf("character update query failed: %w", err)
	}

	blocks := logic.ParseProfileBlocks(response)
	updates := logic.MatchProfileUpdates(blocks, profiles)
	for _, p := range updates {
		if err := e.store.UpsertProfile(ctx, roomID, p.OwnerID, p.Name, p.Data); err != nil {
			return 0, fmt.Errorf("failed to store profile %q: %w", p.Name, err)
		}
	}

	e.logger.Info("Extract completed",
		zap.String("room_id", roomID),
		zap.Int("blocks", len(blocks)),
		zap.Int("updated", len(updates)))
	return len(updates), nil
}
