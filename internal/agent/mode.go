package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/logic"
	"tabletop-agent/internal/models"
)

// fallbackMode is used when the engine twice fails to answer in the mode protocol
const fallbackMode = models.ModeExploration

// ModeDecision is the mode selected for one game-master turn
type ModeDecision struct {
	Mode  models.Mode
	Rules string
	// Fallback is true when neither answer could be parsed
	Fallback bool
}

// ModeClassifier derives the operation mode from recent turns and profiles
type ModeClassifier struct {
	logger *zap.Logger
}

// NewModeClassifier creates a classifier
func NewModeClassifier(logger *zap.Logger) *ModeClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModeClassifier{logger: logger.Named("agent.mode")}
}

// Classify asks the engine for the mode and applicable rules. A malformed
// answer is re-asked once; a second malformed answer falls back to
// exploration with no rules. Query errors are returned.
func (m *ModeClassifier) Classify(ctx context.Context, engine llm.QueryEngine, roomID string, turns []models.Turn, profiles []models.CharacterProfile) (ModeDecision, error) {
	logger := m.logger.With(zap.String("room_id", roomID))
	prompt := logic.BuildModePrompt(turns, profiles)

	response, err := engine.Query(ctx, prompt)
	if err != nil {
		return ModeDecision{}, fmt.Errorf("mode query failed: %w", err)
	}
	if mode, rules, ok := logic.ParseModeResponse(response); ok {
		logger.Debug("Mode classified", zap.String("mode", string(mode)))
		return ModeDecision{Mode: mode, Rules: rules}, nil
	}

	logger.Warn("Mode response malformed, asking again", zap.String("response", truncate(response, 200)))
	response, err = engine.Query(ctx, logic.BuildModeRetryPrompt(prompt, response))
	if err != nil {
		return ModeDecision{}, fmt.Errorf("mode query failed: %w", err)
	}
	if mode, rules, ok := logic.ParseModeResponse(response); ok {
		logger.Debug("Mode classified", zap.String("mode", string(mode)))
		return ModeDecision{Mode: mode, Rules: rules}, nil
	}

	logger.Warn("Mode response malformed again, using fallback",
		zap.String("mode", string(fallbackMode)), zap.String("response", truncate(response, 200)))
	return ModeDecision{Mode: fallbackMode, Fallback: true}, nil
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
