package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/logic"
	"tabletop-agent/internal/models"
)

// CompactionStore is the storage a Compactor needs
type CompactionStore interface {
	HistoryStore
	SummaryStore
}

// Compactor keeps a room's live history and summary within bounds
type Compactor struct {
	store  CompactionStore
	window int
	budget int
	logger *zap.Logger
}

// NewCompactor creates a compactor. Non-positive window or budget take the defaults.
func NewCompactor(store CompactionStore, window, budget int, logger *zap.Logger) *Compactor {
	if window <= 0 {
		window = logic.DefaultCompactionWindow
	}
	if budget <= 0 {
		budget = logic.DefaultSummaryTokenBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		store:  store,
		window: window,
		budget: budget,
		logger: logger.Named("agent.compaction"),
	}
}

// Run applies rolling compaction and then summary reduction to a room whose
// live history is turns. It returns the live turns and the summary to use for
// this turn. Model failures keep the previous state; storage failures are returned.
func (c *Compactor) Run(ctx context.Context, engine llm.QueryEngine, roomID string, turns []models.Turn) ([]models.Turn, string, error) {
	logger := c.logger.With(zap.String("room_id", roomID))

	if logic.ShouldCompact(len(turns), c.window) {
		compacted, err := c.roll(ctx, engine, roomID, turns, logger)
		if err != nil {
			return nil, "", err
		}
		turns = compacted
	}

	summary, err := c.store.GetSummary(ctx, roomID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read summary: %w", err)
	}

	if logic.ExceedsSummaryBudget(summary, c.budget) {
		summary, err = c.reduce(ctx, engine, roomID, summary, logger)
		if err != nil {
			return nil, "", err
		}
	}

	return turns, summary, nil
}

func (c *Compactor) roll(ctx context.Context, engine llm.QueryEngine, roomID string, turns []models.Turn, logger *zap.Logger) ([]models.Turn, error) {
	logger.Info("Rolling compaction started", zap.Int("history_len", len(turns)))

	current, err := c.store.GetSummary(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	updated, err := queryText(ctx, engine, logic.BuildSummaryPrompt(current, turns[:c.window]))
	if err != nil {
		logger.Warn("Rolling compaction failed, keeping summary", zap.Error(err))
		return turns, nil
	}

	if err := c.store.SetSummary(ctx, roomID, updated); err != nil {
		return nil, fmt.Errorf("failed to store summary: %w", err)
	}
	if _, err := c.store.SoftDeleteOldest(ctx, roomID, c.window); err != nil {
		return nil, fmt.Errorf("failed to retire compacted turns: %w", err)
	}

	live, err := c.store.ListTurns(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	logger.Info("Rolling compaction completed", zap.Int("history_len", len(live)))
	return live, nil
}

func (c *Compactor) reduce(ctx context.Context, engine llm.QueryEngine, roomID, summary string, logger *zap.Logger) (string, error) {
	logger.Info("Summary reduction started", zap.Int("tokens", logic.SummaryTokens(summary)))

	reduced, err := queryText(ctx, engine, logic.BuildReductionPrompt(summary))
	if err != nil {
		logger.Warn("Summary reduction failed, keeping summary", zap.Error(err))
		return summary, nil
	}

	if err := c.store.SetSummary(ctx, roomID, reduced); err != nil {
		return "", fmt.Errorf("failed to store summary: %w", err)
	}

	logger.Info("Summary reduction completed", zap.Int("tokens", logic.SummaryTokens(reduced)))
	return reduced, nil
}

// queryText runs prompt and rejects blank answers
func queryText(ctx context.Context, engine llm.QueryEngine, prompt string) (string, error) {
	out, err := engine.Query(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", llm.ErrEmptyResponse
	}
	return out, nil
}
