package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/logic"
	"tabletop-agent/internal/models"
)

const (
	// DefaultNarrativeMaxTokens bounds each narrative reply
	DefaultNarrativeMaxTokens = 1000

	seedRequest          = "summarize the campaign up to this point"
	noSummaryPlaceholder = "No campaign summary has been generated yet."
)

// GameMasterConfig holds the game-master tunables
type GameMasterConfig struct {
	AgentID    string
	MaxTokens  int
	ChunkLimit int
}

// GameMaster runs campaign turns for rooms with the gm role
type GameMaster struct {
	store      Store
	engines    EngineSource
	narrative  llm.NarrativeClient
	transport  Transport
	images     ImageRenderer
	compactor  *Compactor
	modes      *ModeClassifier
	extractor  *ProfileExtractor
	roll       logic.Roller
	agentID    string
	maxTokens  int
	chunkLimit int
	logger     *zap.Logger
}

// GameMasterOption configures a GameMaster
type GameMasterOption func(*GameMaster)

// WithImages enables scene illustrations
func WithImages(images ImageRenderer) GameMasterOption {
	return func(g *GameMaster) {
		g.images = images
	}
}

// WithRoller replaces the dice roller
func WithRoller(roll logic.Roller) GameMasterOption {
	return func(g *GameMaster) {
		g.roll = roll
	}
}

// NewGameMaster creates the game-master handler
func NewGameMaster(
	store Store,
	engines EngineSource,
	narrative llm.NarrativeClient,
	transport Transport,
	compactor *Compactor,
	cfg GameMasterConfig,
	logger *zap.Logger,
	opts ...GameMasterOption,
) *GameMaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultNarrativeMaxTokens
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = logic.MaxMessageLength
	}

	g := &GameMaster{
		store:      store,
		engines:    engines,
		narrative:  narrative,
		transport:  transport,
		compactor:  compactor,
		modes:      NewModeClassifier(logger),
		extractor:  NewProfileExtractor(store, logger),
		roll:       logic.DefaultRoller,
		agentID:    cfg.AgentID,
		maxTokens:  cfg.MaxTokens,
		chunkLimit: cfg.ChunkLimit,
		logger:     logger.Named("agent.gm"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle runs one campaign turn
func (g *GameMaster) Handle(ctx context.Context, ev Event) error {
	logger := g.logger.With(zap.String("room_id", ev.RoomID), zap.String("event_id", ev.ID))

	if logic.HasIgnoreKeyword(ev.Content) {
		logger.Debug("Ignoring out-of-character message", zap.String("author_id", ev.AuthorID))
		return nil
	}

	if logic.IsRetry(ev.Content) {
		logger.Info("Retry requested, not storing message")
	} else {
		content := logic.ReplaceDiceRolls(ev.Content, g.roll)
		if _, err := g.store.AppendTurn(ctx, ev.RoomID, ev.AuthorID, models.TurnRoleUser, content); err != nil {
			return fmt.Errorf("failed to store user turn: %w", err)
		}
	}

	turns, err := g.store.ListTurns(ctx, ev.RoomID)
	if err != nil {
		return fmt.Errorf("failed to list turns: %w", err)
	}
	logger.Debug("History loaded", zap.Int("history_len", len(turns)))

	if !ev.CanSend {
		logger.Info("No permission to send, skipping reply")
		return nil
	}

	engine, err := g.engines.Acquire(ctx, ev.RoomID, llm.EngineOptions{Rulebooks: true})
	if err != nil {
		return fmt.Errorf("failed to acquire engine: %w", err)
	}
	defer engine.Release()

	turns, summary, err := g.compactor.Run(ctx, engine, ev.RoomID, turns)
	if err != nil {
		return err
	}

	profiles, err := g.store.ListProfiles(ctx, ev.RoomID)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	decision, err := g.modes.Classify(ctx, engine, ev.RoomID, turns, profiles)
	if err != nil {
		return err
	}

	messages := logic.MergeTurns(campaignSeed(summary, decision.Rules), turns, g.agentID)
	reply, err := g.narrative.Complete(ctx, llm.CompletionRequest{
		System:    logic.ModeSystemPrompt(decision.Mode, profiles),
		Messages:  messages,
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return fmt.Errorf("narrative failed: %w", err)
	}

	text, _ := logic.SplitImageDirective(reply)
	switch {
	case text == "" || logic.IsContinue(text):
		logger.Info("Narrative asked to continue, nothing posted", zap.String("mode", string(decision.Mode)))
	default:
		if err := sendText(ctx, g.transport, ev.RoomID, text, g.chunkLimit); err != nil {
			logger.Warn("Reply delivery failed", zap.Error(err))
			return nil
		}
		if _, err := g.store.AppendTurn(ctx, ev.RoomID, g.agentID, models.TurnRoleAgent, text); err != nil {
			return fmt.Errorf("failed to store reply: %w", err)
		}
		logger.Info("Reply posted", zap.String("mode", string(decision.Mode)), zap.Int("length", len(text)))
	}

	var group errgroup.Group
	group.Go(func() error {
		g.illustrate(ctx, engine, ev.RoomID, messages, text, decision.Mode, logger)
		return nil
	})
	group.Go(func() error {
		_, err := g.extractor.Extract(ctx, engine, ev.RoomID, profiles, text)
		return err
	})
	return group.Wait()
}

// illustrate renders the scene after a reply. Failures are logged and skipped.
func (g *GameMaster) illustrate(ctx context.Context, engine llm.QueryEngine, roomID string, messages []models.ChatMessage, narrative string, mode models.Mode, logger *zap.Logger) {
	if g.images == nil {
		return
	}

	description, err := engine.Query(ctx, logic.BuildImagePrompt(messages, narrative, mode))
	if err != nil {
		logger.Warn("Image prompt failed", zap.Error(err))
		return
	}
	description = strings.TrimSpace(description)
	if description == "" {
		logger.Debug("No image description generated")
		return
	}

	result, err := g.images.Generate(ctx, description, typingHeartbeat(ctx, g.transport, roomID, logger))
	if err != nil {
		logger.Warn("Image generation failed", zap.Error(err))
		return
	}

	if err := sendImage(ctx, g.transport, roomID, result.Data); err != nil {
		logger.Warn("Image delivery failed", zap.Error(err))
		return
	}
	logger.Info("Image posted", zap.String("job_id", result.JobID))
}

// campaignSeed opens every narrative conversation with the summary and the
// rules that apply to the current situation
func campaignSeed(summary, rules string) []models.ChatMessage {
	if strings.TrimSpace(summary) == "" {
		summary = noSummaryPlaceholder
	}
	return []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: seedRequest},
		{Role: models.ChatRoleAssistant, Content: summary + " the following rules apply to the current situation " + rules},
	}
}
