package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tabletop-agent/internal/agent"
	"tabletop-agent/internal/api"
	"tabletop-agent/internal/config"
	"tabletop-agent/internal/imagegen"
	"tabletop-agent/internal/llm"
	"tabletop-agent/internal/models"
	"tabletop-agent/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and room workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	database, err := openDatabase(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("Database migrated successfully", zap.String("db_path", cfg.DBPath))

	provider := llm.NewOpenAIProvider(cfg.OpenAI.APIKey, nil,
		llm.WithQueryModel(cfg.Models.Query),
		llm.WithQueryMaxTokens(cfg.Models.QueryMaxTokens),
		llm.WithRulebookStores(cfg.Models.RulebookStores),
		llm.WithProviderLogger(logger),
	)
	engines := llm.NewEngineCache(provider.NewEngine, logger)

	narrative, err := newNarrative(ctx, cfg, logger)
	if err != nil {
		return err
	}

	images, err := newImageRenderer(cfg.Image, logger)
	if err != nil {
		return err
	}

	// The broadcaster is both the agent's transport and the SSE source
	broadcaster := api.NewEventBroadcaster(logger)

	var gmOpts []agent.GameMasterOption
	if images != nil {
		gmOpts = append(gmOpts, agent.WithImages(images))
	}
	compactor := agent.NewCompactor(database, cfg.Agent.CompactionWindow, cfg.Agent.SummaryTokenBudget, logger)
	gm := agent.NewGameMaster(database, engines, narrative, broadcaster, compactor, agent.GameMasterConfig{
		AgentID:   cfg.Agent.ID,
		MaxTokens: cfg.Agent.NarrativeMaxTokens,
	}, logger, gmOpts...)
	assistant := agent.NewAssistant(database, engines, broadcaster, images, cfg.Agent.ID, logger)

	dispatcher := agent.NewDispatcher(database, engines, broadcaster, map[models.ChannelRole]agent.Handler{
		models.ChannelRoleGM:        gm,
		models.ChannelRoleAssistant: assistant,
	}, cfg.Agent.ID, logger)

	workers := worker.NewManager(dispatcher, worker.Config{
		QueueSize:   cfg.Worker.QueueSize,
		IdleTimeout: cfg.Worker.IdleTimeout,
	}, logger)

	router := api.NewRouter(database, dispatcher, workers, broadcaster, logger)

	// Streams run on baseCtx so shutdown can end them
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.ListenAddr), zap.String("agent_id", cfg.Agent.ID),
			zap.String("narrative_provider", cfg.Models.NarrativeProvider), zap.Bool("images", images != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			workers.Shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Server is shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := workers.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down workers", zap.Error(err))
	}
	cancelStreams()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func newNarrative(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.NarrativeClient, error) {
	switch cfg.Models.NarrativeProvider {
	case config.ProviderGemini:
		return llm.NewGenAINarrative(ctx, cfg.Gemini.APIKey, cfg.Models.Narrative, logger)
	default:
		return llm.NewOpenAINarrative(cfg.OpenAI.APIKey, cfg.Models.Narrative, logger), nil
	}
}

// newImageRenderer returns nil when no image backend is configured
func newImageRenderer(cfg config.ImageConfig, logger *zap.Logger) (agent.ImageRenderer, error) {
	if !cfg.Enabled() {
		logger.Info("Image generation disabled")
		return nil, nil
	}

	workflow, err := os.ReadFile(cfg.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	client, err := imagegen.NewComfyClient(workflow,
		imagegen.WithBaseURL(cfg.ComfyURL),
		imagegen.WithNodes(cfg.Nodes),
		imagegen.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ComfyUI client: %w", err)
	}

	pipelineCfg := imagegen.DefaultPipelineConfig()
	if cfg.PollInterval > 0 {
		pipelineCfg.PollInterval = cfg.PollInterval
	}
	if cfg.Timeout > 0 {
		pipelineCfg.Timeout = cfg.Timeout
	}
	if cfg.PixelBudget > 0 {
		pipelineCfg.PixelBudget = cfg.PixelBudget
	}
	return imagegen.NewPipeline(client, pipelineCfg, logger), nil
}
