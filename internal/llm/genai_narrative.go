package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"tabletop-agent/internal/models"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GenAINarrative runs the narrative conversation on Gemini
type GenAINarrative struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGenAINarrative creates a Gemini-backed narrative client
func NewGenAINarrative(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GenAINarrative, error) {
	return newGenAINarrative(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, logger)
}

func newGenAINarrative(ctx context.Context, cfg *genai.ClientConfig, model string, logger *zap.Logger) (*GenAINarrative, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAINarrative{client: client, model: model, logger: logger.Named("llm.genai")}, nil
}

// Complete maps the conversation onto Gemini's user/model roles
func (g *GenAINarrative) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ValidateAlternation(req.Messages); err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == models.ChatRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.logger.Error("Complete failed", zap.Error(err))
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	g.logger.Debug("Complete completed", zap.Int("messages", len(req.Messages)), zap.Int("response_length", len(text)))
	return text, nil
}
