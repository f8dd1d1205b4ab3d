package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"tabletop-agent/internal/models"
)

const defaultNarrativeModel = "gpt-4o"

// OpenAINarrative runs the narrative conversation on Chat Completions
type OpenAINarrative struct {
	client *openai.Client
	model  string
	policy retryPolicy
	logger *zap.Logger
}

// NewOpenAINarrative creates a narrative client
func NewOpenAINarrative(apiKey, model string, logger *zap.Logger, requestOpts ...option.RequestOption) *OpenAINarrative {
	if model == "" {
		model = defaultNarrativeModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, requestOpts...)
	client := openai.NewClient(clientOpts...)

	return &OpenAINarrative{
		client: &client,
		model:  model,
		policy: defaultRetryPolicy(),
		logger: logger.Named("llm.narrative"),
	}
}

// Complete sends the system prompt and alternating messages and returns the reply text
func (n *OpenAINarrative) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ValidateAlternation(req.Messages); err != nil {
		return "", err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		if msg.Role == models.ChatRoleUser {
			messages = append(messages, openai.UserMessage(msg.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(n.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := callWithRetry(ctx, n.policy, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return n.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		n.logger.Error("Complete failed", zap.Error(err))
		return "", fmt.Errorf("narrative completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	n.logger.Debug("Complete completed", zap.Int("messages", len(req.Messages)), zap.Int("response_length", len(text)))
	return text, nil
}
