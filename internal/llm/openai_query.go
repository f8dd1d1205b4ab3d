package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"
)

const (
	defaultQueryModel     = "gpt-4o-mini"
	defaultQueryMaxTokens = 2000
)

// OpenAIProvider builds per-room query engines on the Responses API
type OpenAIProvider struct {
	client         *openai.Client
	model          string
	maxTokens      int64
	rulebookStores []string
	policy         retryPolicy
	logger         *zap.Logger
}

// ProviderOption configures the provider
type ProviderOption func(*OpenAIProvider)

// WithQueryModel sets the model used for retrieval queries
func WithQueryModel(model string) ProviderOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithRulebookStores sets the vector store ids searched by rulebook-enabled engines
func WithRulebookStores(ids []string) ProviderOption {
	return func(p *OpenAIProvider) {
		p.rulebookStores = ids
	}
}

// WithQueryMaxTokens caps the output of a single query
func WithQueryMaxTokens(n int) ProviderOption {
	return func(p *OpenAIProvider) {
		if n > 0 {
			p.maxTokens = int64(n)
		}
	}
}

// WithProviderLogger sets the logger
func WithProviderLogger(logger *zap.Logger) ProviderOption {
	return func(p *OpenAIProvider) {
		p.logger = logger
	}
}

// NewOpenAIProvider creates a provider. requestOpts are passed to the SDK client.
func NewOpenAIProvider(apiKey string, requestOpts []option.RequestOption, opts ...ProviderOption) *OpenAIProvider {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, requestOpts...)
	client := openai.NewClient(clientOpts...)

	p := &OpenAIProvider{
		client:    &client,
		model:     defaultQueryModel,
		maxTokens: defaultQueryMaxTokens,
		policy:    defaultRetryPolicy(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("llm.query")
	return p
}

// NewEngine builds the engine for a room, checking that every rulebook store it
// will search is reachable. It satisfies EngineFactory.
func (p *OpenAIProvider) NewEngine(ctx context.Context, roomID string, opts EngineOptions) (QueryEngine, error) {
	p.logger.Info("NewEngine started", zap.String("room_id", roomID), zap.Bool("rulebooks", opts.Rulebooks))

	var stores []string
	if opts.Rulebooks {
		for _, id := range p.rulebookStores {
			if _, err := p.client.VectorStores.Get(ctx, id); err != nil {
				// A missing rulebook degrades answers but must not block the room
				p.logger.Warn("Rulebook store unavailable",
					zap.String("room_id", roomID), zap.String("vector_store_id", id), zap.Error(err))
				continue
			}
			stores = append(stores, id)
		}
	}

	p.logger.Info("NewEngine completed", zap.String("room_id", roomID), zap.Int("stores", len(stores)))
	return &openAIQueryEngine{provider: p, roomID: roomID, stores: stores}, nil
}

type openAIQueryEngine struct {
	provider *OpenAIProvider
	roomID   string
	stores   []string
}

// Query sends one prompt and returns the trimmed output text
func (e *openAIQueryEngine) Query(ctx context.Context, prompt string) (string, error) {
	p := e.provider
	params := responses.ResponseNewParams{
		Model:           p.model,
		MaxOutputTokens: openai.Int(p.maxTokens),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(prompt),
		},
	}
	if len(e.stores) > 0 {
		params.Tools = []responses.ToolUnionParam{
			responses.ToolParamOfFileSearch(e.stores),
		}
	}

	resp, err := callWithRetry(ctx, p.policy, func(ctx context.Context) (*responses.Response, error) {
		return p.client.Responses.New(ctx, params)
	})
	if err != nil {
		p.logger.Error("Query failed", zap.String("room_id", e.roomID), zap.Error(err))
		return "", fmt.Errorf("query: %w", err)
	}

	text := strings.TrimSpace(resp.OutputText())
	p.logger.Debug("Query completed",
		zap.String("room_id", e.roomID), zap.Int("prompt_length", len(prompt)), zap.Int("response_length", len(text)))
	return text, nil
}
