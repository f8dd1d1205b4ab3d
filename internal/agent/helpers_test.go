package agent

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tabletop-agent/internal/db"
	"tabletop-agent/internal/imagegen"
	"tabletop-agent/internal/llm"
)

const (
	testAgentID = "agent-1"
	testRoomID  = "room-1"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	t.Cleanup(func() { database.Close() })
	return database
}

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Query(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockEngine) queries(match func(string) bool) int {
	n := 0
	for _, call := range m.Calls {
		if call.Method == "Query" && match(call.Arguments.String(1)) {
			n++
		}
	}
	return n
}

type mockNarrative struct {
	mock.Mock
}

func (m *mockNarrative) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockNarrative) lastRequest(t *testing.T) llm.CompletionRequest {
	t.Helper()
	require.NotEmpty(t, m.Calls)
	return m.Calls[len(m.Calls)-1].Arguments.Get(1).(llm.CompletionRequest)
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, roomID string, msg Outbound) error {
	args := m.Called(ctx, roomID, msg)
	return args.Error(0)
}

func (m *mockTransport) sent() []Outbound {
	var out []Outbound
	for _, call := range m.Calls {
		if call.Method == "Send" {
			out = append(out, call.Arguments.Get(2).(Outbound))
		}
	}
	return out
}

func (m *mockTransport) texts() []string {
	var texts []string
	for _, msg := range m.sent() {
		if msg.Text != "" {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

func newMockTransport() *mockTransport {
	transport := &mockTransport{}
	transport.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return transport
}

// countingCache wraps a single engine in a real cache and counts builds
func countingCache(engine llm.QueryEngine) (*llm.EngineCache, *atomic.Int32) {
	var builds atomic.Int32
	cache := llm.NewEngineCache(func(ctx context.Context, roomID string, opts llm.EngineOptions) (llm.QueryEngine, error) {
		builds.Add(1)
		return engine, nil
	}, nil)
	return cache, &builds
}

// newOptionsRecordingCache records the rulebook option of every engine build
func newOptionsRecordingCache(engine llm.QueryEngine, rulebooks *[]bool) *llm.EngineCache {
	return llm.NewEngineCache(func(ctx context.Context, roomID string, opts llm.EngineOptions) (llm.QueryEngine, error) {
		*rulebooks = append(*rulebooks, opts.Rulebooks)
		return engine, nil
	}, nil)
}

type fakeRenderer struct {
	descriptions []string
	data         []byte
	err          error
}

func (f *fakeRenderer) Generate(ctx context.Context, description string, heartbeat func()) (*imagegen.Result, error) {
	f.descriptions = append(f.descriptions, description)
	if f.err != nil {
		return nil, f.err
	}
	return &imagegen.Result{JobID: "job-1", Data: f.data}, nil
}

func prefixed(prefix string) any {
	return mock.MatchedBy(func(prompt string) bool { return strings.HasPrefix(prompt, prefix) })
}

func isModePrompt(prompt string) bool {
	return strings.HasPrefix(prompt, "You are a GM running") && !isModeRetry(prompt)
}

func isModeRetry(prompt string) bool {
	return strings.Contains(prompt, "Your previous answer could not be understood")
}

func isSummaryPrompt(prompt string) bool {
	return strings.HasPrefix(prompt, "You are a note taker for a table top role playing game where")
}

func isReductionPrompt(prompt string) bool {
	return strings.HasPrefix(prompt, "You are a note taker for a table top role playing game. The current summary is too long")
}

const (
	imagePromptPrefix     = "Generate a prompt describing an image"
	characterPromptPrefix = "You are a D&D 5e character generator"
	classifyPromptPrefix  = "You are a helpful assistant. Respond in short order."
)
