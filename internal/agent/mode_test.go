package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tabletop-agent/internal/models"
)

func TestModeClassifier_ParsesFirstAnswer(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.MatchedBy(isModePrompt)).Return("**Combat** --rules-- roll initiative", nil)

	decision, err := NewModeClassifier(nil).Classify(context.Background(), engine, testRoomID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ModeCombat, decision.Mode)
	assert.Equal(t, "roll initiative", decision.Rules)
	assert.False(t, decision.Fallback)
}

func TestModeClassifier_AsksAgainOnce(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.MatchedBy(isModePrompt)).Return("exploration", nil)
	engine.On("Query", mock.Anything, mock.MatchedBy(isModeRetry)).Return("setup --rules-- make characters", nil)

	decision, err := NewModeClassifier(nil).Classify(context.Background(), engine, testRoomID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ModeSetup, decision.Mode)
	assert.Equal(t, "make characters", decision.Rules)
	assert.Equal(t, 1, engine.queries(isModeRetry))
}

func TestModeClassifier_FallsBackAfterSecondBadAnswer(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.Anything).Return("I am not sure", nil)

	decision, err := NewModeClassifier(nil).Classify(context.Background(), engine, testRoomID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ModeExploration, decision.Mode)
	assert.Empty(t, decision.Rules)
	assert.True(t, decision.Fallback)
	assert.Len(t, engine.Calls, 2)
}

func TestModeClassifier_QueryErrorIsReturned(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))

	_, err := NewModeClassifier(nil).Classify(context.Background(), engine, testRoomID, nil, nil)
	assert.Error(t, err)
	assert.Len(t, engine.Calls, 1)
}

func TestModeClassifier_UsesRecentTurnsOnly(t *testing.T) {
	turns := make([]models.Turn, 0, 15)
	for i := 0; i < 15; i++ {
		turns = append(turns, models.Turn{AuthorID: "u1", Role: models.TurnRoleUser, Content: string(rune('a' + i))})
	}

	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.Anything).Return("combat --rules-- x", nil)

	_, err := NewModeClassifier(nil).Classify(context.Background(), engine, testRoomID, turns, nil)
	require.NoError(t, err)

	prompt := engine.Calls[0].Arguments.String(1)
	assert.NotContains(t, prompt, "@u1: e\n")
	assert.Contains(t, prompt, "@u1: f\n")
	assert.Contains(t, prompt, "@u1: o")
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	out := truncate(strings.Repeat("竜", 5), 3)
	assert.Equal(t, "竜竜竜...", out)
	assert.True(t, utf8.ValidString(out))
}
