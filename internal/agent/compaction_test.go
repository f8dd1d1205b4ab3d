package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tabletop-agent/internal/db"
	"tabletop-agent/internal/models"
)

func seedTurns(t *testing.T, database *db.DB, n int) []models.Turn {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := database.AppendTurn(ctx, testRoomID, "u1", models.TurnRoleUser, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	turns, err := database.ListTurns(ctx, testRoomID)
	require.NoError(t, err)
	return turns
}

func TestCompactor_RollingTrigger(t *testing.T) {
	tests := []struct {
		historyLen int
		fires      bool
	}{
		{10, false},
		{11, false},
		{19, false},
		{20, true},
		{21, false},
		{30, true},
		{40, true},
		{41, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("len_%d", tt.historyLen), func(t *testing.T) {
			database := setupTestDB(t)
			turns := seedTurns(t, database, tt.historyLen)

			engine := &mockEngine{}
			engine.On("Query", mock.Anything, mock.MatchedBy(isSummaryPrompt)).Return("the party met a dragon", nil)

			compactor := NewCompactor(database, 0, 0, nil)
			live, summary, err := compactor.Run(context.Background(), engine, testRoomID, turns)
			require.NoError(t, err)

			if tt.fires {
				assert.Len(t, live, tt.historyLen-10)
				assert.Equal(t, "msg 10", live[0].Content)
				assert.Equal(t, "the party met a dragon", summary)
				assert.Equal(t, 1, engine.queries(isSummaryPrompt))
			} else {
				assert.Len(t, live, tt.historyLen)
				assert.Empty(t, summary)
				assert.Zero(t, engine.queries(isSummaryPrompt))
			}

			stored, err := database.ListTurns(context.Background(), testRoomID)
			require.NoError(t, err)
			assert.Len(t, stored, len(live))
		})
	}
}

func TestCompactor_FoldsOldestTurnsIntoCurrentSummary(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, database.SetSummary(ctx, testRoomID, "previously: a tavern brawl"))
	turns := seedTurns(t, database, 20)

	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.MatchedBy(isSummaryPrompt)).Return("updated", nil)

	_, _, err := NewCompactor(database, 10, 0, nil).Run(ctx, engine, testRoomID, turns)
	require.NoError(t, err)

	prompt := engine.Calls[0].Arguments.String(1)
	assert.Contains(t, prompt, "previously: a tavern brawl")
	assert.Contains(t, prompt, "@u1: msg 0")
	assert.Contains(t, prompt, "@u1: msg 9")
	assert.NotContains(t, prompt, "msg 10")
}

func TestCompactor_ModelFailureKeepsStateAndTurns(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, database.SetSummary(ctx, testRoomID, "stale"))
	turns := seedTurns(t, database, 20)

	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.Anything).Return("", errors.New("upstream 503"))

	live, summary, err := NewCompactor(database, 0, 0, nil).Run(ctx, engine, testRoomID, turns)
	require.NoError(t, err)
	assert.Len(t, live, 20)
	assert.Equal(t, "stale", summary)

	stored, err := database.ListTurns(ctx, testRoomID)
	require.NoError(t, err)
	assert.Len(t, stored, 20)
}

func TestCompactor_BlankSummaryIsAModelFailure(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	turns := seedTurns(t, database, 20)

	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.Anything).Return("   ", nil)

	live, _, err := NewCompactor(database, 0, 0, nil).Run(ctx, engine, testRoomID, turns)
	require.NoError(t, err)
	assert.Len(t, live, 20)
}

func TestCompactor_SummaryReduction(t *testing.T) {
	tests := []struct {
		name   string
		tokens int
		fires  bool
	}{
		{"at budget", 10000, false},
		{"over budget", 10001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := setupTestDB(t)
			ctx := context.Background()
			long := strings.TrimSpace(strings.Repeat("word ", tt.tokens))
			require.NoError(t, database.SetSummary(ctx, testRoomID, long))

			engine := &mockEngine{}
			engine.On("Query", mock.Anything, mock.MatchedBy(isReductionPrompt)).Return("short summary", nil)

			_, summary, err := NewCompactor(database, 0, 0, nil).Run(ctx, engine, testRoomID, nil)
			require.NoError(t, err)

			stored, err := database.GetSummary(ctx, testRoomID)
			require.NoError(t, err)
			if tt.fires {
				assert.Equal(t, "short summary", summary)
				assert.Equal(t, "short summary", stored)
			} else {
				assert.Equal(t, long, summary)
				assert.Zero(t, engine.queries(isReductionPrompt))
			}
		})
	}
}

func TestCompactor_ReductionFailureKeepsSummary(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	long := strings.Repeat("word ", 10001)
	require.NoError(t, database.SetSummary(ctx, testRoomID, long))

	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.Anything).Return("", errors.New("timeout"))

	_, summary, err := NewCompactor(database, 0, 0, nil).Run(ctx, engine, testRoomID, nil)
	require.NoError(t, err)
	assert.Equal(t, long, summary)
}

func TestCompactor_RollingRunsBeforeReduction(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	turns := seedTurns(t, database, 20)

	long := strings.TrimSpace(strings.Repeat("word ", 10001))
	engine := &mockEngine{}
	engine.On("Query", mock.Anything, mock.MatchedBy(isSummaryPrompt)).Return(long, nil)
	engine.On("Query", mock.Anything, mock.MatchedBy(isReductionPrompt)).Return("reduced", nil)

	_, summary, err := NewCompactor(database, 0, 0, nil).Run(ctx, engine, testRoomID, turns)
	require.NoError(t, err)
	assert.Equal(t, "reduced", summary)

	require.Len(t, engine.Calls, 2)
	assert.True(t, isSummaryPrompt(engine.Calls[0].Arguments.String(1)))
	assert.True(t, isReductionPrompt(engine.Calls[1].Arguments.String(1)))
}

func TestCompactor_StorageFailurePropagates(t *testing.T) {
	database := setupTestDB(t)
	turns := seedTurns(t, database, 20)
	require.NoError(t, database.Close())

	engine := &mockEngine{}
	_, _, err := NewCompactor(database, 0, 0, nil).Run(context.Background(), engine, testRoomID, turns)
	assert.Error(t, err)
	assert.Zero(t, engine.queries(func(string) bool { return true }))
}
