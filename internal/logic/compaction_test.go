package logic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tabletop-agent/internal/models"
)

func TestShouldCompact(t *testing.T) {
	tests := []struct {
		length int
		want   bool
	}{
		{0, false},
		{9, false},
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
		assert.Equal(t, tt.want, ShouldCompact(tt.length, DefaultCompactionWindow), "length %d", tt.length)
	}
}

func TestShouldCompact_NonPositiveWindow(t *testing.T) {
	assert.False(t, ShouldCompact(20, 0))
	assert.False(t, ShouldCompact(20, -10))
}

func TestExceedsSummaryBudget(t *testing.T) {
	exact := strings.Repeat("word ", DefaultSummaryTokenBudget)
	over := exact + "extra"

	assert.False(t, ExceedsSummaryBudget(exact, DefaultSummaryTokenBudget))
	assert.True(t, ExceedsSummaryBudget(over, DefaultSummaryTokenBudget))
	assert.False(t, ExceedsSummaryBudget("", DefaultSummaryTokenBudget))
}

func TestSummaryTokens_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, 3, SummaryTokens("  one\ttwo\n\nthree  "))
}

func TestBuildSummaryPrompt_IncludesSummaryAndTurns(t *testing.T) {
	prompt := BuildSummaryPrompt("old notes", []models.Turn{
		{AuthorID: "u1", Content: "we travel north"},
	})

	assert.Contains(t, prompt, "old notes")
	assert.Contains(t, prompt, "@u1: we travel north")
	assert.Contains(t, prompt, "Do not include character states.")
}
