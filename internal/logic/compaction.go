package logic

import (
	"fmt"
	"strings"

	"tabletop-agent/internal/models"
)

const (
	// DefaultCompactionWindow is how many turns one rolling compaction folds away
	DefaultCompactionWindow = 10
	// DefaultSummaryTokenBudget is the whitespace token count a summary may reach
	DefaultSummaryTokenBudget = 10000
)

// ShouldCompact reports whether a history of historyLen live turns is due for a
// rolling compaction: a positive multiple of window strictly above window itself.
func ShouldCompact(historyLen, window int) bool {
	if window <= 0 {
		return false
	}
	return historyLen > window && historyLen%window == 0
}

// SummaryTokens counts whitespace-separated tokens
func SummaryTokens(summary string) int {
	return len(strings.Fields(summary))
}

// ExceedsSummaryBudget reports whether summary is strictly over budget tokens
func ExceedsSummaryBudget(summary string, budget int) bool {
	return SummaryTokens(summary) > budget
}

// BuildSummaryPrompt folds the oldest turns into the current summary
func BuildSummaryPrompt(currentSummary string, oldest []models.Turn) string {
	return fmt.Sprintf(`You are a note taker for a table top role playing game where the previous summary was as follows:
%s
Summarize the following messages along with the current summary so the GM can continue the campaign from your notes.
Only summarize the current campaign state. Do not include character states.

Here is what happened since the last summary was generated:
%s`, currentSummary, FormatTurnLines(oldest))
}

// BuildReductionPrompt asks for a shorter summary that keeps GM instructions and character info
func BuildReductionPrompt(summary string) string {
	return fmt.Sprintf(`You are a note taker for a table top role playing game. The current summary is too long:
%s
Please reduce the summary by removing the oldest part of the history while maintaining GM instructions and character info. Convert detailed summary info into concise rough history where possible.`, summary)
}
