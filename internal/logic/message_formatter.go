package logic

import (
	"fmt"
	"strings"

	"tabletop-agent/internal/models"
)

// AgentPlaceholder replaces the agent's own author id in merged conversations
const AgentPlaceholder = "bot"

// FormatTurnLine formats a turn as "@author: content" for note-taking prompts
func FormatTurnLine(turn models.Turn) string {
	return fmt.Sprintf("@%s: %s", turn.AuthorID, turn.Content)
}

// FormatTurnLines joins turns one per line using FormatTurnLine
func FormatTurnLines(turns []models.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, FormatTurnLine(turn))
	}
	return strings.Join(lines, "\n")
}

// FormatMentionLines joins turns as "<@author>: content", the form chat users
// see and the assistant is asked to reply in
func FormatMentionLines(turns []models.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("<@%s>: %s", turn.AuthorID, turn.Content))
	}
	return strings.Join(lines, "\n")
}

// FormatProfiles joins profile sheets separated by a blank line
func FormatProfiles(profiles []models.CharacterProfile) string {
	sheets := make([]string, 0, len(profiles))
	for _, p := range profiles {
		sheets = append(sheets, p.Data)
	}
	return strings.Join(sheets, "\n\n")
}

// LastTurns returns at most n of the newest turns, oldest first
func LastTurns(turns []models.Turn, n int) []models.Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
