package logic

import (
	"strings"

	"tabletop-agent/internal/models"
)

// MergeTurns folds stored turns into a strictly alternating conversation.
//
// seed messages are copied first. Blank turns are dropped, user turns map to
// the user role and everything else to the assistant role, and consecutive
// turns of the same role are joined with a newline into one block. A turn
// authored by agentID is labeled with AgentPlaceholder; a turn without an
// author carries no label.
func MergeTurns(seed []models.ChatMessage, turns []models.Turn, agentID string) []models.ChatMessage {
	merged := make([]models.ChatMessage, 0, len(seed)+len(turns))
	for _, msg := range seed {
		merged = appendBlock(merged, msg.Role, msg.Content)
	}

	for _, turn := range turns {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}

		role := models.ChatRoleAssistant
		if turn.Role == models.TurnRoleUser {
			role = models.ChatRoleUser
		}

		merged = appendBlock(merged, role, labelTurn(turn, agentID))
	}

	return merged
}

func labelTurn(turn models.Turn, agentID string) string {
	author := turn.AuthorID
	if author == "" {
		return turn.Content
	}
	if agentID != "" && author == agentID {
		author = AgentPlaceholder
	}
	return "@" + author + ": " + turn.Content
}

func appendBlock(merged []models.ChatMessage, role models.ChatRole, content string) []models.ChatMessage {
	if n := len(merged); n > 0 && merged[n-1].Role == role {
		merged[n-1].Content += "\n" + content
		return merged
	}
	return append(merged, models.ChatMessage{Role: role, Content: content})
}
