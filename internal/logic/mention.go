package logic

import (
	"regexp"
	"strings"
)

// ignoredKeywords mark game-master messages as out-of-character chatter
var ignoredKeywords = []string{"aside", "earmuffs", "gmignore"}

// RetryCommand re-runs the last game-master turn without storing a new user turn
const RetryCommand = "retry"

// AgentMention returns the in-band mention token for the agent
func AgentMention(agentID string) string {
	return "<@" + agentID + ">"
}

// MentionsAgent reports whether content addresses the agent directly
func MentionsAgent(content, agentID string) bool {
	if agentID == "" {
		return false
	}
	return strings.Contains(content, AgentMention(agentID)) || strings.Contains(content, "<@!"+agentID+">")
}

// StripAgentMention removes every mention of the agent and trims the result
func StripAgentMention(content, agentID string) string {
	if agentID == "" {
		return strings.TrimSpace(content)
	}
	content = strings.ReplaceAll(content, AgentMention(agentID), "")
	content = strings.ReplaceAll(content, "<@!"+agentID+">", "")
	return strings.TrimSpace(content)
}

var setRolePattern = regexp.MustCompile(`^<@!?([^>]+)>\s*setrole:\s*(\S+)`)

// ParseSetRole recognizes "<@agent> setrole:<role>" and returns the requested role.
// The mention must lead the message.
func ParseSetRole(content, agentID string) (string, bool) {
	if agentID == "" {
		return "", false
	}
	match := setRolePattern.FindStringSubmatch(strings.TrimSpace(content))
	if match == nil || match[1] != agentID {
		return "", false
	}
	return strings.ToLower(match[2]), true
}

// HasIgnoreKeyword reports whether a game-master message should be ignored entirely
func HasIgnoreKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, keyword := range ignoredKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsRetry reports whether content is the retry command
func IsRetry(content string) bool {
	return strings.EqualFold(strings.TrimSpace(content), RetryCommand)
}
