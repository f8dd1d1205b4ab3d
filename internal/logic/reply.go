package logic

import (
	"fmt"
	"strings"

	"tabletop-agent/internal/models"
)

const (
	// ContinueSentinel is a narrative reply that asks for nothing to be posted
	ContinueSentinel = "CONTINUE"
	// ImageDirective separates narrative text from an inline image description
	ImageDirective = "IMAGE:"
	// MaxMessageLength is the longest chunk sent as one chat message
	MaxMessageLength = 2000
)

// SplitImageDirective cuts a narrative reply at the first IMAGE: marker
func SplitImageDirective(reply string) (text, image string) {
	text, image, _ = strings.Cut(reply, ImageDirective)
	return strings.TrimSpace(text), strings.TrimSpace(image)
}

// IsContinue reports whether the reply is the CONTINUE sentinel
func IsContinue(text string) bool {
	return strings.TrimSpace(text) == ContinueSentinel
}

// ChunkMessage splits text into trimmed pieces of at most limit runes, breaking
// on the last newline or space inside the window when one is reasonably far in.
func ChunkMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}

	var chunks []string
	rest := []rune(strings.TrimSpace(text))
	for len(rest) > 0 {
		if len(rest) <= limit {
			chunks = appendChunk(chunks, string(rest))
			break
		}

		cut := breakPoint(rest[:limit])
		chunks = appendChunk(chunks, string(rest[:cut]))
		rest = rest[cut:]
	}
	return chunks
}

func breakPoint(window []rune) int {
	for _, sep := range []rune{'\n', ' '} {
		for i := len(window) - 1; i >= len(window)/2; i-- {
			if window[i] == sep {
				return i + 1
			}
		}
	}
	return len(window)
}

func appendChunk(chunks []string, chunk string) []string {
	if trimmed := strings.TrimSpace(chunk); trimmed != "" {
		return append(chunks, trimmed)
	}
	return chunks
}

// BuildImagePrompt asks the retrieval engine to describe a picture of the current scene
func BuildImagePrompt(conversation []models.ChatMessage, narrative string, mode models.Mode) string {
	parts := make([]string, 0, len(conversation))
	for _, msg := range conversation {
		parts = append(parts, msg.Content)
	}

	style := "The image should be clear and detailed, highlighting an aspect of the current situation."
	if mode == models.ModeCombat {
		style = "The image should use a battle map style if it makes sense for the current situation."
	}

	return fmt.Sprintf(`Generate a prompt describing an image based on the following situation summary and DM response:
Situation Summary: %s
DM Response: %s

The prompt should be written like comma separated set of phrases, use descriptors and styles but don't use flowery language.
You can use parentheses followed by a number ex:(phrase)1.2 where the thing is something you want to emphasize and the number is between 1.1 and 2.0 level of emphasis
You can add ++ which squares the importance or +++ to cube it
Things that must not appear go after NEGATIVE: at the end.
If nothing is worth drawing, respond with nothing.
%s`, strings.Join(parts, " "), strings.TrimSpace(narrative), style)
}

// ImageRequestPrompt turns a user's drawing request into a rendering prompt
func ImageRequestPrompt(query string) string {
	return fmt.Sprintf(`You are an image prompt specialist. Rewrite the request below as a prompt for an image generator.
Write comma separated phrases with descriptors and styles, no flowery language.
If the request names an aspect ratio or seed, keep it as aspectratio:W:H or seed:N.
Things that must not appear go after NEGATIVE: at the end.
Respond with only the prompt.
Request: %s`, query)
}
