package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tabletop-agent/internal/logic"
)

const imageAttachmentName = "generated_image.png"

// sendText posts text in chunks of at most limit runes. It stops at the first
// failed chunk.
func sendText(ctx context.Context, transport Transport, roomID, text string, limit int) error {
	chunks := logic.ChunkMessage(text, limit)
	for i, chunk := range chunks {
		if err := transport.Send(ctx, roomID, Outbound{Text: chunk}); err != nil {
			return fmt.Errorf("failed to send chunk %d of %d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func sendImage(ctx context.Context, transport Transport, roomID string, data []byte) error {
	return transport.Send(ctx, roomID, Outbound{
		Attachments: []Attachment{{Name: imageAttachmentName, Data: data}},
	})
}

// typingHeartbeat returns a callback that shows a working indicator when the
// transport supports one
func typingHeartbeat(ctx context.Context, transport Transport, roomID string, logger *zap.Logger) func() {
	notifier, ok := transport.(TypingNotifier)
	if !ok {
		return nil
	}
	return func() {
		if err := notifier.Typing(ctx, roomID); err != nil {
			logger.Debug("Typing notification failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}
}
