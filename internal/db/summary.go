package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
)

// GetSummary returns the room's campaign summary, or "" when none was stored yet
func (d *DB) GetSummary(ctx context.Context, roomID string) (string, error) {
	return WithLockResult(d, func() (string, error) {
		var text string
		err := d.db.QueryRowContext(ctx,
			`SELECT text FROM summaries WHERE room_id = ?`, roomID,
		).Scan(&text)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			d.logger.Error("GetSummary failed", zap.String("room_id", roomID), zap.Error(err))
			return "", err
		}
		return text, nil
	})
}

// SetSummary replaces the room's campaign summary
func (d *DB) SetSummary(ctx context.Context, roomID, text string) error {
	return d.WithLock(func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO summaries (room_id, text, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(room_id) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at
		`, roomID, text, time.Now().UTC())
		if err != nil {
			d.logger.Error("SetSummary failed", zap.String("room_id", roomID), zap.Error(err))
			return err
		}

		d.logger.Debug("SetSummary completed", zap.String("room_id", roomID), zap.Int("length", len(text)))
		return nil
	})
}
