package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tabletop-agent/internal/models"
)

// AppendTurn stores a new live turn at the end of the room's history
func (d *DB) AppendTurn(ctx context.Context, roomID, authorID string, role models.TurnRole, content string) (*models.Turn, error) {
	return WithLockResult(d, func() (*models.Turn, error) {
		now := time.Now().UTC()
		result, err := d.db.ExecContext(ctx,
			`INSERT INTO turns (room_id, author_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			roomID, authorID, string(role), content, now,
		)
		if err != nil {
			d.logger.Error("AppendTurn failed", zap.String("room_id", roomID), zap.Error(err))
			return nil, err
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}

		d.logger.Debug("AppendTurn completed",
			zap.String("room_id", roomID), zap.Int64("turn_id", id), zap.String("role", string(role)))

		return &models.Turn{
			ID:        id,
			RoomID:    roomID,
			AuthorID:  authorID,
			Role:      role,
			Content:   content,
			CreatedAt: now,
		}, nil
	})
}

// ListTurns returns the room's live turns in insertion order
func (d *DB) ListTurns(ctx context.Context, roomID string) ([]models.Turn, error) {
	return WithLockResult(d, func() ([]models.Turn, error) {
		rows, err := d.db.QueryContext(ctx, `
			SELECT id, room_id, author_id, role, content, created_at
			FROM turns
			WHERE room_id = ? AND deleted = 0
			ORDER BY id ASC
		`, roomID)
		if err != nil {
			d.logger.Error("ListTurns failed", zap.String("room_id", roomID), zap.Error(err))
			return nil, err
		}
		defer rows.Close()

		turns := make([]models.Turn, 0)
		for rows.Next() {
			var turn models.Turn
			var role string
			if err := rows.Scan(&turn.ID, &turn.RoomID, &turn.AuthorID, &role, &turn.Content, &turn.CreatedAt); err != nil {
				d.logger.Error("ListTurns failed: scan error", zap.String("room_id", roomID), zap.Error(err))
				return nil, err
			}
			turn.Role = models.TurnRole(role)
			turns = append(turns, turn)
		}

		return turns, rows.Err()
	})
}

// SoftDeleteOldest marks up to count of the oldest live turns as deleted and
// returns how many were marked. A non-positive count is a no-op.
func (d *DB) SoftDeleteOldest(ctx context.Context, roomID string, count int) (int64, error) {
	if count <= 0 {
		return 0, nil
	}

	return WithLockResult(d, func() (int64, error) {
		result, err := d.db.ExecContext(ctx, `
			UPDATE turns SET deleted = 1
			WHERE id IN (
				SELECT id FROM turns
				WHERE room_id = ? AND deleted = 0
				ORDER BY id ASC
				LIMIT ?
			)
		`, roomID, count)
		if err != nil {
			d.logger.Error("SoftDeleteOldest failed", zap.String("room_id", roomID), zap.Error(err))
			return 0, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}

		d.logger.Info("SoftDeleteOldest completed",
			zap.String("room_id", roomID), zap.Int("requested", count), zap.Int64("deleted", affected))
		return affected, nil
	})
}
