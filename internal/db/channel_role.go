package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"tabletop-agent/internal/models"
)

// SetRoomRole assigns role to the room, replacing any previous assignment
func (d *DB) SetRoomRole(ctx context.Context, roomID string, role models.ChannelRole) error {
	return d.WithLock(func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO channel_roles (room_id, role, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(room_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
		`, roomID, string(role), time.Now().UTC())
		if err != nil {
			d.logger.Error("SetRoomRole failed", zap.String("room_id", roomID), zap.Error(err))
			return err
		}

		d.logger.Info("SetRoomRole completed", zap.String("room_id", roomID), zap.String("role", string(role)))
		return nil
	})
}

// GetRoomRole returns the room's role, or "" when the room has none
func (d *DB) GetRoomRole(ctx context.Context, roomID string) (models.ChannelRole, error) {
	return WithLockResult(d, func() (models.ChannelRole, error) {
		var role string
		err := d.db.QueryRowContext(ctx,
			`SELECT role FROM channel_roles WHERE room_id = ?`, roomID,
		).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			d.logger.Error("GetRoomRole failed", zap.String("room_id", roomID), zap.Error(err))
			return "", err
		}
		return models.ChannelRole(role), nil
	})
}
