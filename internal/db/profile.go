package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tabletop-agent/internal/models"
)

// UpsertProfile creates or overwrites the profile keyed by (room, owner, name)
func (d *DB) UpsertProfile(ctx context.Context, roomID, ownerID, name, data string) error {
	return d.WithLock(func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO character_profiles (room_id, owner_id, name, data, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(room_id, owner_id, name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, roomID, ownerID, name, data, time.Now().UTC())
		if err != nil {
			d.logger.Error("UpsertProfile failed",
				zap.String("room_id", roomID), zap.String("name", name), zap.Error(err))
			return err
		}

		d.logger.Debug("UpsertProfile completed",
			zap.String("room_id", roomID), zap.String("owner_id", ownerID), zap.String("name", name))
		return nil
	})
}

// ListProfiles returns every profile in the room
func (d *DB) ListProfiles(ctx context.Context, roomID string) ([]models.CharacterProfile, error) {
	return WithLockResult(d, func() ([]models.CharacterProfile, error) {
		rows, err := d.db.QueryContext(ctx, `
			SELECT room_id, owner_id, name, data, updated_at
			FROM character_profiles
			WHERE room_id = ?
		`, roomID)
		if err != nil {
			d.logger.Error("ListProfiles failed", zap.String("room_id", roomID), zap.Error(err))
			return nil, err
		}
		defer rows.Close()

		profiles := make([]models.CharacterProfile, 0)
		for rows.Next() {
			var p models.CharacterProfile
			if err := rows.Scan(&p.RoomID, &p.OwnerID, &p.Name, &p.Data, &p.UpdatedAt); err != nil {
				return nil, err
			}
			profiles = append(profiles, p)
		}

		return profiles, rows.Err()
	})
}
