package db

import (
	"fmt"

	"go.uber.org/zap"
)

// Migrate creates the schema. Only additive changes are applied.
func (d *DB) Migrate() error {
	return d.WithLock(func() error {
		statements := []string{
			`CREATE TABLE IF NOT EXISTS turns (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				room_id TEXT NOT NULL,
				author_id TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL CHECK(role IN ('user', 'assistant', 'agent')),
				content TEXT NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS summaries (
				room_id TEXT PRIMARY KEY,
				text TEXT NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS character_profiles (
				room_id TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				name TEXT NOT NULL,
				data TEXT NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS channel_roles (
				room_id TEXT PRIMARY KEY,
				role TEXT NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
		}

		for _, stmt := range statements {
			if _, err := d.db.Exec(stmt); err != nil {
				return err
			}
		}

		// Soft-delete flag arrived after the first schema revision
		if err := d.ensureColumn("turns", "deleted", "INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}

		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_turns_room_live ON turns(room_id, deleted, id)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_key ON character_profiles(room_id, owner_id, name)",
		}
		for _, idx := range indexes {
			if _, err := d.db.Exec(idx); err != nil {
				return err
			}
		}

		d.logger.Info("Migrate completed")
		return nil
	})
}

// ensureColumn adds column to table if it doesn't exist yet. Caller holds the lock.
func (d *DB) ensureColumn(table, column, definition string) error {
	rows, err := d.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}

	columnExists := false
	for rows.Next() {
		var cid int
		var name string
		var dataType string
		var notNull int
		var defaultValue any
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			rows.Close()
			return err
		}
		if name == column {
			columnExists = true
			break
		}
	}
	rows.Close()

	if columnExists {
		return nil
	}

	_, err = d.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	if err != nil {
		return err
	}
	d.logger.Info("Column added", zap.String("table", table), zap.String("column", column))
	return nil
}
