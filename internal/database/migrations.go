package database

import (
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	SQL     string
}

var migrations = []Migration{
	{
		Version: 1,
		SQL: `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			pin_count INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pins (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			attachment_count INTEGER NOT NULL,
			archived_at DATETIME NOT NULL,
			deleted_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS attachments (
			url TEXT PRIMARY KEY,
			pin_id TEXT NOT NULL,
			local_path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			archived_at DATETIME NOT NULL,
			FOREIGN KEY (pin_id) REFERENCES pins(id)
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_channel ON snapshots(channel_id);
		CREATE INDEX IF NOT EXISTS idx_attachments_pin ON attachments(pin_id);`,
	},
	{
		Version: 2,
		SQL: `
		ALTER TABLE pins ADD COLUMN author_id TEXT NOT NULL DEFAULT '';
		ALTER TABLE pins ADD COLUMN author_name TEXT NOT NULL DEFAULT '';
		ALTER TABLE pins ADD COLUMN content TEXT NOT NULL DEFAULT '';
		ALTER TABLE pins ADD COLUMN posted_at TEXT NOT NULL DEFAULT '';

		ALTER TABLE attachments ADD COLUMN file_name TEXT NOT NULL DEFAULT '';
		ALTER TABLE attachments ADD COLUMN content_type TEXT NOT NULL DEFAULT '';
		ALTER TABLE attachments ADD COLUMN declared_size INTEGER NOT NULL DEFAULT 0;

		CREATE INDEX IF NOT EXISTS idx_pins_author ON pins(author_id);`,
	},
}

func applyMigrations(db *sql.DB) error {
	// Create migrations table if it doesn't exist
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range migrations {
		var version int
		err := db.QueryRow("SELECT version FROM schema_migrations WHERE version = ?", migration.Version).Scan(&version)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to check migration version: %w", err)
		}
		if err == nil {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
