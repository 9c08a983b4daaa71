package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the archive index: a ledger of what each run wrote and deleted.
// The files on disk stay authoritative; nothing here drives skip decisions.
type DB struct {
	*sql.DB
	now func() time.Time
}

type Snapshot struct {
	ID        int64
	ChannelID string
	Path      string
	PinCount  int
	CreatedAt time.Time
}

type Pin struct {
	ID              string
	ChannelID       string
	AuthorID        string
	AuthorName      string
	Content         string
	PostedAt        string // as sent by Discord (ISO 8601)
	AttachmentCount int
	ArchivedAt      time.Time
	DeletedAt       sql.NullTime
}

// Attachment is one downloaded file. SizeBytes is what was written to disk;
// DeclaredSize is what Discord reported.
type Attachment struct {
	URL          string
	PinID        string
	FileName     string
	ContentType  string
	LocalPath    string
	SizeBytes    int64
	DeclaredSize int64
	Checksum     string
	ArchivedAt   time.Time
}

// New creates a new database connection and ensures schema is up to date
func New(dbPath string) (*DB, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &DB{DB: db, now: time.Now}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) RecordSnapshot(ctx context.Context, channelID, path string, pinCount int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO snapshots (channel_id, path, pin_count, created_at) VALUES (?, ?, ?, ?)`,
		channelID, path, pinCount, db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record snapshot %s: %w", path, err)
	}
	return nil
}

// RecordPin upserts a pin. Re-archiving an already deleted pin keeps its
// deleted_at untouched.
func (db *DB) RecordPin(ctx context.Context, p Pin) error {
	query := `
		INSERT INTO pins (id, channel_id, author_id, author_name, content, posted_at, attachment_count, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			author_id = excluded.author_id,
			author_name = excluded.author_name,
			content = excluded.content,
			posted_at = excluded.posted_at,
			attachment_count = excluded.attachment_count,
			archived_at = excluded.archived_at
	`
	_, err := db.ExecContext(ctx, query,
		p.ID, p.ChannelID, p.AuthorID, p.AuthorName, p.Content, p.PostedAt, p.AttachmentCount, db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record pin %s: %w", p.ID, err)
	}
	return nil
}

func (db *DB) RecordAttachment(ctx context.Context, a Attachment) error {
	query := `
		INSERT INTO attachments (url, pin_id, file_name, content_type, local_path, size_bytes, declared_size, checksum, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			pin_id = excluded.pin_id,
			file_name = excluded.file_name,
			content_type = excluded.content_type,
			local_path = excluded.local_path,
			size_bytes = excluded.size_bytes,
			declared_size = excluded.declared_size,
			checksum = excluded.checksum,
			archived_at = excluded.archived_at
	`
	_, err := db.ExecContext(ctx, query,
		a.URL, a.PinID, a.FileName, a.ContentType, a.LocalPath, a.SizeBytes, a.DeclaredSize, a.Checksum, db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record attachment %s: %w", a.URL, err)
	}
	return nil
}

func (db *DB) MarkPinDeleted(ctx context.Context, channelID, messageID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE pins SET deleted_at = ? WHERE id = ? AND channel_id = ?`,
		db.now().UTC(), messageID, channelID)
	if err != nil {
		return fmt.Errorf("failed to mark pin %s deleted: %w", messageID, err)
	}
	return nil
}

func (db *DB) GetPin(ctx context.Context, id string) (*Pin, error) {
	var p Pin
	err := db.QueryRowContext(ctx,
		`SELECT id, channel_id, author_id, author_name, content, posted_at, attachment_count, archived_at, deleted_at
		FROM pins WHERE id = ?`, id,
	).Scan(&p.ID, &p.ChannelID, &p.AuthorID, &p.AuthorName, &p.Content, &p.PostedAt,
		&p.AttachmentCount, &p.ArchivedAt, &p.DeletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get pin %s: %w", id, err)
	}
	return &p, nil
}

func (db *DB) ListSnapshots(ctx context.Context, channelID string) ([]Snapshot, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, channel_id, path, pin_count, created_at FROM snapshots WHERE channel_id = ? ORDER BY id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.ChannelID, &s.Path, &s.PinCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func (db *DB) GetAttachment(ctx context.Context, url string) (*Attachment, error) {
	var a Attachment
	err := db.QueryRowContext(ctx,
		`SELECT url, pin_id, file_name, content_type, local_path, size_bytes, declared_size, checksum, archived_at
		FROM attachments WHERE url = ?`, url,
	).Scan(&a.URL, &a.PinID, &a.FileName, &a.ContentType, &a.LocalPath, &a.SizeBytes, &a.DeclaredSize,
		&a.Checksum, &a.ArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", url, err)
	}
	return &a, nil
}
