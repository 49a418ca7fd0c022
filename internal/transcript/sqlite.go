package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps transcripts in a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("transcript: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS transcripts (
		video_id   TEXT PRIMARY KEY,
		transcript TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Lookup(ctx context.Context, id string) (string, bool) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript FROM transcripts WHERE video_id = ?`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return miss("sqlite", id, err)
	}
	if text == "" {
		return miss("sqlite", id, fmt.Errorf("%w: empty transcript", ErrCorrupt))
	}
	return text, true
}

func (s *SQLiteStore) Store(ctx context.Context, id, text string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (video_id, transcript, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(video_id) DO UPDATE SET transcript = excluded.transcript, updated_at = excluded.updated_at`,
		id, text, now, now)
	if err != nil {
		return fmt.Errorf("transcript: sqlite upsert %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE video_id = ?`, id); err != nil {
		return fmt.Errorf("transcript: sqlite delete %s: %w", id, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
