package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/anatolykoptev/go_vidqa/internal/videoid"
)

// FileStore keeps one JSON document per video in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Lookup(_ context.Context, id string) (string, bool) {
	if !videoid.Valid(id) {
		return "", false
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false
	}
	if err != nil {
		return miss("file", id, err)
	}
	text, err := decodeRecord(id, data)
	if err != nil {
		return miss("file", id, err)
	}
	return text, true
}

// Store writes to a temp file in the same directory and renames it over the
// target, so readers never observe a half-written document.
func (s *FileStore) Store(_ context.Context, id, text string) error {
	if !videoid.Valid(id) {
		return fmt.Errorf("transcript: invalid id %q", id)
	}
	data, err := encodeRecord(id, text)
	if err != nil {
		return fmt.Errorf("transcript: encode %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("transcript: temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("transcript: write %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("transcript: sync %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("transcript: close %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("transcript: rename %s: %w", id, err)
	}
	slog.Debug("transcript: saved", slog.String("backend", "file"), slog.String("id", id))
	return nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if !videoid.Valid(id) {
		return fmt.Errorf("transcript: invalid id %q", id)
	}
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("transcript: delete %s: %w", id, err)
	}
	return nil
}
