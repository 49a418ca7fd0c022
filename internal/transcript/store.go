// Package transcript persists transcripts keyed by video identifier.
//
// Every backend follows the same rules: lookups are exact-match, writes
// overwrite (last writer wins), and a record that cannot be decoded is
// reported as a miss rather than an error.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
)

// Store maps a video identifier to its transcript text.
type Store interface {
	// Lookup returns the transcript for id. Missing and unreadable records
	// are both a miss.
	Lookup(ctx context.Context, id string) (string, bool)
	// Store durably writes text for id, replacing any previous value.
	Store(ctx context.Context, id, text string) error
	// Delete removes the record for id. Administrative use only.
	Delete(ctx context.Context, id string) error
}

// ErrCorrupt marks a persisted record that could not be decoded.
var ErrCorrupt = errors.New("transcript: corrupt cache record")

// Record is the serialized form used by document backends.
type Record struct {
	VideoID    string `json:"video_id"`
	Transcript string `json:"transcript"`
}

func encodeRecord(id, text string) ([]byte, error) {
	return json.Marshal(Record{VideoID: id, Transcript: text})
}

// decodeRecord validates a stored document against the key it was read
// under. Anything else is ErrCorrupt.
func decodeRecord(id string, data []byte) (string, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.VideoID != id {
		return "", fmt.Errorf("%w: key %q holds record for %q", ErrCorrupt, id, rec.VideoID)
	}
	if rec.Transcript == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrCorrupt)
	}
	return rec.Transcript, nil
}

// miss logs why a lookup could not be served and counts it.
func miss(backend, id string, err error) (string, bool) {
	switch {
	case errors.Is(err, ErrCorrupt):
		engine.IncrCacheCorrupt()
		slog.Warn("transcript: corrupt record treated as miss",
			slog.String("backend", backend), slog.String("id", id), slog.Any("error", err))
	case err != nil:
		slog.Warn("transcript: lookup failed, treating as miss",
			slog.String("backend", backend), slog.String("id", id), slog.Any("error", err))
	}
	return "", false
}
