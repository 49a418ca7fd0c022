// Package transcribe turns an audio artifact into transcript text through an
// external speech-to-text service.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// Terminal statuses besides the provider's own.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusEmpty     = "empty"
)

// Transcriber is a speech-to-text backend.
type Transcriber interface {
	Name() string
	// Transcribe returns the text of the audio at path. Progress goes to
	// report as a percentage; 100 is only reported on success.
	Transcribe(ctx context.Context, path string, report progress.Func) (string, error)
}

// FailedError is a transcription that ended in a non-completed status.
type FailedError struct {
	Status  string
	Message string
	Err     error
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return "transcription failed: " + e.Status
	}
	return fmt.Sprintf("transcription failed (%s): %s", e.Status, e.Message)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Run transcribes under timeout and normalizes every failure into a
// *FailedError.
func Run(ctx context.Context, t Transcriber, timeout time.Duration, path string, report progress.Func) (string, error) {
	if report == nil {
		report = progress.Discard
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	engine.IncrTranscriptions()
	start := time.Now()
	text, err := t.Transcribe(ctx, path, report)
	if err == nil && strings.TrimSpace(text) == "" {
		err = &FailedError{Status: StatusEmpty, Message: "the service returned no text"}
	}
	if err != nil {
		engine.IncrTranscriptionFails()
		err = normalize(ctx, err, timeout)
		slog.Warn("transcribe: failed", slog.String("backend", t.Name()),
			slog.Duration("elapsed", time.Since(start)), slog.Any("error", err))
		return "", err
	}
	slog.Info("transcribe: completed", slog.String("backend", t.Name()),
		slog.Duration("elapsed", time.Since(start)), slog.Int("chars", len(text)))
	return text, nil
}

func normalize(ctx context.Context, err error, timeout time.Duration) error {
	var fe *FailedError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		msg := "deadline exceeded"
		if timeout > 0 {
			msg = fmt.Sprintf("no result within %s", timeout)
		}
		return &FailedError{Status: StatusTimeout, Message: msg, Err: err}
	}
	return &FailedError{Status: StatusError, Message: err.Error(), Err: err}
}

// Ramp is the synthetic progress estimate used while a provider gives no
// real progress. It rises with elapsed time, halfway at 0.7 of expected,
// and stays below 99 until completion.
type Ramp struct {
	start    time.Time
	expected time.Duration
}

// NewRamp starts a ramp at start.
func NewRamp(start time.Time, expected time.Duration) Ramp {
	if expected <= 0 {
		expected = 2 * time.Minute
	}
	return Ramp{start: start, expected: expected}
}

// At returns the estimate for now, in [1,99].
func (r Ramp) At(now time.Time) float64 {
	frac := float64(now.Sub(r.start)) / float64(r.expected)
	if frac < 0 {
		frac = 0
	}
	est := 1 + 98*(1-math.Exp(-frac))
	return math.Min(est, 99)
}
