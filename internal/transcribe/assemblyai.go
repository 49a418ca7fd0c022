package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// job is a provider-side transcription snapshot.
type job struct {
	ID      string
	Status  string
	Text    string
	Message string
}

// assemblyAPI is the part of the AssemblyAI client the adapter uses.
type assemblyAPI interface {
	Submit(ctx context.Context, audio io.Reader) (job, error)
	Get(ctx context.Context, id string) (job, error)
}

type sdkAPI struct {
	client *aai.Client
}

func toJob(t aai.Transcript) job {
	return job{
		ID:      aai.ToString(t.ID),
		Status:  string(t.Status),
		Text:    aai.ToString(t.Text),
		Message: aai.ToString(t.Error),
	}
}

func (s sdkAPI) Submit(ctx context.Context, audio io.Reader) (job, error) {
	t, err := s.client.Transcripts.SubmitFromReader(ctx, audio, nil)
	if err != nil {
		return job{}, err
	}
	return toJob(t), nil
}

func (s sdkAPI) Get(ctx context.Context, id string) (job, error) {
	t, err := s.client.Transcripts.Get(ctx, id)
	if err != nil {
		return job{}, err
	}
	return toJob(t), nil
}

// AssemblyAI uploads the artifact to the hosted service and polls it.
type AssemblyAI struct {
	api          assemblyAPI
	pollInterval time.Duration
	expected     time.Duration
	now          func() time.Time
}

// NewAssemblyAI builds the adapter for apiKey.
func NewAssemblyAI(apiKey string, pollInterval, expected time.Duration) *AssemblyAI {
	return newAssemblyAI(sdkAPI{client: aai.NewClient(apiKey)}, pollInterval, expected)
}

func newAssemblyAI(api assemblyAPI, pollInterval, expected time.Duration) *AssemblyAI {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &AssemblyAI{api: api, pollInterval: pollInterval, expected: expected, now: time.Now}
}

func (a *AssemblyAI) Name() string { return "assemblyai" }

func (a *AssemblyAI) Transcribe(ctx context.Context, path string, report progress.Func) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("assemblyai: open audio: %w", err)
	}
	defer f.Close()

	ramp := NewRamp(a.now(), a.expected)
	report(ramp.At(a.now()))

	j, err := a.api.Submit(ctx, f)
	if err != nil {
		return "", fmt.Errorf("assemblyai: submit: %w", err)
	}
	slog.Debug("assemblyai: submitted", slog.String("transcript_id", j.ID))

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		switch j.Status {
		case string(aai.TranscriptStatusCompleted):
			if j.Text == "" {
				return "", &FailedError{Status: StatusEmpty, Message: "completed without text"}
			}
			report(100)
			return j.Text, nil
		case string(aai.TranscriptStatusError):
			return "", &FailedError{Status: StatusError, Message: j.Message}
		case string(aai.TranscriptStatusQueued), string(aai.TranscriptStatusProcessing), "":
			report(ramp.At(a.now()))
		default:
			return "", &FailedError{Status: j.Status, Message: j.Message}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		next, err := engine.RetryDo(ctx, engine.DefaultRetryConfig, func() (job, error) {
			return a.api.Get(ctx, j.ID)
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return "", err
			}
			return "", fmt.Errorf("assemblyai: poll %s: %w", j.ID, err)
		}
		j = next
	}
}
