package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

type funcTranscriber func(ctx context.Context, path string, report progress.Func) (string, error)

func (f funcTranscriber) Name() string { return "fake" }
func (f funcTranscriber) Transcribe(ctx context.Context, path string, report progress.Func) (string, error) {
	return f(ctx, path, report)
}

func TestRunSuccess(t *testing.T) {
	tr := funcTranscriber(func(_ context.Context, _ string, report progress.Func) (string, error) {
		report(50)
		report(100)
		return "hello world", nil
	})
	var got []float64
	text, err := Run(context.Background(), tr, time.Second, "a.m4a", func(p float64) { got = append(got, p) })
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, []float64{50, 100}, got)
}

func TestRunNormalizesErrors(t *testing.T) {
	tests := []struct {
		name       string
		tr         funcTranscriber
		timeout    time.Duration
		wantStatus string
	}{
		{
			name: "provider failure kept",
			tr: func(context.Context, string, progress.Func) (string, error) {
				return "", &FailedError{Status: "error", Message: "audio too short"}
			},
			wantStatus: StatusError,
		},
		{
			name: "plain error wrapped",
			tr: func(context.Context, string, progress.Func) (string, error) {
				return "", errors.New("upload refused")
			},
			wantStatus: StatusError,
		},
		{
			name: "timeout",
			tr: func(ctx context.Context, _ string, _ progress.Func) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			timeout:    10 * time.Millisecond,
			wantStatus: StatusTimeout,
		},
		{
			name: "blank text",
			tr: func(context.Context, string, progress.Func) (string, error) {
				return "  \n", nil
			},
			wantStatus: StatusEmpty,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.tr, tt.timeout, "a.m4a", nil)
			var fe *FailedError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantStatus, fe.Status)
		})
	}
}

func TestRampMonotonicBounded(t *testing.T) {
	start := time.Unix(0, 0)
	r := NewRamp(start, time.Minute)
	prev := 0.0
	for s := 0; s <= 3600; s += 7 {
		v := r.At(start.Add(time.Duration(s) * time.Second))
		assert.GreaterOrEqual(t, v, prev)
		assert.GreaterOrEqual(t, v, 1.0)
		assert.LessOrEqual(t, v, 99.0)
		prev = v
	}
	assert.Equal(t, 1.0, r.At(start.Add(-time.Second)), "clock skew clamps to the floor")
}

func TestFromConfig(t *testing.T) {
	_, err := FromConfig(engine.Config{Transcriber: "assemblyai"})
	assert.Error(t, err, "missing key")

	tr, err := FromConfig(engine.Config{Transcriber: "assemblyai", AssemblyAIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "assemblyai", tr.Name())

	tr, err = FromConfig(engine.Config{Transcriber: "whisper"})
	require.NoError(t, err)
	assert.Equal(t, "whisper", tr.Name())

	_, err = FromConfig(engine.Config{Transcriber: "nope"})
	assert.Error(t, err)
}
