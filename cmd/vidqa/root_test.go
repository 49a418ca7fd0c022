package main

import (
	"bytes"
	"context"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/pipeline"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/qa"
)

const rickID = "dQw4w9WgXcQ"

type fakeRunner struct {
	events []progress.Event
	gotURL string
	waited bool
}

func (f *fakeRunner) Run(_ context.Context, url string) iter.Seq[progress.Event] {
	f.gotURL = url
	return func(yield func(progress.Event) bool) {
		for _, ev := range f.events {
			if !yield(ev) {
				return
			}
		}
	}
}

func (f *fakeRunner) Wait() { f.waited = true }

type mapStore map[string]string

func (m mapStore) Lookup(_ context.Context, id string) (string, bool) {
	v, ok := m[id]
	return v, ok
}
func (m mapStore) Store(_ context.Context, id, text string) error { m[id] = text; return nil }
func (m mapStore) Delete(_ context.Context, id string) error      { delete(m, id); return nil }

type echoAsker struct{}

func (echoAsker) Ask(_ context.Context, transcript, question string) (string, error) {
	return question + " -> " + transcript, nil
}

func execute(t *testing.T, a *app, args ...string) (stdout, stderr string, cfg engine.Config, err error) {
	t.Helper()
	open := func(_ context.Context, c engine.Config) (*app, error) {
		cfg = c
		return a, nil
	}
	cmd := newRootCmd(open)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), cfg, err
}

func successRun() *fakeRunner {
	return &fakeRunner{events: []progress.Event{
		progress.DownloadProgress{Percent: 50},
		progress.DownloadProgress{Percent: 100},
		progress.TranscriptionProgress{Percent: 100},
		progress.Done{VideoID: rickID, Transcript: "hello world"},
	}}
}

func TestTranscribePrintsTranscriptAndProgress(t *testing.T) {
	runner := successRun()
	a := &app{store: mapStore{}, runner: runner}

	stdout, stderr, _, err := execute(t, a, "transcribe", "https://youtu.be/"+rickID)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", stdout)
	assert.Equal(t, "download  50%\ndownload 100%\ntranscribe 100%\n", stderr)
	assert.Equal(t, "https://youtu.be/"+rickID, runner.gotURL)
	assert.True(t, runner.waited)
}

func TestTranscribeQuietToFile(t *testing.T) {
	a := &app{store: mapStore{}, runner: successRun()}
	path := filepath.Join(t.TempDir(), "out.txt")

	stdout, stderr, _, err := execute(t, a, "transcribe", "-q", "-o", path, "https://youtu.be/"+rickID)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestTranscribeFailure(t *testing.T) {
	runner := &fakeRunner{events: []progress.Event{progress.Error{Err: pipeline.ErrInvalidIdentifier}}}
	a := &app{store: mapStore{}, runner: runner}

	_, stderr, _, err := execute(t, a, "transcribe", "https://example.com")
	require.ErrorIs(t, err, pipeline.ErrInvalidIdentifier)
	assert.Contains(t, stderr, pipeline.ErrInvalidIdentifier.Error())
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv("OFFLINE", "false")
	t.Setenv("CACHE_BACKEND", "file")
	a := &app{store: mapStore{}, runner: successRun()}

	_, _, cfg, err := execute(t, a, "--offline", "--cache-backend", "SQLite", "transcribe", "-q", rickID)
	require.NoError(t, err)
	assert.True(t, cfg.Offline)
	assert.Equal(t, "sqlite", cfg.CacheBackend)
}

func TestAsk(t *testing.T) {
	a := &app{store: mapStore{}, runner: successRun(), asker: echoAsker{}}

	stdout, _, _, err := execute(t, a, "ask", "https://youtu.be/"+rickID, "what", "is", "it?")
	require.NoError(t, err)
	assert.Equal(t, "what is it? -> hello world\n", stdout)
}

func TestAskWithoutModel(t *testing.T) {
	a := &app{store: mapStore{}, runner: successRun()}

	_, _, _, err := execute(t, a, "ask", "https://youtu.be/"+rickID, "why?")
	require.ErrorIs(t, err, qa.ErrNotConfigured)
}

func TestReset(t *testing.T) {
	store := mapStore{rickID: "hello world"}
	a := &app{store: store, runner: &fakeRunner{}}

	stdout, _, _, err := execute(t, a, "reset", "https://www.youtube.com/watch?v="+rickID)
	require.NoError(t, err)
	assert.Equal(t, "removed "+rickID+"\n", stdout)
	assert.NotContains(t, store, rickID)

	store[rickID] = "again"
	stdout, _, _, err = execute(t, a, "reset", rickID)
	require.NoError(t, err)
	assert.Equal(t, "removed "+rickID+"\n", stdout)
	assert.NotContains(t, store, rickID)

	_, _, _, err = execute(t, a, "reset", "https://example.com/nothing")
	require.ErrorIs(t, err, pipeline.ErrInvalidIdentifier)
}
