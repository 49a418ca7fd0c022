package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vidqa/internal/acquire"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/transcribe"
)

const rickID = "dQw4w9WgXcQ"

type memStore struct {
	mu       sync.Mutex
	data     map[string]string
	writes   int
	failSave error
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Lookup(_ context.Context, id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[id]
	return v, ok
}

func (m *memStore) Store(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failSave != nil {
		return m.failSave
	}
	m.data[id] = text
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

type fakeAcquirer struct {
	calls    atomic.Int32
	progress []float64
	err      error
	lastPath atomic.Value
	// afterFirst runs after the first progress report.
	afterFirst func()
}

func (f *fakeAcquirer) Acquire(_ context.Context, req acquire.Request, report progress.Func) (string, error) {
	f.calls.Add(1)
	for i, p := range f.progress {
		report(p)
		if i == 0 && f.afterFirst != nil {
			f.afterFirst()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	path := req.Dest + ".m4a"
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	f.lastPath.Store(path)
	report(100)
	return path, nil
}

type fakeTranscriber struct {
	calls    atomic.Int32
	progress []float64
	text     string
	err      error
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(_ context.Context, path string, report progress.Func) (string, error) {
	f.calls.Add(1)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	for _, p := range f.progress {
		report(p)
	}
	if f.err != nil {
		return "", f.err
	}
	report(100)
	return f.text, nil
}

type fakeCaptions struct {
	text string
	err  error
}

func (f fakeCaptions) Fetch(context.Context, string) (string, error) { return f.text, f.err }

func newTestPipeline(t *testing.T, store *memStore, acq *fakeAcquirer, tr *fakeTranscriber) *Pipeline {
	t.Helper()
	return &Pipeline{
		Store:       store,
		Acquirer:    acq,
		Transcriber: tr,
		DownloadDir: t.TempDir(),
	}
}

func collectAll(p *Pipeline, url string) []progress.Event {
	var evs []progress.Event
	for ev := range p.Run(context.Background(), url) {
		evs = append(evs, ev)
	}
	return evs
}

func TestCacheHitSequence(t *testing.T) {
	store := newMemStore()
	store.data[rickID] = "cached text"
	acq := &fakeAcquirer{}
	tr := &fakeTranscriber{}
	p := newTestPipeline(t, store, acq, tr)

	evs := collectAll(p, "https://www.youtube.com/watch?v="+rickID)
	assert.Equal(t, []progress.Event{
		progress.DownloadProgress{Percent: 100},
		progress.TranscriptionProgress{Percent: 100},
		progress.Done{VideoID: rickID, Transcript: "cached text", Cached: true},
	}, evs)
	assert.Zero(t, acq.calls.Load(), "no strategy may run on a cache hit")
	assert.Zero(t, tr.calls.Load())
}

func TestOfflineMiss(t *testing.T) {
	acq := &fakeAcquirer{}
	p := newTestPipeline(t, newMemStore(), acq, &fakeTranscriber{})
	p.Offline = true

	evs := collectAll(p, "https://youtu.be/"+rickID)
	require.Len(t, evs, 1)
	ev, ok := evs[0].(progress.Error)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, acquire.ErrOfflineUnavailable)
	assert.Zero(t, acq.calls.Load())
}

func TestOfflineHit(t *testing.T) {
	store := newMemStore()
	store.data[rickID] = "cached"
	p := newTestPipeline(t, store, &fakeAcquirer{}, nil)
	p.Offline = true

	evs := collectAll(p, "https://youtu.be/"+rickID)
	require.Len(t, evs, 3)
	assert.Equal(t, progress.Done{VideoID: rickID, Transcript: "cached", Cached: true}, evs[2])
}

func TestInvalidURL(t *testing.T) {
	for _, url := range []string{"https://example.com/channel", "", "not a url"} {
		t.Run(url, func(t *testing.T) {
			acq := &fakeAcquirer{}
			p := newTestPipeline(t, newMemStore(), acq, &fakeTranscriber{})
			evs := collectAll(p, url)
			require.Len(t, evs, 1)
			ev, ok := evs[0].(progress.Error)
			require.True(t, ok)
			assert.ErrorIs(t, ev.Err, ErrInvalidIdentifier)
			assert.Zero(t, acq.calls.Load())
		})
	}
}

func TestEndToEnd(t *testing.T) {
	store := newMemStore()
	acq := &fakeAcquirer{progress: []float64{20, 60}}
	tr := &fakeTranscriber{progress: []float64{30, 70}, text: "hello world"}
	p := newTestPipeline(t, store, acq, tr)

	evs := collectAll(p, "https://youtu.be/"+rickID)
	assert.Equal(t, []progress.Event{
		progress.DownloadProgress{Percent: 20},
		progress.DownloadProgress{Percent: 60},
		progress.DownloadProgress{Percent: 100},
		progress.TranscriptionProgress{Percent: 30},
		progress.TranscriptionProgress{Percent: 70},
		progress.TranscriptionProgress{Percent: 100},
		progress.Done{VideoID: rickID, Transcript: "hello world"},
	}, evs)

	got, ok := store.Lookup(context.Background(), rickID)
	require.True(t, ok)
	assert.Equal(t, "hello world", got)

	path, _ := acq.lastPath.Load().(string)
	require.NotEmpty(t, path)
	assert.NoFileExists(t, path, "audio artifact must be removed after the run")
}

func TestProgressOrdering(t *testing.T) {
	acq := &fakeAcquirer{progress: []float64{5, 3, 5, math.NaN(), 50.9, 250, -1}}
	tr := &fakeTranscriber{progress: []float64{90, 10, 99.99, 40}, text: "x"}
	p := newTestPipeline(t, newMemStore(), acq, tr)

	evs := collectAll(p, "https://youtu.be/"+rickID)
	require.NotEmpty(t, evs)

	terminals := 0
	lastDL, lastTR := -1, -1
	seenTR := false
	for i, ev := range evs {
		switch ev := ev.(type) {
		case progress.DownloadProgress:
			assert.False(t, seenTR, "download after transcription at %d", i)
			assert.Greater(t, ev.Percent, lastDL)
			assert.LessOrEqual(t, ev.Percent, 100)
			lastDL = ev.Percent
		case progress.TranscriptionProgress:
			seenTR = true
			assert.Greater(t, ev.Percent, lastTR)
			assert.LessOrEqual(t, ev.Percent, 100)
			lastTR = ev.Percent
		case progress.Done, progress.Error:
			terminals++
			assert.Equal(t, len(evs)-1, i, "terminal event must be last")
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, 100, lastDL)
	assert.Equal(t, 100, lastTR)
}

func TestTranscriptionFailure(t *testing.T) {
	store := newMemStore()
	acq := &fakeAcquirer{progress: []float64{50}}
	tr := &fakeTranscriber{progress: []float64{10}, err: &transcribe.FailedError{Status: "error", Message: "bad audio"}}
	p := newTestPipeline(t, store, acq, tr)

	evs := collectAll(p, "https://youtu.be/"+rickID)
	last, ok := evs[len(evs)-1].(progress.Error)
	require.True(t, ok)
	var fe *transcribe.FailedError
	require.ErrorAs(t, last.Err, &fe)
	assert.Equal(t, "error", fe.Status)
	assert.Contains(t, last.Message(), "bad audio")

	assert.Zero(t, store.writes, "failed transcription must not be cached")
	for _, ev := range evs {
		if tp, ok := ev.(progress.TranscriptionProgress); ok {
			assert.Less(t, tp.Percent, 100)
		}
	}
	path, _ := acq.lastPath.Load().(string)
	assert.NoFileExists(t, path)
}

func TestAcquisitionExhausted(t *testing.T) {
	exhausted := &acquire.ExhaustedError{Attempts: []acquire.Attempt{
		{Strategy: "anonymous", Cause: acquire.CauseAccessDenied, Err: errors.New("403")},
	}}
	tr := &fakeTranscriber{}
	p := newTestPipeline(t, newMemStore(), &fakeAcquirer{err: exhausted}, tr)

	evs := collectAll(p, "https://youtu.be/"+rickID)
	require.Len(t, evs, 1)
	ev := evs[0].(progress.Error)
	var ex *acquire.ExhaustedError
	require.ErrorAs(t, ev.Err, &ex)
	assert.Zero(t, tr.calls.Load())
}

func TestCacheWriteFailureStillDone(t *testing.T) {
	store := newMemStore()
	store.failSave = errors.New("read-only filesystem")
	p := newTestPipeline(t, store, &fakeAcquirer{}, &fakeTranscriber{text: "hello world"})

	evs := collectAll(p, "https://youtu.be/"+rickID)
	done, ok := evs[len(evs)-1].(progress.Done)
	require.True(t, ok)
	assert.Equal(t, "hello world", done.Transcript)
	assert.Equal(t, 1, store.writes)
}

func TestEarlyConsumerExit(t *testing.T) {
	store := newMemStore()
	acq := &fakeAcquirer{progress: []float64{10, 40, 80}}
	tr := &fakeTranscriber{text: "never"}
	p := newTestPipeline(t, store, acq, tr)

	for ev := range p.Run(context.Background(), "https://youtu.be/"+rickID) {
		_, isDownload := ev.(progress.DownloadProgress)
		require.True(t, isDownload)
		break
	}
	p.Wait()

	assert.Equal(t, int32(1), acq.calls.Load(), "in-flight stage finishes")
	assert.Zero(t, tr.calls.Load(), "no new stage starts")
	path, _ := acq.lastPath.Load().(string)
	require.NotEmpty(t, path)
	assert.NoFileExists(t, path)
	entries, err := os.ReadDir(p.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// gatedStrategy reports once, then optionally waits for release before
// returning err or an artifact.
type gatedStrategy struct {
	name    string
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (g *gatedStrategy) Name() string  { return g.name }
func (g *gatedStrategy) Enabled() bool { return true }

func (g *gatedStrategy) Attempt(_ context.Context, req acquire.Request, report progress.Func) (string, error) {
	g.calls.Add(1)
	report(10)
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return "", g.err
	}
	path := req.Dest + ".m4a"
	return path, os.WriteFile(path, []byte("audio"), 0o644)
}

func TestConsumerExitSkipsRemainingStrategies(t *testing.T) {
	release := make(chan struct{})
	first := &gatedStrategy{name: "credential", release: release, err: errors.New("HTTP 403 Forbidden")}
	second := &gatedStrategy{name: "anonymous"}
	tr := &fakeTranscriber{text: "never"}
	p := &Pipeline{
		Store:       newMemStore(),
		Acquirer:    acquire.NewChain(false, time.Minute, first, second),
		Transcriber: tr,
		DownloadDir: t.TempDir(),
	}

	for ev := range p.Run(context.Background(), "https://youtu.be/"+rickID) {
		require.Equal(t, progress.DownloadProgress{Percent: 10}, ev)
		break
	}
	close(release)
	p.Wait()

	assert.Equal(t, int32(1), first.calls.Load(), "in-flight strategy finishes")
	assert.Zero(t, second.calls.Load(), "no strategy starts after the consumer left")
	assert.Zero(t, tr.calls.Load())
	entries, err := os.ReadDir(p.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCallerCancelStopsEmitting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	acq := &fakeAcquirer{progress: []float64{10, 40}, afterFirst: cancel}
	tr := &fakeTranscriber{text: "x"}
	p := newTestPipeline(t, newMemStore(), acq, tr)

	var evs []progress.Event
	for ev := range p.Run(ctx, "https://youtu.be/"+rickID) {
		evs = append(evs, ev)
	}
	p.Wait()

	assert.LessOrEqual(t, len(evs), 1)
	assert.Zero(t, tr.calls.Load())
}

func TestCaptionsShortcut(t *testing.T) {
	store := newMemStore()
	acq := &fakeAcquirer{}
	p := newTestPipeline(t, store, acq, &fakeTranscriber{})
	p.Captions = fakeCaptions{text: "published captions"}

	evs := collectAll(p, "https://youtu.be/"+rickID)
	require.Len(t, evs, 3)
	assert.Equal(t, progress.Done{VideoID: rickID, Transcript: "published captions"}, evs[2])
	assert.Zero(t, acq.calls.Load())
	got, _ := store.Lookup(context.Background(), rickID)
	assert.Equal(t, "published captions", got)
}

func TestCaptionsFailureFallsThrough(t *testing.T) {
	acq := &fakeAcquirer{}
	p := newTestPipeline(t, newMemStore(), acq, &fakeTranscriber{text: "from audio"})
	p.Captions = fakeCaptions{err: errors.New("no captions")}

	done, err := Collect(p.Run(context.Background(), "https://youtu.be/"+rickID), nil)
	require.NoError(t, err)
	assert.Equal(t, "from audio", done.Transcript)
	assert.Equal(t, int32(1), acq.calls.Load())
}

func TestConcurrentRunsSameID(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(t, store, &fakeAcquirer{progress: []float64{50}}, &fakeTranscriber{text: "same"})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := Collect(p.Run(context.Background(), "https://youtu.be/"+rickID), nil)
			assert.NoError(t, err)
			assert.Equal(t, "same", done.Transcript)
		}()
	}
	wg.Wait()
	p.Wait()
	got, _ := store.Lookup(context.Background(), rickID)
	assert.Equal(t, "same", got)
}

func TestCollect(t *testing.T) {
	store := newMemStore()
	store.data[rickID] = "cached"
	p := newTestPipeline(t, store, &fakeAcquirer{}, &fakeTranscriber{})

	var names []string
	done, err := Collect(p.Run(context.Background(), rickID), func(ev progress.Event) {
		names = append(names, progress.Name(ev))
	})
	require.Error(t, err, "a bare id is not a URL")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.Empty(t, done.Transcript)

	done, err = Collect(p.Run(context.Background(), "https://m.youtube.com/watch?v="+rickID+"&t=42"), nil)
	require.NoError(t, err)
	assert.True(t, done.Cached)
	assert.Equal(t, []string{"error"}, names)
}
