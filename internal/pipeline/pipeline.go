// Package pipeline runs one transcript request end to end: cache lookup,
// optional published captions, audio acquisition, transcription and cache
// write, streamed as progress events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_vidqa/internal/acquire"
	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/transcribe"
	"github.com/anatolykoptev/go_vidqa/internal/transcript"
	"github.com/anatolykoptev/go_vidqa/internal/videoid"
)

// ErrInvalidIdentifier means no video identifier could be found in the URL.
var ErrInvalidIdentifier = errors.New("invalid video URL: no video identifier found")

const (
	storeTimeout    = 30 * time.Second
	captionsTimeout = 45 * time.Second
)

// Acquirer produces a local audio artifact for a request.
type Acquirer interface {
	Acquire(ctx context.Context, req acquire.Request, report progress.Func) (string, error)
}

// CaptionSource fetches published caption text.
type CaptionSource interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// Pipeline holds the collaborators shared by every run. Only Store is shared
// state; runs are otherwise independent.
type Pipeline struct {
	Store       transcript.Store
	Acquirer    Acquirer
	Transcriber transcribe.Transcriber
	// Captions, when set, is tried before downloading anything.
	Captions          CaptionSource
	Offline           bool
	DownloadDir       string
	TranscribeTimeout time.Duration

	wg sync.WaitGroup
}

// RunInfo identifies one run. It is created once and never mutated.
type RunInfo struct {
	ID        string
	URL       string
	VideoID   string
	StartedAt time.Time
}

// Run returns the lazy event sequence for url. Work starts when the sequence
// is ranged over. Every sequence ends with exactly one Done or Error.
//
// Events are produced only as fast as they are consumed. If the consumer
// stops early, or ctx is cancelled, the stage in flight runs to completion
// under its own timeout, no further stage or download strategy starts, and
// temporary audio is removed.
func (p *Pipeline) Run(ctx context.Context, url string) iter.Seq[progress.Event] {
	return func(yield func(progress.Event) bool) {
		events := make(chan progress.Event)
		stop := make(chan struct{})
		out := &emitter{events: events, stop: stop, ctx: ctx}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer close(events)
			p.produce(ctx, url, out)
		}()

		defer close(stop)
		for ev := range events {
			if !yield(ev) {
				return
			}
		}
	}
}

// Wait blocks until every producer, including those whose consumer has gone
// away, has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// emitter hands events to the consumer until it goes away.
type emitter struct {
	events  chan<- progress.Event
	stop    <-chan struct{}
	ctx     context.Context
	stopped atomic.Bool
}

func (e *emitter) send(ev progress.Event) bool {
	if e.gone() {
		return false
	}
	select {
	case e.events <- ev:
		return true
	case <-e.stop:
	case <-e.ctx.Done():
	}
	e.stopped.Store(true)
	return false
}

// gone reports whether the consumer has left without blocking. Progress
// reporters may call it from their own goroutines.
func (e *emitter) gone() bool {
	if e.stopped.Load() {
		return true
	}
	select {
	case <-e.stop:
		e.stopped.Store(true)
	case <-e.ctx.Done():
		e.stopped.Store(true)
	default:
	}
	return e.stopped.Load()
}

func (p *Pipeline) produce(ctx context.Context, url string, out *emitter) {
	engine.IncrPipelineRuns()

	id, ok := videoid.Extract(url)
	if !ok {
		slog.Warn("pipeline: invalid url", slog.String("url", url))
		p.fail(out, nil, ErrInvalidIdentifier)
		return
	}
	run := RunInfo{ID: uuid.NewString(), URL: url, VideoID: id, StartedAt: time.Now()}
	log := slog.With(slog.String("run_id", run.ID), slog.String("video_id", run.VideoID))
	log.Info("pipeline: start")

	// Stages run detached from the caller so a disconnect cannot abort them
	// halfway; each stage bounds itself.
	work := context.WithoutCancel(ctx)

	// CacheCheck
	lookupCtx, cancel := context.WithTimeout(work, storeTimeout)
	text, hit := p.Store.Lookup(lookupCtx, run.VideoID)
	cancel()
	if hit {
		engine.IncrCacheHits()
		log.Info("pipeline: cache hit")
		p.complete(out, log, run, text, true)
		return
	}
	engine.IncrCacheMisses()
	if out.gone() {
		log.Info("pipeline: consumer left after cache check")
		return
	}

	if p.Offline {
		p.fail(out, log, acquire.ErrOfflineUnavailable)
		return
	}

	// Captions
	if p.Captions != nil {
		if text, ok := p.captions(work, log, run); ok {
			engine.IncrCaptionHits()
			p.save(work, log, run, text)
			p.complete(out, log, run, text, false)
			return
		}
		if out.gone() {
			return
		}
	}

	// Acquiring
	if err := os.MkdirAll(p.downloadDir(), 0o755); err != nil {
		p.fail(out, log, fmt.Errorf("download dir: %w", err))
		return
	}
	dest := filepath.Join(p.downloadDir(), run.VideoID+"-"+run.ID[:8])
	defer acquire.RemoveArtifacts(dest)

	download := progress.NewPhase(func(v int) { out.send(progress.DownloadProgress{Percent: v}) })
	audio, err := p.Acquirer.Acquire(work, acquire.Request{
		URL:       videoid.WatchURL(run.VideoID),
		VideoID:   run.VideoID,
		Dest:      dest,
		Abandoned: out.gone,
	}, download.Func())
	if errors.Is(err, acquire.ErrAbandoned) {
		log.Info("pipeline: consumer left during acquisition")
		return
	}
	if err != nil {
		p.fail(out, log, err)
		return
	}
	defer os.Remove(audio)
	download.Complete()
	log.Info("pipeline: audio acquired", slog.String("path", audio))

	if out.gone() {
		log.Info("pipeline: consumer left, skipping transcription")
		return
	}

	// Transcribing
	trans := progress.NewPhase(func(v int) { out.send(progress.TranscriptionProgress{Percent: v}) })
	text, err = transcribe.Run(work, p.Transcriber, p.TranscribeTimeout, audio, trans.Func())
	if err != nil {
		p.fail(out, log, err)
		return
	}
	trans.Complete()
	p.save(work, log, run, text)

	out.send(progress.Done{VideoID: run.VideoID, Transcript: text})
	log.Info("pipeline: done", slog.Duration("elapsed", time.Since(run.StartedAt)))
}

func (p *Pipeline) captions(ctx context.Context, log *slog.Logger, run RunInfo) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, captionsTimeout)
	defer cancel()
	text, err := p.Captions.Fetch(ctx, run.VideoID)
	if err != nil || text == "" {
		log.Info("pipeline: no published captions, downloading audio", slog.Any("error", err))
		return "", false
	}
	log.Info("pipeline: using published captions")
	return text, true
}

// save writes the transcript. A failed write is logged; the run still
// delivers the text.
func (p *Pipeline) save(ctx context.Context, log *slog.Logger, run RunInfo, text string) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := p.Store.Store(ctx, run.VideoID, text); err != nil {
		log.Error("pipeline: cache write failed", slog.Any("error", err))
	}
}

// complete emits the full-progress tail used when no work was needed.
func (p *Pipeline) complete(out *emitter, log *slog.Logger, run RunInfo, text string, cached bool) {
	if !out.send(progress.DownloadProgress{Percent: 100}) {
		return
	}
	if !out.send(progress.TranscriptionProgress{Percent: 100}) {
		return
	}
	out.send(progress.Done{VideoID: run.VideoID, Transcript: text, Cached: cached})
	log.Info("pipeline: done", slog.Bool("cached", cached), slog.Duration("elapsed", time.Since(run.StartedAt)))
}

func (p *Pipeline) fail(out *emitter, log *slog.Logger, err error) {
	engine.IncrPipelineFailures()
	if log != nil {
		log.Warn("pipeline: failed", slog.Any("error", err))
	}
	out.send(progress.Error{Err: err})
}

func (p *Pipeline) downloadDir() string {
	if p.DownloadDir == "" {
		return os.TempDir()
	}
	return p.DownloadDir
}
