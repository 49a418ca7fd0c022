package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/pipeline"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/qa"
	"github.com/anatolykoptev/go_vidqa/internal/transcript"
)

type runner interface {
	Run(ctx context.Context, url string) iter.Seq[progress.Event]
	Wait()
}

type asker interface {
	Ask(ctx context.Context, transcript, question string) (string, error)
}

// app is what one command invocation works with. asker is nil when no
// language model is configured.
type app struct {
	store  transcript.Store
	runner runner
	asker  asker
	closer io.Closer
}

func (a *app) Close() error {
	if a.runner != nil {
		a.runner.Wait()
	}
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

type openFunc func(ctx context.Context, c engine.Config) (*app, error)

func openApp(ctx context.Context, c engine.Config) (*app, error) {
	engine.Init(c)
	c = *engine.Cfg

	store, closer, err := transcript.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	p, err := pipeline.FromConfig(c, store)
	if err != nil {
		return nil, errors.Join(err, closer.Close())
	}
	a := &app{store: store, runner: p, closer: closer}
	if answerer, err := qa.FromConfig(c); err == nil {
		a.asker = answerer
	}
	return a, nil
}
