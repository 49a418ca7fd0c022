// Package qa answers questions about a transcript with a hosted language
// model.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
)

var (
	ErrNoTranscript  = errors.New("no transcript available: process a video first")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNotConfigured = errors.New("question answering is not configured: set LLM_API_KEY")
)

// Completer sends one system+user prompt pair to a model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// Answerer is safe for concurrent use. Calls are spaced by the limiter.
type Answerer struct {
	llm        Completer
	limiter    *rate.Limiter
	maxContext int
}

// New builds an Answerer allowing one model call per interval.
func New(c Completer, interval time.Duration, maxContext int) *Answerer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Answerer{llm: c, limiter: rate.NewLimiter(limit, 1), maxContext: maxContext}
}

// FromConfig wires the go-kit LLM client from configuration.
func FromConfig(c engine.Config) (*Answerer, error) {
	if c.LLMAPIKey == "" {
		return nil, ErrNotConfigured
	}
	client := llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
		llm.WithMaxTokens(c.LLMMaxTokens),
		llm.WithTemperature(c.LLMTemperature),
		llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)
	complete := CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		return client.Complete(ctx, system, prompt,
			llm.WithChatTemperature(c.LLMTemperature),
			llm.WithChatMaxTokens(c.LLMMaxTokens),
		)
	})
	return New(complete, c.LLMRateInterval, c.MaxContextChars), nil
}

// slowCompletion is the latency above which a completion is logged.
const slowCompletion = 20 * time.Second

// Ask answers question from transcript.
func (a *Answerer) Ask(ctx context.Context, transcript, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if strings.TrimSpace(transcript) == "" {
		return "", ErrNoTranscript
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("qa: rate limit: %w", err)
	}

	excerpt := Excerpt(transcript, question, a.maxContext)
	engine.IncrLLMCalls()
	started := time.Now()
	var answer string
	err := engine.TrackOperation(ctx, "qa.complete", slowCompletion, func(ctx context.Context) error {
		var err error
		answer, err = a.llm.Complete(ctx, systemPrompt, fmt.Sprintf(userPrompt, excerpt, question))
		return err
	})
	if err != nil {
		engine.IncrLLMErrors()
		slog.Warn("qa: llm call failed", slog.Any("error", err))
		return "", fmt.Errorf("qa: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		engine.IncrLLMErrors()
		return "", errors.New("qa: model returned an empty answer")
	}
	slog.Debug("qa: answered", slog.Duration("elapsed", time.Since(started)),
		slog.Int("context_chars", len(excerpt)), slog.Int("transcript_chars", len(transcript)))
	return answer, nil
}
