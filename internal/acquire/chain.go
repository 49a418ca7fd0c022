package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

var (
	// ErrOfflineUnavailable is returned when offline mode forbids any download.
	ErrOfflineUnavailable = errors.New("offline mode: video is not cached and downloads are disabled")
	// ErrAbandoned is returned when the caller left before a strategy succeeded.
	ErrAbandoned = errors.New("acquire: abandoned by caller")
)

// Cause classifies why a strategy failed.
type Cause string

const (
	CauseNetwork      Cause = "network"
	CauseAccessDenied Cause = "access_denied"
	CauseRateLimited  Cause = "rate_limited"
	CauseNotFound     Cause = "not_found"
	CauseTimeout      Cause = "timeout"
	CauseUnknown      Cause = "unknown"
)

// Attempt records the outcome of one failed strategy.
type Attempt struct {
	Strategy string
	Cause    Cause
	Err      error
}

// ExhaustedError is returned when no strategy produced an artifact.
// Attempts are in the order they were tried.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "download failed: no download strategy is enabled"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Strategy, a.Cause)
	}
	return "download failed after trying every strategy (" + strings.Join(parts, "; ") + ")"
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Chain tries strategies in order until one succeeds.
type Chain struct {
	strategies []Strategy
	offline    bool
	timeout    time.Duration
}

// NewChain builds a chain. A zero timeout leaves attempts bounded only by ctx.
func NewChain(offline bool, timeout time.Duration, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, offline: offline, timeout: timeout}
}

// Strategies returns the names of the enabled strategies in order.
func (c *Chain) Strategies() []string {
	var names []string
	for _, s := range c.strategies {
		if s.Enabled() {
			names = append(names, s.Name())
		}
	}
	return names
}

// Acquire runs the chain. On success exactly one 100 is reported after
// whatever the winning strategy reported.
func (c *Chain) Acquire(ctx context.Context, req Request, report progress.Func) (string, error) {
	if c.offline {
		return "", ErrOfflineUnavailable
	}
	if report == nil {
		report = progress.Discard
	}

	var attempts []Attempt
	for _, s := range c.strategies {
		if !s.Enabled() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("acquire: %w", err)
		}
		if req.abandoned() {
			slog.Info("acquire: caller left, not starting next strategy",
				slog.String("strategy", s.Name()), slog.String("video_id", req.VideoID))
			return "", ErrAbandoned
		}

		engine.IncrStrategyAttempts()
		path, err := c.attempt(ctx, s, req, report)
		if err == nil {
			slog.Info("acquire: strategy succeeded",
				slog.String("strategy", s.Name()), slog.String("video_id", req.VideoID))
			report(100)
			return path, nil
		}

		engine.IncrStrategyFailures()
		RemoveArtifacts(req.Dest)
		cause := Classify(err)
		slog.Warn("acquire: strategy failed",
			slog.String("strategy", s.Name()),
			slog.String("video_id", req.VideoID),
			slog.String("cause", string(cause)),
			slog.Any("error", err))
		attempts = append(attempts, Attempt{Strategy: s.Name(), Cause: cause, Err: err})
	}
	return "", &ExhaustedError{Attempts: attempts}
}

func (c *Chain) attempt(ctx context.Context, s Strategy, req Request, report progress.Func) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	path, err := s.Attempt(ctx, req, report)
	if err == nil && path == "" {
		err = errors.New("strategy returned no artifact")
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return path, err
}

// Classify maps a strategy error to a Cause.
func Classify(err error) Cause {
	if err == nil {
		return CauseUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}

	var se *engine.StatusError
	if errors.As(err, &se) {
		if c := statusCause(se.StatusCode); c != CauseUnknown {
			return c
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CauseTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return CauseNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "too many requests", "rate limit", "rate-limit"):
		return CauseRateLimited
	case containsAny(msg, "403", "forbidden", "sign in", "login required", "private", "age-restricted",
		"members-only", "cipher", "signature", "cookies"):
		return CauseAccessDenied
	case containsAny(msg, "404", "not found", "unavailable", "no such", "does not exist", "no audio format"):
		return CauseNotFound
	case containsAny(msg, "timed out", "timeout", "deadline"):
		return CauseTimeout
	case containsAny(msg, "connection refused", "connection reset", "no route to host",
		"network is unreachable", "eof", "tls", "dial tcp"):
		return CauseNetwork
	}
	return CauseUnknown
}

func statusCause(code int) Cause {
	switch {
	case code == 429:
		return CauseRateLimited
	case code == 401 || code == 403:
		return CauseAccessDenied
	case code == 404 || code == 410:
		return CauseNotFound
	case code == 408 || code == 504:
		return CauseTimeout
	case code >= 500:
		return CauseNetwork
	}
	return CauseUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
