// Package acquire downloads a video's audio track through an ordered chain
// of independent strategies.
package acquire

import (
	"context"
	"os"
	"path/filepath"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// Request describes one acquisition.
type Request struct {
	URL     string // canonical watch URL
	VideoID string
	// Dest is the artifact path without extension. Strategies append the
	// container extension for the final file and ".part" while writing.
	Dest string
	// Abandoned, when set, reports that nobody is waiting for the result.
	// It is checked between attempts; an attempt in flight always finishes.
	Abandoned func() bool
}

func (r Request) abandoned() bool {
	return r.Abandoned != nil && r.Abandoned()
}

// Strategy is one independent way of obtaining the audio artifact.
type Strategy interface {
	Name() string
	// Enabled reports whether the strategy is configured for this process.
	Enabled() bool
	// Attempt returns the path of a complete artifact. Intermediate progress
	// goes to report as a percentage in [0,100).
	Attempt(ctx context.Context, req Request, report progress.Func) (string, error)
}

// RemoveArtifacts deletes every file derived from dest, finished or partial.
func RemoveArtifacts(dest string) {
	matches, _ := filepath.Glob(globEscape(dest) + ".*")
	for _, m := range matches {
		os.Remove(m)
	}
}

func globEscape(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// NewDefaultChain wires the canonical order: explicit credential, browser
// sessions, then anonymous client profiles.
func NewDefaultChain(c engine.Config) *Chain {
	return NewChain(c.Offline, c.StrategyTimeout,
		&Credential{Cookies: c.Cookies, HTTPClient: c.HTTPClient},
		&Browser{Enable: c.EnableBrowserCookies, Browsers: c.Browsers, Bin: c.YtDlpBin},
		&Anonymous{HTTPClient: c.HTTPClient},
	)
}
