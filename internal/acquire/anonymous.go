package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

const (
	androidVersion = "20.10.38"
	androidUA      = "com.google.android.youtube/" + androidVersion + " (Linux; U; Android 11) gzip"
)

// Profile is one client emulation tried by the anonymous strategy.
// A nil Headers leaves the downloader's own headers untouched.
type Profile struct {
	Name    string
	Headers func() map[string]string
}

// DefaultProfiles lists the emulations in the order they are tried.
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "web", Headers: func() map[string]string {
			h := engine.ChromeHeaders()
			h["User-Agent"] = engine.RandomUserAgent()
			return h
		}},
		{Name: "android", Headers: func() map[string]string {
			return map[string]string{
				"User-Agent":               androidUA,
				"X-Youtube-Client-Name":    "3",
				"X-Youtube-Client-Version": androidVersion,
			}
		}},
		{Name: "default"},
	}
}

// Anonymous downloads without credentials, varying the client profile
// until one is served.
type Anonymous struct {
	HTTPClient *http.Client
	Profiles   []Profile

	newClient func(*http.Client) videoClient
}

func (a *Anonymous) Name() string  { return "anonymous" }
func (a *Anonymous) Enabled() bool { return true }

func (a *Anonymous) Attempt(ctx context.Context, req Request, report progress.Func) (string, error) {
	profiles := a.Profiles
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	newClient := a.newClient
	if newClient == nil {
		newClient = newYoutubeClient
	}

	var errs []error
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if req.abandoned() {
			errs = append(errs, ErrAbandoned)
			break
		}
		hc := cloneHTTPClient(a.HTTPClient)
		if p.Headers != nil {
			hc.Transport = &headerTransport{base: hc.Transport, headers: p.Headers()}
		}
		path, err := fetchAudio(ctx, newClient(hc), req, report)
		if err == nil {
			return path, nil
		}
		RemoveArtifacts(req.Dest)
		slog.Debug("acquire: anonymous profile failed",
			slog.String("profile", p.Name), slog.String("video_id", req.VideoID), slog.Any("error", err))
		errs = append(errs, fmt.Errorf("profile %s: %w", p.Name, err))
	}
	return "", errors.Join(errs...)
}

// headerTransport overrides request headers before delegating.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
