package acquire

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// Credential downloads with an explicitly configured cookie bundle.
type Credential struct {
	// Cookies is a cookies.txt path or a raw Cookie header.
	Cookies    string
	HTTPClient *http.Client

	newClient func(*http.Client) videoClient
}

func (c *Credential) Name() string  { return "credential" }
func (c *Credential) Enabled() bool { return c.Cookies != "" }

func (c *Credential) Attempt(ctx context.Context, req Request, report progress.Func) (string, error) {
	cookies, err := LoadCookies(c.Cookies)
	if err != nil {
		return "", err
	}
	jar, err := NewCookieJar(cookies)
	if err != nil {
		return "", err
	}
	hc := cloneHTTPClient(c.HTTPClient)
	hc.Jar = jar

	newClient := c.newClient
	if newClient == nil {
		newClient = newYoutubeClient
	}
	path, err := fetchAudio(ctx, newClient(hc), req, report)
	if err != nil {
		return "", fmt.Errorf("credential download: %w", err)
	}
	return path, nil
}

// cloneHTTPClient copies base without its overall timeout; a download is
// bounded by the strategy context instead.
func cloneHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		return &http.Client{}
	}
	cp := *base
	cp.Timeout = 0
	return &cp
}
