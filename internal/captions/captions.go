// Package captions fetches provider-published caption tracks as plain text.
//
// Two sources are tried: the watch page's embedded player response, then the
// ANDROID Innertube player endpoint. Tracks needing a browser PoToken are
// skipped.
package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
)

// ErrNoCaptions means the video publishes no usable caption track.
var ErrNoCaptions = errors.New("captions: no usable caption track")

// Client fetches captions over HTTP.
type Client struct {
	HTTP  *http.Client
	Langs []string
	// BaseURL overrides the video host origin.
	BaseURL string
	Retry   engine.RetryConfig
}

// New returns a Client using the shared HTTP client.
func New(hc *http.Client, langs []string) *Client {
	return &Client{HTTP: hc, Langs: langs, Retry: engine.DefaultRetryConfig}
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Fetch returns the caption text for videoID.
func (c *Client) Fetch(ctx context.Context, videoID string) (string, error) {
	text, err := c.viaWatchPage(ctx, videoID)
	if err == nil {
		return text, nil
	}
	slog.Debug("captions: watch page failed, trying player",
		slog.String("video_id", videoID), slog.Any("error", err))

	text, perr := c.viaPlayer(ctx, videoID)
	if perr != nil {
		return "", errors.Join(err, perr)
	}
	return text, nil
}

func (c *Client) viaWatchPage(ctx context.Context, videoID string) (string, error) {
	resp, err := engine.RetryHTTP(ctx, c.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/watch?v="+videoID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return c.httpClient().Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read watch page: %w", err)
	}
	idx := bytes.Index(body, []byte(playerResponseMarker))
	if idx < 0 {
		return "", errors.New("player response not found in watch page")
	}
	raw := extractJSON(body[idx+len(playerResponseMarker):])
	if raw == nil {
		return "", errors.New("unterminated player response in watch page")
	}
	var pr playerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", fmt.Errorf("decode player response: %w", err)
	}
	return c.fromPlayer(ctx, pr)
}

func (c *Client) viaPlayer(ctx context.Context, videoID string) (string, error) {
	body, err := json.Marshal(playerRequest{
		VideoID: videoID,
		Context: playerContext{Client: playerClient{
			ClientName:        "ANDROID",
			ClientVersion:     androidVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return "", err
	}

	resp, err := engine.RetryHTTP(ctx, c.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+playerPath+"?prettyPrint=false", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", androidUserAgent)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", androidVersion)
		return c.httpClient().Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("android player: %w", err)
	}
	defer resp.Body.Close()

	var pr playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 3*1024*1024)).Decode(&pr); err != nil {
		return "", fmt.Errorf("decode player: %w", err)
	}
	return c.fromPlayer(ctx, pr)
}

func (c *Client) fromPlayer(ctx context.Context, pr playerResponse) (string, error) {
	if pr.Captions == nil {
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Reason != "" {
			return "", fmt.Errorf("%w: %s", ErrNoCaptions, pr.PlayabilityStatus.Reason)
		}
		return "", ErrNoCaptions
	}
	track, ok := PickTrack(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, c.Langs)
	if !ok {
		return "", ErrNoCaptions
	}
	return c.timedText(ctx, track.BaseURL)
}

// needsPoToken reports whether a track URL only works inside a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// PickTrack selects a caption track: a manual track in a preferred language,
// then an auto-generated one, then any English track, then anything usable.
func PickTrack(tracks []Track, langs []string) (Track, bool) {
	usable := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.BaseURL != "" && !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return Track{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

func (c *Client) timedText(ctx context.Context, trackURL string) (string, error) {
	resp, err := engine.RetryHTTP(ctx, c.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		return c.httpClient().Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return "", err
	}
	text, err := parseTimedText(body)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty track", ErrNoCaptions)
	}
	return text, nil
}

// parseTimedText flattens timedtext XML into one line of text. Cue bodies
// are entity-escaped a second time by the provider.
func parseTimedText(body []byte) (string, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}
	var sb strings.Builder
	for _, line := range tt.Lines {
		text := engine.CollapseSpace(html.UnescapeString(engine.CleanHTML(line.Text)))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// extractJSON returns the balanced JSON object at the start of b.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, ch := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
