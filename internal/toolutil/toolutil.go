// Package toolutil provides shared helpers for the vidqa MCP tools.
package toolutil

import (
	"context"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/videoid"
)

// NormURL trims whitespace and surrounding quotes some clients leave on
// pasted links. A bare identifier becomes its watch URL.
func NormURL(raw string) string {
	return videoid.Normalize(strings.Trim(strings.TrimSpace(raw), `"'<>`))
}

// ProgressNotifier returns an observer that forwards pipeline progress as
// MCP progress notifications. The overall scale is 0..200: download is the
// first half, transcription the second. It returns nil when the caller did
// not ask for progress.
func ProgressNotifier(ctx context.Context, req *mcp.CallToolRequest) func(progress.Event) {
	if req == nil || req.Session == nil || req.Params == nil {
		return nil
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return nil
	}
	return func(ev progress.Event) {
		var (
			value float64
			msg   string
		)
		switch ev := ev.(type) {
		case progress.DownloadProgress:
			value, msg = float64(ev.Percent), "downloading audio"
		case progress.TranscriptionProgress:
			value, msg = 100+float64(ev.Percent), "transcribing"
		default:
			return
		}
		err := req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      value,
			Total:         200,
			Message:       msg,
		})
		if err != nil {
			slog.Debug("toolutil: progress notification failed", slog.Any("error", err))
		}
	}
}

// Excerpt shortens text for tool output, keeping whole words.
func Excerpt(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	return engine.TruncateAtWord(text, limit)
}
