// Package vidserver exposes the transcript pipeline as MCP tools.
package vidserver

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_vidqa/internal/pipeline"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/qa"
	"github.com/anatolykoptev/go_vidqa/internal/toolutil"
	"github.com/anatolykoptev/go_vidqa/internal/transcript"
	"github.com/anatolykoptev/go_vidqa/internal/videoid"
)

// Runner starts a transcript run.
type Runner interface {
	Run(ctx context.Context, url string) iter.Seq[progress.Event]
}

// Asker answers a question about a transcript.
type Asker interface {
	Ask(ctx context.Context, transcript, question string) (string, error)
}

// Tools carries the collaborators the handlers share. Asker may be nil, in
// which case video_ask reports that question answering is off.
type Tools struct {
	Runner Runner
	Store  transcript.Store
	Asker  Asker
}

// TranscriptInput is the video_transcript argument set.
type TranscriptInput struct {
	URL      string `json:"url" jsonschema:"Video URL (watch, youtu.be, shorts, embed, live) or bare 11-character id"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"Cut the returned transcript to about this many characters (default: full text)"`
}

// TranscriptOutput is the video_transcript result.
type TranscriptOutput struct {
	VideoID    string `json:"video_id"`
	Transcript string `json:"transcript"`
	Cached     bool   `json:"cached"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// AskInput is the video_ask argument set.
type AskInput struct {
	URL      string `json:"url" jsonschema:"Video URL or bare id"`
	Question string `json:"question" jsonschema:"Question to answer from the transcript"`
}

// AskOutput is the video_ask result.
type AskOutput struct {
	VideoID string `json:"video_id"`
	Answer  string `json:"answer"`
}

// StatusInput is the video_transcript_status argument set.
type StatusInput struct {
	URL string `json:"url" jsonschema:"Video URL or bare id"`
}

// StatusOutput reports whether a transcript is already cached.
type StatusOutput struct {
	VideoID string `json:"video_id"`
	Cached  bool   `json:"cached"`
}

// RegisterTools registers video_transcript, video_ask and
// video_transcript_status on server.
func RegisterTools(server *mcp.Server, t *Tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_transcript",
		Description: "Get the full transcript of a YouTube video. Served from cache when available; otherwise the audio is downloaded (trying credentials, browser cookies, then anonymous clients) and transcribed, which can take minutes. Sends progress notifications when the client supplies a progress token.",
	}, t.transcript)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_ask",
		Description: "Answer a question about a YouTube video using its transcript. The transcript must already be cached; call video_transcript first.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.ask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_transcript_status",
		Description: "Check whether a transcript for a YouTube video is already cached. Starts no work.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.status)
}

func (t *Tools) transcript(ctx context.Context, req *mcp.CallToolRequest, input TranscriptInput) (*mcp.CallToolResult, TranscriptOutput, error) {
	url := toolutil.NormURL(input.URL)
	if url == "" {
		return nil, TranscriptOutput{}, errors.New("url is required")
	}

	done, err := pipeline.Collect(t.Runner.Run(ctx, url), toolutil.ProgressNotifier(ctx, req))
	if err != nil {
		return nil, TranscriptOutput{}, err
	}

	out := TranscriptOutput{VideoID: done.VideoID, Transcript: done.Transcript, Cached: done.Cached}
	if input.MaxChars > 0 {
		out.Transcript = toolutil.Excerpt(done.Transcript, input.MaxChars)
		out.Truncated = out.Transcript != done.Transcript
	}
	return nil, out, nil
}

func (t *Tools) ask(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if t.Asker == nil {
		return nil, AskOutput{}, qa.ErrNotConfigured
	}
	id, ok := videoid.Extract(toolutil.NormURL(input.URL))
	if !ok {
		return nil, AskOutput{}, pipeline.ErrInvalidIdentifier
	}
	text, ok := t.Store.Lookup(ctx, id)
	if !ok {
		return nil, AskOutput{}, qa.ErrNoTranscript
	}
	answer, err := t.Asker.Ask(ctx, text, input.Question)
	if err != nil {
		if !errors.Is(err, qa.ErrEmptyQuestion) {
			slog.Warn("vidserver: ask failed", slog.String("video_id", id), slog.Any("error", err))
		}
		return nil, AskOutput{}, fmt.Errorf("video_ask: %w", err)
	}
	return nil, AskOutput{VideoID: id, Answer: answer}, nil
}

func (t *Tools) status(ctx context.Context, _ *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	id, ok := videoid.Extract(toolutil.NormURL(input.URL))
	if !ok {
		return nil, StatusOutput{}, pipeline.ErrInvalidIdentifier
	}
	_, cached := t.Store.Lookup(ctx, id)
	return nil, StatusOutput{VideoID: id, Cached: cached}, nil
}
