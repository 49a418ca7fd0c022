package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// videoClient is the part of youtube.Client the strategies use.
type videoClient interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

func newYoutubeClient(hc *http.Client) videoClient {
	return &youtube.Client{HTTPClient: hc}
}

// errNoAudio is returned when a video has no downloadable audio stream.
var errNoAudio = errors.New("no audio format available")

// fetchAudio resolves the video and downloads its best audio stream.
func fetchAudio(ctx context.Context, client videoClient, req Request, report progress.Func) (string, error) {
	video, err := client.GetVideoContext(ctx, req.VideoID)
	if err != nil {
		return "", fmt.Errorf("video info: %w", err)
	}
	format := pickAudioFormat(video.Formats)
	if format == nil {
		return "", errNoAudio
	}
	return downloadFormat(ctx, client, video, format, req.Dest, report)
}

// pickAudioFormat prefers audio-only streams, mp4 containers first, then the
// highest bitrate. Muxed streams with audio are the last resort.
func pickAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	better := func(f, cur *youtube.Format) bool {
		if cur == nil {
			return true
		}
		fa, ca := isAudioOnly(f), isAudioOnly(cur)
		if fa != ca {
			return fa
		}
		fm, cm := strings.Contains(f.MimeType, "mp4"), strings.Contains(cur.MimeType, "mp4")
		if fm != cm {
			return fm
		}
		return f.Bitrate > cur.Bitrate
	}
	for i := range formats {
		f := &formats[i]
		if !isAudioOnly(f) && f.AudioChannels == 0 {
			continue
		}
		if better(f, best) {
			best = f
		}
	}
	return best
}

func isAudioOnly(f *youtube.Format) bool {
	return strings.HasPrefix(f.MimeType, "audio/")
}

func extensionFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "audio/mp4"):
		return ".m4a"
	case strings.HasPrefix(mime, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(mime, "video/webm"):
		return ".webm"
	default:
		return ".mp4"
	}
}

// downloadFormat streams into "<final>.part" and renames on completion.
func downloadFormat(ctx context.Context, client videoClient, video *youtube.Video, format *youtube.Format,
	dest string, report progress.Func) (string, error) {
	stream, size, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()
	if size <= 0 {
		size = format.ContentLength
	}

	final := dest + extensionFor(format.MimeType)
	part := final + ".part"
	f, err := os.Create(part)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", part, err)
	}

	pw := &progressWriter{total: size, report: report}
	_, err = io.Copy(f, io.TeeReader(stream, pw))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && pw.written == 0 {
		err = errors.New("empty stream")
	}
	if err == nil && size > 0 && pw.written < size {
		err = fmt.Errorf("short read: %d of %d bytes", pw.written, size)
	}
	if err != nil {
		os.Remove(part)
		return "", fmt.Errorf("download: %w", err)
	}
	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("rename %s: %w", part, err)
	}
	return final, nil
}

// progressWriter converts byte counts into a percentage capped below 100;
// the chain reports 100 once the artifact is in place.
type progressWriter struct {
	total   int64
	written int64
	report  progress.Func
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 && p.report != nil {
		pct := float64(p.written) / float64(p.total) * 100
		if pct > 99.9 {
			pct = 99.9
		}
		p.report(pct)
	}
	return len(b), nil
}
