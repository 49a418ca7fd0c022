package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// Browser reuses a local browser session through yt-dlp's
// --cookies-from-browser, trying each browser in order.
type Browser struct {
	Enable   bool
	Browsers []string
	Bin      string
}

func (b *Browser) Name() string  { return "browser" }
func (b *Browser) Enabled() bool { return b.Enable && len(b.Browsers) > 0 }

func (b *Browser) Attempt(ctx context.Context, req Request, report progress.Func) (string, error) {
	bin := b.Bin
	if bin == "" {
		bin = "yt-dlp"
	}
	var errs []error
	for _, name := range b.Browsers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if req.abandoned() {
			errs = append(errs, ErrAbandoned)
			break
		}
		path, err := runYtDlp(ctx, bin, req, report, "--cookies-from-browser", name)
		if err == nil {
			return path, nil
		}
		RemoveArtifacts(req.Dest)
		slog.Debug("acquire: browser cookies failed",
			slog.String("browser", name), slog.String("video_id", req.VideoID), slog.Any("error", err))
		errs = append(errs, fmt.Errorf("browser %s: %w", name, err))
	}
	return "", errors.Join(errs...)
}

var (
	ytDlpProgressRe = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)
	ansiRe          = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// ytDlpProgressTemplate pins the progress line format. --print puts yt-dlp
// in quiet mode, so progress is only written when --progress is also given.
const ytDlpProgressTemplate = "download:[download] %(progress._percent_str)s"

// parseYtDlpProgress extracts the percentage from a "[download]  42.3% of ..." line.
func parseYtDlpProgress(line string) (float64, bool) {
	m := ytDlpProgressRe.FindStringSubmatch(strings.TrimSpace(ansiRe.ReplaceAllString(line, "")))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// runYtDlp downloads bestaudio to "<dest>.ytdlp.<ext>" and returns the final
// path yt-dlp prints after moving the file into place. yt-dlp itself writes
// through ".part" files.
func runYtDlp(ctx context.Context, bin string, req Request, report progress.Func, extra ...string) (string, error) {
	args := append([]string{
		"-f", "bestaudio/best",
		"--ignore-config",
		"--no-playlist",
		"--newline",
		"--progress",
		"--progress-template", ytDlpProgressTemplate,
		"--no-simulate",
		"--output", req.Dest + ".ytdlp.%(ext)s",
		"--print", "after_move:filepath",
	}, extra...)
	args = append(args, "--", req.URL)

	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("yt-dlp: start %s: %w", bin, err)
	}

	// In quiet mode screen output, progress included, goes to stderr while
	// stdout carries --print. Both streams are scanned for progress.
	var mu sync.Mutex
	onProgress := func(pct float64) {
		if pct >= 100 {
			pct = 99.9
		}
		mu.Lock()
		report(pct)
		mu.Unlock()
	}

	var (
		wg      sync.WaitGroup
		errTail []string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errTail = scanYtDlp(stderr, onProgress, nil)
	}()

	var path string
	outTail := scanYtDlp(stdout, onProgress, func(line string) {
		if !strings.HasPrefix(line, "[") {
			path = line
		}
	})
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return "", engine.ExecError("yt-dlp", err, strings.Join(errTail, "\n"), strings.Join(outTail, "\n"))
	}
	if path == "" {
		return "", errors.New("yt-dlp: no output file reported")
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		return "", fmt.Errorf("yt-dlp: output %s missing or empty", path)
	}
	return path, nil
}

// scanYtDlp reads r to the end, forwarding progress lines and passing other
// non-empty lines to onLine. It returns the last few non-progress lines.
func scanYtDlp(r io.Reader, onProgress func(float64), onLine func(string)) []string {
	var tail []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if pct, ok := parseYtDlpProgress(line); ok {
			onProgress(pct)
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if onLine != nil {
			onLine(trimmed)
		}
		tail = appendTail(tail, trimmed)
	}
	// Drain so the process never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
	return tail
}

func appendTail(tail []string, line string) []string {
	const keep = 5
	if line == "" {
		return tail
	}
	tail = append(tail, line)
	if len(tail) > keep {
		tail = tail[len(tail)-keep:]
	}
	return tail
}
