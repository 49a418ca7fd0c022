package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// Whisper runs a local whisper.cpp binary. The artifact is first converted
// to 16 kHz mono PCM with ffmpeg, the only input whisper.cpp accepts.
type Whisper struct {
	Bin     string
	Model   string
	FFmpeg  string
	Threads int
}

func (w *Whisper) Name() string { return "whisper" }

var whisperProgressRe = regexp.MustCompile(`progress\s*=\s*(\d+)%`)

// parseWhisperProgress reads "whisper_print_progress_callback: progress =  35%".
func parseWhisperProgress(line string) (float64, bool) {
	m := whisperProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return float64(v), true
}

func (w *Whisper) Transcribe(ctx context.Context, path string, report progress.Func) (string, error) {
	tmp, err := os.MkdirTemp("", "vidqa-whisper-")
	if err != nil {
		return "", fmt.Errorf("whisper: temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	wav := filepath.Join(tmp, "audio.16k.wav")
	if err := w.convert(ctx, path, wav); err != nil {
		return "", err
	}

	outBase := filepath.Join(tmp, "transcript")
	threads := w.Threads
	if threads <= 0 {
		threads = 4
	}
	cmd := exec.CommandContext(ctx, w.bin(),
		"-m", w.Model,
		"-f", wav,
		"-t", strconv.Itoa(threads),
		"-pp",
		"-otxt",
		"-of", outBase,
	)
	stdout := &bytes.Buffer{}
	cmd.Stdout = stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("whisper: start %s: %w", w.bin(), err)
	}

	var diag []string
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		line := sc.Text()
		if pct, ok := parseWhisperProgress(line); ok {
			if pct >= 100 {
				pct = 99
			}
			report(pct)
			continue
		}
		if strings.TrimSpace(line) != "" {
			diag = append(diag, line)
			if len(diag) > 20 {
				diag = diag[1:]
			}
		}
	}
	_, _ = io.Copy(io.Discard, stderr)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", engine.ExecError("whisper.cpp", err, strings.Join(diag, "\n"), stdout.String())
	}

	data, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("whisper: read output: %w", err)
	}
	text := joinLines(string(data))
	if text == "" {
		return "", &FailedError{Status: StatusEmpty, Message: "whisper.cpp produced no text"}
	}
	report(100)
	return text, nil
}

func (w *Whisper) convert(ctx context.Context, in, out string) error {
	ffmpeg := w.FFmpeg
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		out,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return engine.ExecError("ffmpeg", err, stderr.String(), stdout.String())
	}
	return nil
}

func (w *Whisper) bin() string {
	if w.Bin == "" {
		return "whisper-cli"
	}
	return w.Bin
}

// joinLines folds whisper's one-segment-per-line output into prose.
func joinLines(s string) string {
	var parts []string
	for line := range strings.SplitSeq(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
