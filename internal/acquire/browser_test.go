package acquire

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYtDlpProgress(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"[download]   0.0% of    3.28MiB at  Unknown B/s ETA Unknown", 0, true},
		{"[download]  42.7% of    3.28MiB at    1.21MiB/s ETA 00:01", 42.7, true},
		{"[download] 100% of    3.28MiB in 00:00:02", 100, true},
		{"[download]  42.7%", 42.7, true},
		{"[download] \x1b[0;94m 42.7%\x1b[0m", 42.7, true},
		{"[download] Destination: out.ytdlp.webm", 0, false},
		{"[youtube] dQw4w9WgXcQ: Downloading webpage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseYtDlpProgress(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

// fakeYtDlp writes a shell script that mimics yt-dlp with --print: quiet
// mode, so progress lines appear only with --progress and go to stderr. It
// fails for every browser except the one named in okBrowser.
func fakeYtDlp(t *testing.T, okBrowser string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	script := `#!/bin/sh
out=""
browser=""
progress=""
template=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift ;;
    --cookies-from-browser) browser="$2"; shift ;;
    --progress) progress=1 ;;
    --progress-template) template="$2"; shift ;;
  esac
  shift
done
if [ "$browser" != "` + okBrowser + `" ]; then
  echo "ERROR: could not find $browser cookies database" >&2
  exit 1
fi
file=$(echo "$out" | sed 's/%(ext)s/webm/')
if [ -n "$progress" ]; then
  case "$template" in
    "download:[download] %(progress._percent_str)s")
      echo "[download]  12.5%" >&2
      echo "[download]  60.0%" >&2
      echo "[download] 100.0%" >&2 ;;
    *)
      echo "[download]  12.5% of 1.00MiB" >&2 ;;
  esac
fi
printf 'audio' > "$file"
echo "$file"
`
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestBrowserTriesEachBrowser(t *testing.T) {
	b := &Browser{Enable: true, Browsers: []string{"chrome", "firefox"}, Bin: fakeYtDlp(t, "firefox")}
	req := Request{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", VideoID: "dQw4w9WgXcQ", Dest: filepath.Join(t.TempDir(), "vid")}

	var reported []float64
	path, err := b.Attempt(context.Background(), req, func(p float64) { reported = append(reported, p) })
	require.NoError(t, err)
	assert.Equal(t, req.Dest+".ytdlp.webm", path)
	assert.FileExists(t, path)
	assert.Equal(t, []float64{12.5, 60, 99.9}, reported)
}

func TestBrowserAllFail(t *testing.T) {
	b := &Browser{Enable: true, Browsers: []string{"chrome", "edge"}, Bin: fakeYtDlp(t, "firefox")}
	req := Request{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Dest: filepath.Join(t.TempDir(), "vid")}

	_, err := b.Attempt(context.Background(), req, func(float64) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser chrome")
	assert.Contains(t, err.Error(), "browser edge")
	assert.Contains(t, err.Error(), "cookies database")
	assert.Equal(t, CauseAccessDenied, Classify(err))
}

func TestBrowserEnabled(t *testing.T) {
	assert.False(t, (&Browser{Browsers: []string{"chrome"}}).Enabled())
	assert.False(t, (&Browser{Enable: true}).Enabled())
	assert.True(t, (&Browser{Enable: true, Browsers: []string{"chrome"}}).Enabled())
}
