package engine

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecError describes a failed external tool run. Tools print diagnostics
// to stderr or stdout depending on version, so stdout is the fallback.
func ExecError(tool string, err error, stderr, stdout string) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = strings.TrimSpace(stdout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg == "" {
			return fmt.Errorf("%s: exited with code %d", tool, exitErr.ExitCode())
		}
		return fmt.Errorf("%s: exited with code %d: %s", tool, exitErr.ExitCode(), lastLines(msg, 3))
	}
	return fmt.Errorf("%s: %w", tool, err)
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, " | ")
}
