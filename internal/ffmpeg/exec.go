// Package ffmpeg runs renders and probes through the ffmpeg and ffprobe
// command line tools.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // tail of stderr kept for error messages

	defaultProbeTimeout  = 30 * time.Second
	defaultDoctorTimeout = 15 * time.Second
)

// Config holds binary locations and timeouts. Empty binary paths are
// resolved on PATH.
type Config struct {
	FFmpegPath    string
	FFprobePath   string
	WorkDir       string // parent of per-render scratch directories; "" = os temp dir
	ProbeTimeout  time.Duration
	DoctorTimeout time.Duration
	Logger        *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.DoctorTimeout <= 0 {
		c.DoctorTimeout = defaultDoctorTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// resolveBinary finds name on PATH, preferring the configured path.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH: %w", name, err)
	}
	return p, nil
}

// runResult is the outcome of one subprocess.
type runResult struct {
	ExitCode   int
	Stdout     []byte
	StderrTail string
	Duration   time.Duration
}

// run executes bin with args. stdout is either captured or streamed to
// onStdout when it is non-nil.
func run(ctx context.Context, logger *slog.Logger, bin string, args []string, onStdout io.Writer) (runResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)

	var stderrBuf, stdoutBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if onStdout != nil {
		cmd.Stdout = onStdout
	} else {
		cmd.Stdout = &stdoutBuf
	}

	logger.Debug("executing command", "bin", bin, "args", args)

	err := cmd.Run()
	res := runResult{
		Stdout:     stdoutBuf.Bytes(),
		StderrTail: stderrBuf.String(),
		Duration:   time.Since(start),
	}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		logger.Warn("command failed",
			"bin", bin,
			"exit_code", res.ExitCode,
			"duration_ms", res.Duration.Milliseconds(),
			"stderr_tail", truncate(res.StderrTail, 512),
		)
		return res, fmt.Errorf("%s exited %d: %s", binName(bin), res.ExitCode, lastLines(res.StderrTail, 5))
	}
	res.ExitCode = -1
	return res, fmt.Errorf("%s: %w", binName(bin), err)
}

func binName(bin string) string {
	if i := strings.LastIndexAny(bin, `/\`); i >= 0 {
		return bin[i+1:]
	}
	return bin
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// lastLines returns the last n non-empty lines of s joined by "; ".
func lastLines(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}

// limitedWriter is an io.Writer that keeps only the last limit bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
