package pipeline

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"estimate-backend/internal/shared/telemetry"
)

// CommandRunner lets us stub external commands in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	maxOutput int64
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &cappedWriter{buf: &out, limit: r.maxOutput}
	cmd.Stderr = &cappedWriter{buf: &errb, limit: r.maxOutput}

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		telemetry.Error("pipeline exec failed", map[string]any{
			"cmd":         name,
			"args":        strings.Join(args, " "),
			"duration_ms": dur.Milliseconds(),
			"error":       err.Error(),
			"stderr":      truncate(errb.String(), 8<<10),
		})
	} else {
		telemetry.Info("pipeline exec ok", map[string]any{
			"cmd":          name,
			"args":         strings.Join(args, " "),
			"duration_ms":  dur.Milliseconds(),
			"stdout_bytes": out.Len(),
			"stderr_bytes": errb.Len(),
		})
	}

	return out.Bytes(), errb.Bytes(), err
}

// cappedWriter keeps the first limit bytes and silently drops the rest so a
// chatty tool cannot balloon server memory. The process keeps running; only
// the capture is capped.
type cappedWriter struct {
	buf   *bytes.Buffer
	limit int64
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - int64(w.buf.Len())
	if remaining <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
