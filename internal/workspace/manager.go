package workspace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"estimate-backend/internal/shared/telemetry"
	"estimate-backend/internal/shared/util"
)

// Manager creates per-attempt scratch directories for pipeline runs and
// controls their cleanup. Successful attempts schedule a delayed cleanup so
// intermediate files stay inspectable for a while; failed attempts preserve
// the workspace indefinitely for postmortems, which trades disk hygiene for
// diagnosability and needs an external reaper on busy deployments.
type Manager struct {
	BaseDir string
	Grace   time.Duration
}

// New builds a Manager rooted at baseDir. An empty baseDir falls back to the
// system temp directory.
func New(baseDir string, grace time.Duration) *Manager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "estimate-workspaces")
	}
	if grace <= 0 {
		grace = time.Hour
	}
	return &Manager{BaseDir: baseDir, Grace: grace}
}

// Acquire creates a fresh scratch directory scoped to (owner, document,
// attempt) and returns its path.
func (m *Manager) Acquire(ownerID, documentID string) (string, error) {
	attempt := time.Now().UTC().Format("20060102T150405") + "-" + randomSuffix()
	dir := filepath.Join(m.BaseDir, util.ShortOwnerKey(ownerID), documentID, attempt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// ScheduleCleanup removes the workspace after the given delay. A delay <= 0
// uses the manager's grace period. The returned timer can be stopped by
// callers that decide to keep the workspace after all.
func (m *Manager) ScheduleCleanup(path string, delay time.Duration) *time.Timer {
	if delay <= 0 {
		delay = m.Grace
	}
	return time.AfterFunc(delay, func() {
		if err := os.RemoveAll(path); err != nil {
			telemetry.Error("workspace.cleanup_failed", map[string]any{
				"workspace": path,
				"error":     err.Error(),
			})
			return
		}
		telemetry.Info("workspace.cleaned", map[string]any{"workspace": path})
	})
}

// Preserve marks the workspace as intentionally kept. Nothing is deleted;
// the log line is the only record an operator gets.
func (m *Manager) Preserve(path string) {
	telemetry.Warn("workspace.preserved", map[string]any{"workspace": path})
}

func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
	}
	return hex.EncodeToString(b[:])
}
