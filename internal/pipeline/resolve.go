package pipeline

import (
	"os"
	"path/filepath"
)

const systemToolDir = "/opt/estimator/pipeline"

// ResolveToolDir locates the directory holding the external pipeline scripts.
// Candidates are tried in order: the explicit override (config/env), a
// "pipeline" directory next to the running binary, the system install
// location, and finally the current working directory. The first candidate
// containing the extraction script wins.
func ResolveToolDir(override string) (string, error) {
	exePath, _ := os.Executable()
	cwd, _ := os.Getwd()

	candidates := make([]string, 0, 4)
	if override != "" {
		candidates = append(candidates, override)
	}
	if exePath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "pipeline"))
	}
	candidates = append(candidates, systemToolDir)
	if cwd != "" {
		candidates = append(candidates, cwd)
	}

	for _, dir := range candidates {
		if hasToolScripts(dir) {
			return dir, nil
		}
	}
	return "", &ConfigError{Candidates: candidates, CWD: cwd, ExePath: exePath}
}

func hasToolScripts(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, extractorScript))
	return err == nil && !info.IsDir()
}

// ResolveInterpreter prefers the tool directory's own virtualenv python so the
// pipeline runs with its pinned dependencies; otherwise the system python3 on
// PATH is used.
func ResolveInterpreter(toolDir string) string {
	venv := filepath.Join(toolDir, ".venv", "bin", "python3")
	if info, err := os.Stat(venv); err == nil && !info.IsDir() {
		return venv
	}
	return "python3"
}
