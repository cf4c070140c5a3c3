package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names reported by StageError.
const (
	StageExtraction = "extraction"
	StageEstimation = "estimation"
)

// ConfigError means the external pipeline installation could not be located.
// It is fatal and non-retryable; the message enumerates every candidate path
// tried plus the resolution context so an operator can fix the deployment.
type ConfigError struct {
	Candidates []string
	CWD        string
	ExePath    string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("pipeline tools not found; tried: ")
	b.WriteString(strings.Join(e.Candidates, ", "))
	fmt.Fprintf(&b, " (cwd=%s, exe=%s)", e.CWD, e.ExePath)
	return b.String()
}

// StageError means a pipeline stage process failed or produced no output.
// It carries the stage name and a truncated tail of the process stderr so the
// tool's own explanation is not lost.
type StageError struct {
	Stage      string
	Err        error
	StderrTail string
}

func (e *StageError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v; stderr: %s", e.Stage, e.Err, e.StderrTail)
}

func (e *StageError) Unwrap() error { return e.Err }

// AsStageError unwraps err to a *StageError if one is in the chain.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr, true
	}
	return nil, false
}

var overloadMarkers = []string{
	"overloaded",
	"unavailable",
	"try again later",
	"resource exhausted",
	"rate limit",
	"too many requests",
}

// IsOverloaded reports whether the error carries a recognized transient
// overload signal from the downstream tooling. Stage stderr is inspected too,
// since batch tools often exit non-zero with the real reason only on stderr.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	if stageErr, ok := AsStageError(err); ok {
		text += " " + strings.ToLower(stageErr.StderrTail)
	}
	for _, marker := range overloadMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
