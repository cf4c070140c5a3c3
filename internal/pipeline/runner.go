package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"estimate-backend/internal/shared/telemetry"
)

const (
	extractorScript = "src/Extraction/inspection_extractor.py"
	estimatorScript = "src/Estimation/estimate_builder.py"

	extractionFileName = "extraction.json"
	estimateFileName   = "estimate.json"
	estimatePDFName    = "estimate.pdf"

	defaultStageTimeout = 5 * time.Minute
	maxCapturedOutput   = 10 << 20
	stderrTailBytes     = 4096
)

// Runner drives the two-stage external estimation pipeline: document ->
// extraction JSON -> estimate JSON. Each stage is a separate interpreter
// process with its own timeout.
type Runner struct {
	ToolDir     string
	Interpreter string
	Timeout     time.Duration
	Exec        CommandRunner
}

// NewRunner resolves the tool installation and returns a ready runner.
// A *ConfigError is returned when no candidate directory holds the scripts.
func NewRunner(toolDirOverride string, timeout time.Duration) (*Runner, error) {
	dir, err := ResolveToolDir(toolDirOverride)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultStageTimeout
	}
	return &Runner{
		ToolDir:     dir,
		Interpreter: ResolveInterpreter(dir),
		Timeout:     timeout,
		Exec:        execRunner{maxOutput: maxCapturedOutput},
	}, nil
}

// StageOutput is one stage's parsed result.
type StageOutput struct {
	Stage      string
	OutputPath string
	Payload    map[string]any
	Duration   time.Duration
}

// Result holds both stage outputs plus the optional rendered PDF, when the
// estimation stage produced one alongside the JSON.
type Result struct {
	Extraction StageOutput
	Estimate   StageOutput
	PDFPath    string
}

// Run executes extraction then estimation inside workDir. inputPath is the
// source document on local disk; region, when non-empty, is forwarded to the
// estimation stage for pricing adjustment. The first stage failure aborts the
// run and is returned as a *StageError.
func (r *Runner) Run(ctx context.Context, inputPath, workDir, region string) (*Result, error) {
	extractionPath := filepath.Join(workDir, extractionFileName)
	estimatePath := filepath.Join(workDir, estimateFileName)

	extraction, err := r.runStage(ctx, StageExtraction, extractorScript, inputPath, extractionPath, nil)
	if err != nil {
		return nil, err
	}

	var extra []string
	if region != "" {
		extra = append(extra, "--region", region)
	}
	estimate, err := r.runStage(ctx, StageEstimation, estimatorScript, extractionPath, estimatePath, extra)
	if err != nil {
		return nil, err
	}

	res := &Result{Extraction: extraction, Estimate: estimate}
	if pdfPath := filepath.Join(workDir, estimatePDFName); fileExists(pdfPath) {
		res.PDFPath = pdfPath
	}
	return res, nil
}

func (r *Runner) runStage(ctx context.Context, stage, script, inputPath, outputPath string, extra []string) (StageOutput, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	args := []string{
		filepath.Join(r.ToolDir, script),
		inputPath,
		"-o", outputPath,
		"--log-level", "INFO",
	}
	args = append(args, extra...)

	start := time.Now()
	_, stderr, runErr := r.Exec.Run(stageCtx, r.Interpreter, args...)
	dur := time.Since(start)

	if runErr != nil {
		err := runErr
		if stageCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", r.Timeout, runErr)
		}
		return StageOutput{}, &StageError{Stage: stage, Err: err, StderrTail: tail(stderr)}
	}

	// Exit 0 alone is not success: the tool must have written its output file.
	raw, readErr := os.ReadFile(outputPath)
	if readErr != nil {
		return StageOutput{}, &StageError{
			Stage:      stage,
			Err:        fmt.Errorf("exited 0 but wrote no output file: %w", readErr),
			StderrTail: tail(stderr),
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StageOutput{}, &StageError{
			Stage:      stage,
			Err:        fmt.Errorf("output is not valid JSON: %w", err),
			StderrTail: tail(stderr),
		}
	}

	telemetry.Info("pipeline stage complete", map[string]any{
		"stage":        stage,
		"duration_ms":  dur.Milliseconds(),
		"output_bytes": len(raw),
	})

	return StageOutput{Stage: stage, OutputPath: outputPath, Payload: payload, Duration: dur}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// tail returns up to the last stderrTailBytes of output, trimmed, so error
// messages stay bounded no matter how much the tool printed.
func tail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}
