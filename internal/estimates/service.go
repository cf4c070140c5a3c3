package estimates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"estimate-backend/internal/artifacts"
	"estimate-backend/internal/documents"
	"estimate-backend/internal/pipeline"
	"estimate-backend/internal/shared/metrics"
	"estimate-backend/internal/shared/storage/db"
	"estimate-backend/internal/shared/telemetry"
	"estimate-backend/internal/workspace"
)

const (
	defaultCooldown     = 2 * time.Hour
	defaultProbeTimeout = 5 * time.Second
)

// PipelineRunner abstracts the two-stage external pipeline so the gate can
// be tested without spawning processes.
type PipelineRunner interface {
	Run(ctx context.Context, inputPath, workDir, region string) (*pipeline.Result, error)
}

// Generation is the outcome of a generation request. Exactly one shape is
// populated: Blocked for an open cooldown window, FromCache for a cache hit,
// otherwise a fresh result.
type Generation struct {
	FromCache        bool
	Blocked          *WaitPeriod
	Record           EstimateRecord
	Extraction       map[string]any
	Estimate         map[string]any
	ExtractionKey    string
	ExtractionURL    string
	EstimateKey      string
	EstimateURL      string
	PDFURL           string
	ProcessingTimeMs int64
}

// Service is the request gate: it decides between serving the cached
// estimate, refusing during the cooldown window, and driving a fresh
// pipeline run.
type Service struct {
	Repo         Repo
	Docs         documents.DocumentsRepo
	Artifacts    *artifacts.Adapter
	Workspaces   *workspace.Manager
	Runner       PipelineRunner
	Materializer *Materializer

	// DB is probed for liveness around the multi-minute pipeline call.
	// Nil in memory-backed deployments.
	DB *sql.DB

	Cooldown     time.Duration
	CleanupGrace time.Duration
}

// Generate handles a generation request for one document.
func (s *Service) Generate(ctx context.Context, userID, documentID, analysisType string, force bool) (Generation, error) {
	if userID == "" || documentID == "" {
		return Generation{}, errors.New("userID and documentID are required")
	}
	start := time.Now()

	doc, err := s.Docs.GetByID(ctx, userID, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return Generation{}, ErrNotFound
		}
		return Generation{}, err
	}

	if !force {
		if gen, ok := s.fromCache(ctx, userID, documentID); ok {
			metrics.IncGenerationCacheHit()
			return gen, nil
		}
	}

	now := time.Now().UTC()
	rec, claimed, err := s.Repo.ClaimProcessing(ctx, userID, documentID, now, s.cooldown())
	if err != nil {
		return Generation{}, err
	}
	if !claimed {
		metrics.IncGenerationBlocked()
		wait := NewWaitPeriod(*rec.ProcessingStartedAt, s.cooldown(), now)
		return Generation{Blocked: &wait, Record: rec}, nil
	}

	metrics.IncGenerationStarted()
	gen, err := s.runAttempt(ctx, userID, documentID, doc, analysisType)
	elapsed := time.Since(start)
	metrics.ObserveGenerationDurationMs(float64(elapsed.Milliseconds()))

	if err != nil {
		metrics.IncGenerationFailed()
		telemetry.Error("estimate generation failed", map[string]any{
			"document_id": documentID,
			"user_id":     userID,
			"elapsed_ms":  elapsed.Milliseconds(),
			"error":       err.Error(),
		})
		return Generation{}, err
	}

	metrics.IncGenerationCompleted()
	gen.ProcessingTimeMs = elapsed.Milliseconds()
	telemetry.Info("estimate generation complete", map[string]any{
		"document_id":  documentID,
		"user_id":      userID,
		"elapsed_ms":   elapsed.Milliseconds(),
		"total_amount": gen.Record.TotalAmount,
	})
	return gen, nil
}

// WaitStatus exposes the cooldown computation without triggering generation.
func (s *Service) WaitStatus(ctx context.Context, userID, documentID string) (bool, *WaitPeriod, error) {
	rec, err := s.Repo.GetByDocument(ctx, userID, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, nil, nil
		}
		return false, nil, err
	}
	if rec.ProcessingStartedAt == nil {
		return true, nil, nil
	}
	wait := NewWaitPeriod(*rec.ProcessingStartedAt, s.cooldown(), time.Now().UTC())
	if !wait.Active() {
		return true, nil, nil
	}
	return false, &wait, nil
}

// Get returns the cached record for a document.
func (s *Service) Get(ctx context.Context, userID, documentID string) (EstimateRecord, error) {
	return s.Repo.GetByDocument(ctx, userID, documentID)
}

// fromCache tries to materialize the cached response. A fetch failure falls
// through to a fresh run instead of failing the request.
func (s *Service) fromCache(ctx context.Context, userID, documentID string) (Generation, bool) {
	rec, err := s.Repo.GetByDocument(ctx, userID, documentID)
	if err != nil || rec.Status != StatusFinal || rec.ArtifactURL == "" {
		return Generation{}, false
	}

	key, ok := s.Artifacts.KeyFor(rec.ArtifactURL)
	if !ok {
		telemetry.Warn("cached artifact url does not normalize", map[string]any{
			"document_id":  documentID,
			"artifact_url": rec.ArtifactURL,
		})
		return Generation{}, false
	}
	raw, err := s.Artifacts.Get(ctx, key)
	if err != nil {
		telemetry.Warn("cached artifact fetch failed, regenerating", map[string]any{
			"document_id": documentID,
			"key":         key,
			"error":       err.Error(),
		})
		return Generation{}, false
	}

	var estimate map[string]any
	if err := json.Unmarshal(raw, &estimate); err != nil {
		telemetry.Warn("cached artifact is not valid JSON, regenerating", map[string]any{
			"document_id": documentID,
			"key":         key,
		})
		return Generation{}, false
	}

	return Generation{
		FromCache:   true,
		Record:      rec,
		Estimate:    estimate,
		EstimateKey: key,
		EstimateURL: s.Artifacts.URLFor(key),
	}, true
}

// runAttempt executes one admitted attempt end to end. On any failure the
// workspace is preserved for postmortem inspection and the claim keeps the
// cooldown window closed.
func (s *Service) runAttempt(ctx context.Context, userID, documentID string, doc documents.Document, analysisType string) (Generation, error) {
	workDir, err := s.Workspaces.Acquire(userID, documentID)
	if err != nil {
		return Generation{}, fmt.Errorf("acquire workspace: %w", err)
	}

	inputPath, err := s.stageSourceDocument(ctx, workDir, doc)
	if err != nil {
		s.Workspaces.Preserve(workDir)
		s.markFailed(ctx, userID, documentID)
		return Generation{}, err
	}

	// The pipeline can run for minutes; make sure the connection pool is
	// alive before committing to it, and again before persisting results.
	if err := s.probeDB(ctx); err != nil {
		s.Workspaces.Preserve(workDir)
		return Generation{}, err
	}

	res, err := s.Runner.Run(ctx, inputPath, workDir, analysisType)
	if err != nil {
		s.Workspaces.Preserve(workDir)
		s.markFailed(ctx, userID, documentID)
		return Generation{}, err
	}

	if err := s.probeDB(ctx); err != nil {
		s.Workspaces.Preserve(workDir)
		return Generation{}, err
	}

	if err := ValidateEstimatePayload(res.Estimate.Payload); err != nil {
		s.Workspaces.Preserve(workDir)
		s.markFailed(ctx, userID, documentID)
		return Generation{}, &pipeline.StageError{Stage: pipeline.StageEstimation, Err: err}
	}

	keys, err := s.persistArtifacts(ctx, userID, documentID, res)
	if err != nil {
		s.Workspaces.Preserve(workDir)
		s.markFailed(ctx, userID, documentID)
		return Generation{}, err
	}

	rec, err := s.Materializer.Upsert(ctx, userID, documentID, s.Artifacts.URLFor(keys.estimate), res.Estimate.Payload)
	if err != nil {
		s.Workspaces.Preserve(workDir)
		return Generation{}, err
	}

	s.Workspaces.ScheduleCleanup(workDir, s.CleanupGrace)

	gen := Generation{
		Record:        rec,
		Extraction:    res.Extraction.Payload,
		Estimate:      res.Estimate.Payload,
		ExtractionKey: keys.extraction,
		ExtractionURL: s.Artifacts.URLFor(keys.extraction),
		EstimateKey:   keys.estimate,
		EstimateURL:   s.Artifacts.URLFor(keys.estimate),
	}
	if keys.pdf != "" {
		gen.PDFURL = s.Artifacts.URLFor(keys.pdf)
	}
	return gen, nil
}

// stageSourceDocument copies the uploaded document from the object store
// into the workspace so the pipeline reads from local disk.
func (s *Service) stageSourceDocument(ctx context.Context, workDir string, doc documents.Document) (string, error) {
	key, ok := s.Artifacts.KeyFor(doc.StorageKey)
	if !ok {
		return "", fmt.Errorf("document storage key %q does not normalize", doc.StorageKey)
	}
	raw, err := s.Artifacts.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("fetch source document: %w", err)
	}

	ext := filepath.Ext(key)
	if ext == "" {
		ext = ".pdf"
	}
	inputPath := filepath.Join(workDir, "source"+ext)
	if err := os.WriteFile(inputPath, raw, 0o600); err != nil {
		return "", fmt.Errorf("stage source document: %w", err)
	}
	return inputPath, nil
}

type artifactKeys struct {
	extraction string
	estimate   string
	pdf        string
}

// persistArtifacts uploads the stage outputs under their canonical keys.
// The estimate JSON key becomes the record's artifact URL.
func (s *Service) persistArtifacts(ctx context.Context, userID, documentID string, res *pipeline.Result) (artifactKeys, error) {
	var keys artifactKeys

	extractionRaw, err := os.ReadFile(res.Extraction.OutputPath)
	if err != nil {
		return keys, fmt.Errorf("read extraction output: %w", err)
	}
	keys.extraction = artifacts.EstimateKey(userID, documentID, artifacts.ExtractionArtifact)
	if err := s.Artifacts.Put(ctx, keys.extraction, "application/json", extractionRaw); err != nil {
		return keys, fmt.Errorf("persist extraction artifact: %w", err)
	}

	estimateRaw, err := os.ReadFile(res.Estimate.OutputPath)
	if err != nil {
		return keys, fmt.Errorf("read estimate output: %w", err)
	}
	keys.estimate = artifacts.EstimateKey(userID, documentID, artifacts.EstimateArtifact)
	if err := s.Artifacts.Put(ctx, keys.estimate, "application/json", estimateRaw); err != nil {
		return keys, fmt.Errorf("persist estimate artifact: %w", err)
	}

	if res.PDFPath != "" {
		pdfRaw, err := os.ReadFile(res.PDFPath)
		if err != nil {
			return keys, fmt.Errorf("read estimate pdf: %w", err)
		}
		keys.pdf = artifacts.EstimateKey(userID, documentID, artifacts.EstimatePDFArtifact)
		if err := s.Artifacts.Put(ctx, keys.pdf, "application/pdf", pdfRaw); err != nil {
			return keys, fmt.Errorf("persist estimate pdf: %w", err)
		}
	}

	return keys, nil
}

func (s *Service) probeDB(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	if err := db.PingWithRetry(ctx, s.DB, defaultProbeTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// markFailed is best-effort bookkeeping; the claim's processingStartedAt is
// what enforces the cooldown, so a failed update here is only logged.
func (s *Service) markFailed(ctx context.Context, userID, documentID string) {
	if err := s.Repo.MarkFailed(ctx, userID, documentID, time.Now().UTC()); err != nil {
		telemetry.Warn("failed to mark estimate attempt failed", map[string]any{
			"document_id": documentID,
			"error":       err.Error(),
		})
	}
}

func (s *Service) cooldown() time.Duration {
	if s.Cooldown > 0 {
		return s.Cooldown
	}
	return defaultCooldown
}
