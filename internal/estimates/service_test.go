package estimates

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"estimate-backend/internal/artifacts"
	"estimate-backend/internal/documents"
	"estimate-backend/internal/pipeline"
	local "estimate-backend/internal/shared/storage/object/local"
	"estimate-backend/internal/workspace"
)

// fakeRunner stands in for the external pipeline: it writes stage output
// files into the workspace like the real tools do.
type fakeRunner struct {
	mu           sync.Mutex
	calls        int
	workDirs     []string
	failWith     error
	block        chan struct{}
	estimateJSON string
}

func (f *fakeRunner) Run(_ context.Context, _, workDir, _ string) (*pipeline.Result, error) {
	f.mu.Lock()
	f.calls++
	f.workDirs = append(f.workDirs, workDir)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.failWith != nil {
		return nil, f.failWith
	}

	extractionJSON := `{"findings":[{"item":"roof","severity":"high"}]}`
	estimateJSON := f.estimateJSON
	if estimateJSON == "" {
		estimateJSON = `{"summary":{"total_usd":1234.5},"items":[{"trade":"roofing"}]}`
	}

	extractionPath := filepath.Join(workDir, "extraction.json")
	if err := os.WriteFile(extractionPath, []byte(extractionJSON), 0o644); err != nil {
		return nil, err
	}
	estimatePath := filepath.Join(workDir, "estimate.json")
	if err := os.WriteFile(estimatePath, []byte(estimateJSON), 0o644); err != nil {
		return nil, err
	}

	var extraction, estimate map[string]any
	if err := json.Unmarshal([]byte(extractionJSON), &extraction); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(estimateJSON), &estimate); err != nil {
		return nil, err
	}

	return &pipeline.Result{
		Extraction: pipeline.StageOutput{Stage: pipeline.StageExtraction, OutputPath: extractionPath, Payload: extraction},
		Estimate:   pipeline.StageOutput{Stage: pipeline.StageEstimation, OutputPath: estimatePath, Payload: estimate},
	}, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func setupService(t *testing.T, runner PipelineRunner) (*Service, *MemoryRepo, *artifacts.Adapter, string, string) {
	t.Helper()

	store := local.New(t.TempDir())
	adapter := artifacts.NewAdapter(store, "https://assets.test.example.com", nil)
	docRepo := documents.NewMemoryRepo()
	estRepo := NewMemoryRepo()

	userID := "user-1"
	docID := "doc-1"
	key := artifacts.UploadKey(userID, docID, "pdf")
	if err := adapter.Put(context.Background(), key, "application/pdf", []byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("seed upload: %v", err)
	}
	doc := documents.Document{
		ID:         docID,
		UserID:     userID,
		FileName:   "report.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  13,
		StorageKey: key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := docRepo.Create(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	svc := &Service{
		Repo:         estRepo,
		Docs:         docRepo,
		Artifacts:    adapter,
		Workspaces:   workspace.New(t.TempDir(), time.Hour),
		Runner:       runner,
		Materializer: &Materializer{Repo: estRepo},
		Cooldown:     2 * time.Hour,
		CleanupGrace: time.Hour,
	}
	return svc, estRepo, adapter, userID, docID
}

func TestGenerateHappyPath(t *testing.T) {
	runner := &fakeRunner{}
	svc, repo, adapter, userID, docID := setupService(t, runner)

	gen, err := svc.Generate(context.Background(), userID, docID, "", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.FromCache || gen.Blocked != nil {
		t.Fatalf("expected fresh result, got fromCache=%v blocked=%v", gen.FromCache, gen.Blocked)
	}
	if gen.Record.Status != StatusFinal {
		t.Fatalf("status = %q, want %q", gen.Record.Status, StatusFinal)
	}
	if gen.Record.TotalAmount != 1234.5 {
		t.Fatalf("totalAmount = %v, want 1234.5", gen.Record.TotalAmount)
	}

	// Artifacts land under their canonical keys.
	for _, name := range []string{artifacts.ExtractionArtifact, artifacts.EstimateArtifact} {
		key := artifacts.EstimateKey(userID, docID, name)
		if _, err := adapter.Get(context.Background(), key); err != nil {
			t.Errorf("artifact %s not stored: %v", key, err)
		}
	}

	rec, err := repo.GetByDocument(context.Background(), userID, docID)
	if err != nil {
		t.Fatalf("GetByDocument: %v", err)
	}
	if rec.ArtifactURL != adapter.URLFor(artifacts.EstimateKey(userID, docID, artifacts.EstimateArtifact)) {
		t.Fatalf("artifactUrl = %q", rec.ArtifactURL)
	}
	if rec.ProcessingStartedAt == nil {
		t.Fatal("processingStartedAt not recorded")
	}
}

func TestGenerateServesCacheWithoutRerunning(t *testing.T) {
	runner := &fakeRunner{}
	svc, _, _, userID, docID := setupService(t, runner)

	first, err := svc.Generate(context.Background(), userID, docID, "", false)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	second, err := svc.Generate(context.Background(), userID, docID, "", false)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !second.FromCache {
		t.Fatal("expected fromCache=true")
	}
	if second.Record.ID != first.Record.ID {
		t.Fatalf("record id changed: %q -> %q", first.Record.ID, second.Record.ID)
	}
	if second.ProcessingTimeMs != 0 {
		t.Fatalf("cached response should report zero processing time, got %d", second.ProcessingTimeMs)
	}
	if runner.callCount() != 1 {
		t.Fatalf("pipeline ran %d times, want 1", runner.callCount())
	}
}

func TestGenerateCacheFetchFailureFallsThroughToCooldown(t *testing.T) {
	runner := &fakeRunner{}
	svc, _, adapter, userID, docID := setupService(t, runner)

	if _, err := svc.Generate(context.Background(), userID, docID, "", false); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	// Losing the stored artifact must not fail the request; the gate falls
	// through to a re-run, which the fresh claim's cooldown then blocks.
	key := artifacts.EstimateKey(userID, docID, artifacts.EstimateArtifact)
	if err := adapter.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete artifact: %v", err)
	}

	gen, err := svc.Generate(context.Background(), userID, docID, "", false)
	if err != nil {
		t.Fatalf("Generate after artifact loss: %v", err)
	}
	if gen.Blocked == nil {
		t.Fatal("expected cooldown block after fall-through")
	}
	if runner.callCount() != 1 {
		t.Fatalf("pipeline ran %d times, want 1", runner.callCount())
	}
}

func TestGenerateBlockedDuringCooldown(t *testing.T) {
	runner := &fakeRunner{}
	svc, repo, _, userID, docID := setupService(t, runner)

	// A claim from ten minutes ago holds the two hour window.
	startedAt := time.Now().UTC().Add(-10 * time.Minute)
	if _, claimed, err := repo.ClaimProcessing(context.Background(), userID, docID, startedAt, svc.Cooldown); err != nil || !claimed {
		t.Fatalf("seed claim: claimed=%v err=%v", claimed, err)
	}

	gen, err := svc.Generate(context.Background(), userID, docID, "", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Blocked == nil {
		t.Fatal("expected blocked outcome")
	}
	if gen.Blocked.RemainingHours != 1 {
		t.Fatalf("remainingHours = %d, want 1", gen.Blocked.RemainingHours)
	}
	if gen.Blocked.RemainingMinutes < 49 || gen.Blocked.RemainingMinutes > 50 {
		t.Fatalf("remainingMinutes = %d, want ~49", gen.Blocked.RemainingMinutes)
	}
	if runner.callCount() != 0 {
		t.Fatalf("pipeline ran %d times, want 0", runner.callCount())
	}
}

func TestGenerateExtractionFailurePreservesWorkspace(t *testing.T) {
	stageErr := &pipeline.StageError{
		Stage:      pipeline.StageExtraction,
		Err:        errors.New("exit status 1"),
		StderrTail: "traceback",
	}
	runner := &fakeRunner{failWith: stageErr}
	svc, repo, _, userID, docID := setupService(t, runner)

	_, err := svc.Generate(context.Background(), userID, docID, "", false)
	got, ok := pipeline.AsStageError(err)
	if !ok || got.Stage != pipeline.StageExtraction {
		t.Fatalf("expected extraction StageError, got %v", err)
	}

	// Workspace stays on disk for postmortem inspection.
	runner.mu.Lock()
	workDir := runner.workDirs[0]
	runner.mu.Unlock()
	if _, statErr := os.Stat(workDir); statErr != nil {
		t.Fatalf("workspace was removed: %v", statErr)
	}

	// No final record, but the claim keeps the cooldown closed.
	rec, err := repo.GetByDocument(context.Background(), userID, docID)
	if err != nil {
		t.Fatalf("GetByDocument: %v", err)
	}
	if rec.Status == StatusFinal {
		t.Fatal("failed attempt must not produce a final record")
	}
	if rec.ProcessingStartedAt == nil {
		t.Fatal("claim lost after failure")
	}

	gen, err := svc.Generate(context.Background(), userID, docID, "", false)
	if err != nil {
		t.Fatalf("Generate after failure: %v", err)
	}
	if gen.Blocked == nil {
		t.Fatal("expected cooldown block after failed attempt")
	}
}

func TestGenerateAdmitsAtMostOneConcurrentAttempt(t *testing.T) {
	const attempts = 8

	release := make(chan struct{})
	runner := &fakeRunner{block: release}
	svc, _, _, userID, docID := setupService(t, runner)

	results := make(chan Generation, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			gen, err := svc.Generate(context.Background(), userID, docID, "", false)
			if err != nil {
				t.Errorf("Generate: %v", err)
			}
			results <- gen
		}()
	}

	// Everyone except the single admitted attempt bounces off the claim
	// while the pipeline is still in flight.
	for i := 0; i < attempts-1; i++ {
		gen := <-results
		if gen.Blocked == nil {
			t.Fatalf("concurrent attempt %d was admitted", i)
		}
	}
	close(release)

	gen := <-results
	if gen.Blocked != nil || gen.FromCache {
		t.Fatalf("admitted attempt should produce a fresh result, got blocked=%v fromCache=%v", gen.Blocked, gen.FromCache)
	}
	if runner.callCount() != 1 {
		t.Fatalf("pipeline ran %d times, want 1", runner.callCount())
	}
}

func TestGenerateForceSkipsCacheButNotCooldown(t *testing.T) {
	runner := &fakeRunner{}
	svc, _, _, userID, docID := setupService(t, runner)

	if _, err := svc.Generate(context.Background(), userID, docID, "", false); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	gen, err := svc.Generate(context.Background(), userID, docID, "", true)
	if err != nil {
		t.Fatalf("forced Generate: %v", err)
	}
	if gen.FromCache {
		t.Fatal("force must bypass the cache")
	}
	if gen.Blocked == nil {
		t.Fatal("force does not bypass the cooldown")
	}
}

func TestGenerateUnknownDocument(t *testing.T) {
	svc, _, _, userID, _ := setupService(t, &fakeRunner{})

	_, err := svc.Generate(context.Background(), userID, "missing-doc", "", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerateFailsWhenDatabaseUnreachable(t *testing.T) {
	runner := &fakeRunner{}
	svc, _, _, userID, docID := setupService(t, runner)

	dbConn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = dbConn.Close() })
	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	svc.DB = dbConn

	_, err = svc.Generate(context.Background(), userID, docID, "", false)
	if !errors.Is(err, ErrDatabaseUnavailable) {
		t.Fatalf("expected ErrDatabaseUnavailable, got %v", err)
	}
	if runner.callCount() != 0 {
		t.Fatalf("pipeline must not run with a dead connection; ran %d times", runner.callCount())
	}
}

func TestWaitStatus(t *testing.T) {
	svc, repo, _, userID, docID := setupService(t, &fakeRunner{})
	ctx := context.Background()

	canGenerate, wait, err := svc.WaitStatus(ctx, userID, docID)
	if err != nil || !canGenerate || wait != nil {
		t.Fatalf("no record: canGenerate=%v wait=%v err=%v", canGenerate, wait, err)
	}

	if _, claimed, err := repo.ClaimProcessing(ctx, userID, docID, time.Now().UTC(), svc.Cooldown); err != nil || !claimed {
		t.Fatalf("seed claim: claimed=%v err=%v", claimed, err)
	}
	canGenerate, wait, err = svc.WaitStatus(ctx, userID, docID)
	if err != nil {
		t.Fatalf("WaitStatus: %v", err)
	}
	if canGenerate || wait == nil {
		t.Fatalf("open window: canGenerate=%v wait=%v", canGenerate, wait)
	}

	// An expired window leaves the slot free.
	old := time.Now().UTC().Add(-3 * time.Hour)
	if _, claimed, err := repo.ClaimProcessing(ctx, userID, "doc-2", old, svc.Cooldown); err != nil || !claimed {
		t.Fatalf("seed expired claim: claimed=%v err=%v", claimed, err)
	}
	canGenerate, wait, err = svc.WaitStatus(ctx, userID, "doc-2")
	if err != nil || !canGenerate || wait != nil {
		t.Fatalf("expired window: canGenerate=%v wait=%v err=%v", canGenerate, wait, err)
	}
}
