package estimates

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo implements Repo in memory for local development and tests.
// The mutex makes ClaimProcessing atomic, mirroring the conditional upsert
// the Postgres implementation relies on.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]EstimateRecord // keyed by document id
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]EstimateRecord)}
}

func (r *MemoryRepo) GetByDocument(_ context.Context, userID, documentID string) (EstimateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[documentID]
	if !ok || rec.UserID != userID {
		return EstimateRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) ClaimProcessing(_ context.Context, userID, documentID string, now time.Time, cooldown time.Duration) (EstimateRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[documentID]
	if ok && rec.ProcessingStartedAt != nil && now.Before(rec.ProcessingStartedAt.Add(cooldown)) {
		return rec, false, nil
	}

	if !ok {
		rec = EstimateRecord{
			ID:         uuid.NewString(),
			UserID:     userID,
			DocumentID: documentID,
			CreatedAt:  now,
		}
	}
	startedAt := now
	rec.Status = StatusProcessing
	rec.ProcessingStartedAt = &startedAt
	rec.UpdatedAt = now
	r.records[documentID] = rec
	return rec, true, nil
}

func (r *MemoryRepo) Finalize(_ context.Context, userID, documentID, artifactURL string, totalAmount float64, now time.Time) (EstimateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[documentID]
	if !ok {
		startedAt := now
		rec = EstimateRecord{
			ID:                  uuid.NewString(),
			UserID:              userID,
			DocumentID:          documentID,
			ProcessingStartedAt: &startedAt,
			CreatedAt:           now,
		}
	}
	rec.ArtifactURL = artifactURL
	rec.TotalAmount = totalAmount
	rec.Status = StatusFinal
	rec.UpdatedAt = now
	r.records[documentID] = rec
	return rec, nil
}

func (r *MemoryRepo) MarkFailed(_ context.Context, userID, documentID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[documentID]
	if !ok || rec.UserID != userID {
		return ErrNotFound
	}
	rec.Status = StatusFailed
	rec.UpdatedAt = now
	r.records[documentID] = rec
	return nil
}
