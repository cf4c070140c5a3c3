package estimates

import (
	"context"
	"time"
)

// Repo defines persistence operations for estimate records.
type Repo interface {
	GetByDocument(ctx context.Context, userID, documentID string) (EstimateRecord, error)

	// ClaimProcessing atomically claims the generation slot for a document.
	// The claim succeeds when no record exists or the previous claim's
	// cooldown window has elapsed; otherwise claimed is false and the
	// returned record is the one holding the slot. A successful claim moves
	// processingStartedAt to now, so the cooldown binds from admission.
	ClaimProcessing(ctx context.Context, userID, documentID string, now time.Time, cooldown time.Duration) (rec EstimateRecord, claimed bool, err error)

	// Finalize upserts the successful result for a document, preserving the
	// existing record id across regenerations.
	Finalize(ctx context.Context, userID, documentID, artifactURL string, totalAmount float64, now time.Time) (EstimateRecord, error)

	// MarkFailed flags the claimed record after an unsuccessful attempt.
	// processingStartedAt is left untouched: the cooldown keeps binding.
	MarkFailed(ctx context.Context, userID, documentID string, now time.Time) error
}
