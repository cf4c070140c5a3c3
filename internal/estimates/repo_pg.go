package estimates

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const recordColumns = `id, user_id, document_id, artifact_url, total_amount, status, processing_started_at, created_at, updated_at`

// GetByDocument returns the record for a document scoped to its owner.
func (r *PGRepo) GetByDocument(ctx context.Context, userID, documentID string) (EstimateRecord, error) {
	const query = `
SELECT ` + recordColumns + `
FROM estimates
WHERE user_id = $1 AND document_id = $2
LIMIT 1`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, userID, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return EstimateRecord{}, ErrNotFound
	}
	return rec, err
}

// ClaimProcessing claims the generation slot in a single statement. The
// conditional upsert only fires when no prior claim holds the cooldown
// window, so two concurrent admissions cannot both proceed.
func (r *PGRepo) ClaimProcessing(ctx context.Context, userID, documentID string, now time.Time, cooldown time.Duration) (EstimateRecord, bool, error) {
	const query = `
INSERT INTO estimates (id, user_id, document_id, status, processing_started_at, created_at, updated_at)
VALUES ($1, $2, $3, 'processing', $4, $4, $4)
ON CONFLICT (document_id) DO UPDATE
SET status = 'processing', processing_started_at = $4, updated_at = $4
WHERE estimates.processing_started_at IS NULL
   OR estimates.processing_started_at <= $5
RETURNING ` + recordColumns
	cutoff := now.Add(-cooldown)
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, uuid.NewString(), userID, documentID, now, cutoff))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return EstimateRecord{}, false, err
	}

	// Upsert predicate failed: another claim holds the slot. Return it so
	// the caller can compute the wait period.
	existing, err := r.GetByDocument(ctx, userID, documentID)
	if err != nil {
		return EstimateRecord{}, false, err
	}
	return existing, false, nil
}

// Finalize upserts the successful result, preserving the existing id and the
// claim's processing_started_at.
func (r *PGRepo) Finalize(ctx context.Context, userID, documentID, artifactURL string, totalAmount float64, now time.Time) (EstimateRecord, error) {
	const query = `
INSERT INTO estimates (id, user_id, document_id, artifact_url, total_amount, status, processing_started_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'final', $6, $6, $6)
ON CONFLICT (document_id) DO UPDATE
SET artifact_url = $4, total_amount = $5, status = 'final', updated_at = $6
RETURNING ` + recordColumns
	return scanRecord(r.DB.QueryRowContext(ctx, query, uuid.NewString(), userID, documentID, artifactURL, totalAmount, now))
}

// MarkFailed records an unsuccessful attempt without touching
// processing_started_at.
func (r *PGRepo) MarkFailed(ctx context.Context, userID, documentID string, now time.Time) error {
	const query = `
UPDATE estimates
SET status = 'failed', updated_at = $3
WHERE user_id = $1 AND document_id = $2`
	_, err := r.DB.ExecContext(ctx, query, userID, documentID, now)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (EstimateRecord, error) {
	var rec EstimateRecord
	var artifactURL sql.NullString
	var totalAmount sql.NullFloat64
	var startedAt sql.NullTime
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.DocumentID,
		&artifactURL,
		&totalAmount,
		&rec.Status,
		&startedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return EstimateRecord{}, err
	}
	rec.ArtifactURL = artifactURL.String
	rec.TotalAmount = totalAmount.Float64
	if startedAt.Valid {
		t := startedAt.Time
		rec.ProcessingStartedAt = &t
	}
	return rec, nil
}
