package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed entitlement store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Get(ctx context.Context, userID string) (Entitlement, error) {
	const query = `
SELECT user_id, entitled, plan, updated_at
FROM entitlements
WHERE user_id = $1`
	var e Entitlement
	var plan sql.NullString
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&e.UserID, &e.Entitled, &plan, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entitlement{UserID: userID}, nil
	}
	if err != nil {
		return Entitlement{}, err
	}
	e.Plan = plan.String
	return e, nil
}

func (s *pgStore) Set(ctx context.Context, userID string, entitled bool, plan string) (Entitlement, error) {
	const query = `
INSERT INTO entitlements (user_id, entitled, plan, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET entitled = $2, plan = $3, updated_at = $4`
	now := time.Now().UTC()
	if _, err := s.DB.ExecContext(ctx, query, userID, entitled, nullablePlan(plan), now); err != nil {
		return Entitlement{}, err
	}
	return Entitlement{UserID: userID, Entitled: entitled, Plan: plan, UpdatedAt: now}, nil
}

func nullablePlan(plan string) any {
	if plan == "" {
		return nil
	}
	return plan
}
