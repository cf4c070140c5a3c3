package entitlement

import "context"

type store interface {
	Get(ctx context.Context, userID string) (Entitlement, error)
	Set(ctx context.Context, userID string, entitled bool, plan string) (Entitlement, error)
}

// Service answers the single question the generation gate asks: is this user
// allowed to generate estimates. Grant/Revoke exist for the payment
// collaborator's webhook to flip the flag.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// NewAllowAllService grants every user; development only.
func NewAllowAllService() *Service {
	return &Service{store: allowAllStore{}}
}

// IsEntitled reports whether the user may generate estimates. Unknown users
// are not entitled.
func (s *Service) IsEntitled(ctx context.Context, userID string) (bool, error) {
	e, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return e.Entitled, nil
}

// Get returns the user's entitlement snapshot.
func (s *Service) Get(ctx context.Context, userID string) (Entitlement, error) {
	return s.store.Get(ctx, userID)
}

// Grant marks the user entitled under the given plan.
func (s *Service) Grant(ctx context.Context, userID, plan string) (Entitlement, error) {
	return s.store.Set(ctx, userID, true, plan)
}

// Revoke removes the user's entitlement.
func (s *Service) Revoke(ctx context.Context, userID string) (Entitlement, error) {
	return s.store.Set(ctx, userID, false, "")
}
