package entitlement

import (
	"context"
	"sync"
	"time"
)

type allowAllStore struct{}

func (allowAllStore) Get(_ context.Context, userID string) (Entitlement, error) {
	return Entitlement{UserID: userID, Entitled: true, Plan: "dev"}, nil
}

func (allowAllStore) Set(_ context.Context, userID string, entitled bool, plan string) (Entitlement, error) {
	return Entitlement{UserID: userID, Entitled: entitled, Plan: plan, UpdatedAt: time.Now().UTC()}, nil
}

type memoryStore struct {
	mu   sync.RWMutex
	data map[string]Entitlement
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]Entitlement)}
}

func (s *memoryStore) Get(ctx context.Context, userID string) (Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return Entitlement{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[userID]
	if !ok {
		return Entitlement{UserID: userID}, nil
	}
	return e, nil
}

func (s *memoryStore) Set(ctx context.Context, userID string, entitled bool, plan string) (Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return Entitlement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entitlement{UserID: userID, Entitled: entitled, Plan: plan, UpdatedAt: time.Now().UTC()}
	s.data[userID] = e
	return e, nil
}
