package agents

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
//
// NOTE: This is not intended for production; use the Postgres implementation.
type MemoryRepo struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewMemoryRepo(seed ...Agent) *MemoryRepo {
	r := &MemoryRepo{agents: make(map[string]Agent, len(seed))}
	for _, a := range seed {
		r.agents[a.ID] = a
	}
	return r
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Agent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) GetByIDForTenant(ctx context.Context, tenantID, id string) (Agent, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return Agent{}, err
	}
	if a.TenantID != tenantID {
		return Agent{}, ErrNotFound
	}
	return a, nil
}
