package repository

import (
	"context"
	"sync"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
)

// MemoryRegistry implements Registry with in-process state. It is the
// default for single-instance deployments and tests; multi-instance
// deployments use the Redis registry so promotions contend on shared
// state.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[int64]*models.RegistryEntry
	nextVer int64
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[int64]*models.RegistryEntry), nextVer: 1}
}

func (r *MemoryRegistry) Production(ctx context.Context) (*models.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.productionLocked(); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, domrepo.ErrNoProduction
}

func (r *MemoryRegistry) Promote(ctx context.Context, runID string, expectedVersion int64) (*models.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.productionLocked()
	var curVer int64
	if current != nil {
		curVer = current.ModelVersion
	}
	if expectedVersion != curVer {
		return nil, domrepo.ErrRegistryConflict
	}

	entry := &models.RegistryEntry{
		ModelVersion: r.nextVer,
		RunID:        runID,
		Stage:        models.StageProduction,
		PromotedAt:   time.Now().UTC(),
		PrevID:       curVer,
	}
	r.nextVer++
	if current != nil {
		current.Stage = models.StageArchived
	}
	r.entries[entry.ModelVersion] = entry

	cp := *entry
	return &cp, nil
}

func (r *MemoryRegistry) Rollback(ctx context.Context) (*models.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.productionLocked()
	if current == nil {
		return nil, domrepo.ErrNoProduction
	}
	prev := r.entries[current.PrevID]
	if current.PrevID == 0 || prev == nil {
		return nil, domrepo.ErrNoRollback
	}

	current.Stage = models.StageArchived
	prev.Stage = models.StageProduction

	cp := *prev
	return &cp, nil
}

func (r *MemoryRegistry) History(ctx context.Context) ([]*models.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.RegistryEntry, 0, len(r.entries))
	for v := r.nextVer - 1; v >= 1; v-- {
		if e, ok := r.entries[v]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) productionLocked() *models.RegistryEntry {
	for _, e := range r.entries {
		if e.Stage == models.StageProduction {
			return e
		}
	}
	return nil
}
