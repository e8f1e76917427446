package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
)

// MemoryRunStore implements RunStore in process, for single-instance
// deployments without ClickHouse and for tests.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*models.ExperimentRun
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*models.ExperimentRun)}
}

func (s *MemoryRunStore) Insert(ctx context.Context, run *models.ExperimentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	cp.Epochs = append([]models.EpochMetrics(nil), run.Epochs...)
	s.runs[run.RunID] = &cp
	return nil
}

func (s *MemoryRunStore) Get(ctx context.Context, runID string) (*models.ExperimentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, domrepo.ErrNotFound)
	}
	cp := *run
	cp.Epochs = append([]models.EpochMetrics(nil), run.Epochs...)
	return &cp, nil
}

func (s *MemoryRunStore) List(ctx context.Context, limit int) ([]*models.ExperimentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ExperimentRun, 0, len(s.runs))
	for _, run := range s.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryRunStore) CountByPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id := range s.runs {
		if strings.HasPrefix(id, prefix) {
			n++
		}
	}
	return n, nil
}
