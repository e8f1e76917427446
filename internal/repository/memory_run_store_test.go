package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
)

func runRecord(id string, startedAt time.Time) *models.ExperimentRun {
	return &models.ExperimentRun{
		RunID:       id,
		DataVersion: "ds-0000000000000001",
		Status:      models.RunConfigured,
		StartedAt:   startedAt,
	}
}

func TestMemoryRunStore_InsertUpsertsByRunID(t *testing.T) {
	s := NewMemoryRunStore()
	ctx := context.Background()
	now := time.Now().UTC()

	run := runRecord("abc", now)
	require.NoError(t, s.Insert(ctx, run))

	run.Status = models.RunConverged
	run.Epochs = []models.EpochMetrics{{Epoch: 1, TrainLoss: 0.5, ValLoss: 0.6}}
	require.NoError(t, s.Insert(ctx, run))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, models.RunConverged, got.Status)
	require.Len(t, got.Epochs, 1)

	// stored record is isolated from later caller mutations
	run.Epochs[0].ValLoss = 99
	got, err = s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Epochs[0].ValLoss)
}

func TestMemoryRunStore_GetMissing(t *testing.T) {
	s := NewMemoryRunStore()
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestMemoryRunStore_ListNewestFirstWithLimit(t *testing.T) {
	s := NewMemoryRunStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, runRecord("old", now.Add(-2*time.Hour))))
	require.NoError(t, s.Insert(ctx, runRecord("mid", now.Add(-time.Hour))))
	require.NoError(t, s.Insert(ctx, runRecord("new", now)))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[2].RunID)

	runs, err = s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
}

func TestMemoryRunStore_CountByPrefix(t *testing.T) {
	s := NewMemoryRunStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, runRecord("aaaa", now)))
	require.NoError(t, s.Insert(ctx, runRecord("aaaa.2", now)))
	require.NoError(t, s.Insert(ctx, runRecord("bbbb", now)))

	n, err := s.CountByPrefix(ctx, "aaaa")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountByPrefix(ctx, "cccc")
	require.NoError(t, err)
	assert.Zero(t, n)
}
