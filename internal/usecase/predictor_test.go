package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/repository"
	"CoinCast/internal/train"
	pkgcache "CoinCast/pkg/cache"
)

func servingTable() *models.FeatureTable {
	rows := make([]models.FeatureRow, 5)
	for i := range rows {
		rows[i] = models.FeatureRow{
			TS:     trainStart.Add(time.Duration(i) * time.Hour),
			Fields: []models.OptFloat{models.Some(100 + float64(i))},
		}
	}
	return &models.FeatureTable{Schema: []string{models.ColClose}, Rows: rows}
}

// servingArtifact predicts a constant 5% return: zero weights plus bias,
// under an identity normalization.
func servingArtifact(t *testing.T, dir, runID string) *train.ArtifactStore {
	t.Helper()
	store, err := train.NewArtifactStore(dir)
	require.NoError(t, err)

	identity := models.ColumnStats{Name: models.ColClose, Mean: 0, Std: 1, Min: 0, Max: 1}
	require.NoError(t, store.Save(&train.Artifact{
		RunID:       runID,
		DataVersion: "ds-0000000000000001",
		Schema:      []string{models.ColClose},
		Lookback:    3,
		Horizon:     2,
		Stats: models.NormalizationStats{
			Kind:    "zscore",
			Columns: []models.ColumnStats{identity},
			Label:   models.ColumnStats{Name: "label", Mean: 0, Std: 1},
		},
		Weights: train.ModelWeights{
			W: []float64{0, 0}, B: 0.05,
			Columns: 1, Lookback: 3, AttentionSpan: 2, AttentionDecay: 0.5,
		},
		CreatedAt: time.Now().UTC(),
	}))
	return store
}

func newServingPredictor(t *testing.T, features domrepo.FeatureStore, registry domrepo.Registry, runs domrepo.RunStore, artifacts *train.ArtifactStore) *Predictor {
	t.Helper()
	return NewPredictor(features, registry, runs, artifacts,
		pkgcache.NewMemoryCache(), time.Minute, time.Hour, nopMetrics{}, testLogger(t))
}

func TestPredict_ServesProductionForecast(t *testing.T) {
	ctx := context.Background()
	features := newFakeFeatureStore()
	require.NoError(t, features.SaveSnapshot(ctx, "ds-0000000000000001", servingTable()))

	registry := repository.NewMemoryRegistry()
	_, err := registry.Promote(ctx, "run-serving", 0)
	require.NoError(t, err)

	runs := repository.NewMemoryRunStore()
	require.NoError(t, runs.Insert(ctx, &models.ExperimentRun{
		RunID: "run-serving", Status: models.RunConverged, BestValLoss: 1,
	}))

	artifacts := servingArtifact(t, t.TempDir(), "run-serving")
	p := newServingPredictor(t, features, registry, runs, artifacts)

	forecast, err := p.Predict(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, "run-serving", forecast.RunID)
	assert.Equal(t, int64(1), forecast.ModelVersion)
	assert.InDelta(t, 0.05, forecast.Return, 1e-12)
	// last close 104, horizon 2 grid steps past the last row
	assert.InDelta(t, 104*1.05, forecast.PointForecast, 1e-9)
	assert.True(t, forecast.TS.Equal(trainStart.Add(4*time.Hour).Add(2*time.Hour)))
	assert.InDelta(t, 0.5, forecast.Confidence, 1e-12) // 1/(1+bestValLoss)
}

func TestPredict_SecondCallHitsCache(t *testing.T) {
	ctx := context.Background()
	features := newFakeFeatureStore()
	require.NoError(t, features.SaveSnapshot(ctx, "ds-0000000000000001", servingTable()))

	registry := repository.NewMemoryRegistry()
	_, err := registry.Promote(ctx, "run-serving", 0)
	require.NoError(t, err)

	runs := repository.NewMemoryRunStore()
	require.NoError(t, runs.Insert(ctx, &models.ExperimentRun{RunID: "run-serving", Status: models.RunConverged}))

	artifacts := servingArtifact(t, t.TempDir(), "run-serving")
	p := newServingPredictor(t, features, registry, runs, artifacts)

	first, err := p.Predict(ctx, "")
	require.NoError(t, err)

	// drop the stored snapshot; a cached forecast must still be served
	features.mu.Lock()
	delete(features.snapshots, "ds-0000000000000001")
	features.mu.Unlock()

	second, err := p.Predict(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first.Return, second.Return)
	assert.Equal(t, first.RunID, second.RunID)
}

func TestPredict_NoProductionModel(t *testing.T) {
	p := newServingPredictor(t, newFakeFeatureStore(), repository.NewMemoryRegistry(),
		repository.NewMemoryRunStore(), servingArtifact(t, t.TempDir(), "unused"))

	_, err := p.Predict(context.Background(), "")
	require.ErrorIs(t, err, domrepo.ErrNoProduction)
}

func TestPredict_IncompleteTailRejected(t *testing.T) {
	ctx := context.Background()
	table := servingTable()
	table.Rows[len(table.Rows)-1].Fields[0] = models.Missing()

	features := newFakeFeatureStore()
	require.NoError(t, features.SaveSnapshot(ctx, "ds-0000000000000001", table))

	registry := repository.NewMemoryRegistry()
	_, err := registry.Promote(ctx, "run-serving", 0)
	require.NoError(t, err)

	artifacts := servingArtifact(t, t.TempDir(), "run-serving")
	p := newServingPredictor(t, features, registry, repository.NewMemoryRunStore(), artifacts)

	_, err = p.Predict(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestPredict_SchemaMismatchRejected(t *testing.T) {
	ctx := context.Background()
	table := servingTable()
	table.Schema = []string{"open"}

	features := newFakeFeatureStore()
	require.NoError(t, features.SaveSnapshot(ctx, "ds-0000000000000001", table))

	registry := repository.NewMemoryRegistry()
	_, err := registry.Promote(ctx, "run-serving", 0)
	require.NoError(t, err)

	artifacts := servingArtifact(t, t.TempDir(), "run-serving")
	p := newServingPredictor(t, features, registry, repository.NewMemoryRunStore(), artifacts)

	_, err = p.Predict(ctx, "")
	require.Error(t, err)
}
