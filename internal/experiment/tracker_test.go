package experiment

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
	applogger "CoinCast/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordObservations(string, int) {}
func (nopMetrics) RecordMergedRow(bool)           {}
func (nopMetrics) RecordWindow(bool)              {}
func (nopMetrics) RecordSentimentItem(bool)       {}
func (nopMetrics) RecordRunStatus(string)         {}
func (nopMetrics) RecordPromotion(string)         {}
func (nopMetrics) RecordError(string)             {}
func (nopMetrics) RecordLatency(string, float64)  {}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func testKey() RunKey {
	return RunKey{
		DataVersion: "ds-00000000deadbeef",
		FeatureConfig: FeatureConfig{
			Indicators: []string{"ema_12", "rsi_14", "sma_20"},
			BucketRule: "weighted/1h0m0s",
			Lookback:   24,
			Horizon:    1,
			Stride:     1,
			Normalize:  "zscore",
		},
		Hyperparams: train.Hyperparams{
			LearningRate: 0.01, Epochs: 50, BatchSize: 32,
			Patience: 5, MinDelta: 1e-4, AttentionSpan: 8, AttentionDecay: 0.5, Seed: 42,
		},
	}
}

func TestRunKey_HashIsStable(t *testing.T) {
	a, err := testKey().Hash()
	require.NoError(t, err)
	b, err := testKey().Hash()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestRunKey_HashChangesWithAnyInput(t *testing.T) {
	base, err := testKey().Hash()
	require.NoError(t, err)

	k := testKey()
	k.DataVersion = "ds-00000000cafebabe"
	h, err := k.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, base, h)

	k = testKey()
	k.FeatureConfig.Lookback = 48
	h, err = k.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, base, h)

	k = testKey()
	k.Hyperparams.Seed = 43
	h, err = k.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, base, h)
}

func TestBegin_RegistersConfiguredRun(t *testing.T) {
	tracker := NewTracker(repository.NewMemoryRunStore(), nopMetrics{}, testLogger(t))

	run, err := tracker.Begin(context.Background(), testKey(), false)
	require.NoError(t, err)
	assert.Equal(t, models.RunConfigured, run.Status)
	assert.Equal(t, "ds-00000000deadbeef", run.DataVersion)
	assert.NotEmpty(t, run.ConfigJSON)

	expected, err := testKey().Hash()
	require.NoError(t, err)
	assert.Equal(t, expected, run.RunID)
}

func TestBegin_DuplicateReturnsExistingRun(t *testing.T) {
	store := repository.NewMemoryRunStore()
	tracker := NewTracker(store, nopMetrics{}, testLogger(t))
	ctx := context.Background()

	first, err := tracker.Begin(ctx, testKey(), false)
	require.NoError(t, err)

	// finish the first run so the duplicate sees a terminal record
	first.Status = models.RunConverged
	first.EndedAt = time.Now().UTC()
	require.NoError(t, tracker.Complete(ctx, first))

	again, err := tracker.Begin(ctx, testKey(), false)
	require.ErrorIs(t, err, domrepo.ErrRunExists)
	require.NotNil(t, again)
	assert.Equal(t, first.RunID, again.RunID)
	assert.Equal(t, models.RunConverged, again.Status)
}

func TestBegin_ForceMintsRetryOrdinal(t *testing.T) {
	store := repository.NewMemoryRunStore()
	tracker := NewTracker(store, nopMetrics{}, testLogger(t))
	ctx := context.Background()

	first, err := tracker.Begin(ctx, testKey(), false)
	require.NoError(t, err)

	second, err := tracker.Begin(ctx, testKey(), true)
	require.NoError(t, err)
	assert.Equal(t, first.RunID+".2", second.RunID)

	third, err := tracker.Begin(ctx, testKey(), true)
	require.NoError(t, err)
	assert.Equal(t, first.RunID+".3", third.RunID)
}

func TestComplete_RejectsNonTerminalRun(t *testing.T) {
	tracker := NewTracker(repository.NewMemoryRunStore(), nopMetrics{}, testLogger(t))
	ctx := context.Background()

	run, err := tracker.Begin(ctx, testKey(), false)
	require.NoError(t, err)

	run.Status = models.RunRunning
	require.Error(t, tracker.Complete(ctx, run))

	run.Status = models.RunEarlyStopped
	run.EndedAt = time.Now().UTC()
	require.NoError(t, tracker.Complete(ctx, run))
}
