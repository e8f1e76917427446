package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/experiment"
	"CoinCast/internal/feature"
	"CoinCast/internal/indicator"
	"CoinCast/internal/repository"
	"CoinCast/internal/sentiment"
	"CoinCast/internal/train"
	"CoinCast/pkg/config"
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

// fakeObservationStore serves canned observations filtered by range.
type fakeObservationStore struct {
	bars []models.PriceBar
	docs []models.TextDoc
}

func (s *fakeObservationStore) AppendBatch(context.Context, []models.RawObservation) error {
	return nil
}

func (s *fakeObservationStore) PriceBars(_ context.Context, from, to time.Time) ([]models.PriceBar, error) {
	var out []models.PriceBar
	for _, b := range s.bars {
		if !b.TS.Before(from) && !b.TS.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeObservationStore) TextDocs(_ context.Context, from, to time.Time) ([]models.TextDoc, error) {
	var out []models.TextDoc
	for _, d := range s.docs {
		if !d.TS.Before(from) && !d.TS.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeObservationStore) Health(context.Context) error { return nil }

// fakeFeatureStore keeps snapshots in memory.
type fakeFeatureStore struct {
	mu        sync.Mutex
	snapshots map[string]*models.FeatureTable
	latest    string
	saves     int
}

func newFakeFeatureStore() *fakeFeatureStore {
	return &fakeFeatureStore{snapshots: make(map[string]*models.FeatureTable)}
}

func (s *fakeFeatureStore) SaveSnapshot(_ context.Context, version string, table *models.FeatureTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[version] = table
	s.latest = version
	s.saves++
	return nil
}

func (s *fakeFeatureStore) LoadSnapshot(_ context.Context, version string) (*models.FeatureTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.snapshots[version]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", version, domrepo.ErrNotFound)
	}
	return table, nil
}

func (s *fakeFeatureStore) LatestVersion(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == "" {
		return "", fmt.Errorf("no snapshots: %w", domrepo.ErrNotFound)
	}
	return s.latest, nil
}

func (s *fakeFeatureStore) Health(context.Context) error { return nil }

var trainStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// syntheticObservations covers [start-warmup, start+hours] with hourly
// bars and one scored doc per hour so every merged row is complete.
func syntheticObservations(hours int) *fakeObservationStore {
	s := &fakeObservationStore{}
	for i := -48; i <= hours; i++ {
		ts := trainStart.Add(time.Duration(i) * time.Hour)
		c := 30000 + 500*math.Sin(float64(i)/5) + 10*float64(i%7)
		s.bars = append(s.bars, models.PriceBar{
			TS: ts, Open: c - 5, High: c + 20, Low: c - 20, Close: c, Volume: 1000 + float64(i%13),
		})
		body := "bullish rally"
		if i%3 == 0 {
			body = "bearish dump"
		}
		s.docs = append(s.docs, models.TextDoc{
			TS: ts.Add(-time.Minute), Source: models.SourceSocial, Author: "a", Body: body, Weight: 1,
		})
	}
	return s
}

func trainingConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Pipeline.Frequency = time.Hour
	cfg.Pipeline.MaxFillGap = 1
	cfg.Indicators = []config.IndicatorSpec{{Kind: "sma", Window: 3}}
	cfg.Sentiment.BucketWidth = time.Hour
	cfg.Sentiment.Reducer = sentiment.ReduceMean
	cfg.Window.Lookback = 6
	cfg.Window.Horizon = 1
	cfg.Window.Stride = 1
	cfg.Split.Train = 0.7
	cfg.Split.Val = 0.15
	cfg.Normalize.Kind = "zscore"
	cfg.Trainer.LearningRate = 0.01
	cfg.Trainer.Epochs = 8
	cfg.Trainer.BatchSize = 8
	cfg.Trainer.Patience = 4
	cfg.Trainer.MinDelta = 1e-6
	cfg.Trainer.AttentionSpan = 4
	cfg.Trainer.AttentionDecay = 0.5
	cfg.Trainer.Seed = 7
	cfg.ModelDir = t.TempDir()
	return cfg
}

func newTestTraining(t *testing.T, cfg *config.Config, obs domrepo.ObservationStore, features domrepo.FeatureStore, runs domrepo.RunStore) *Training {
	t.Helper()
	lgr := testLogger(t)

	specs := make([]indicator.Spec, len(cfg.Indicators))
	for i, s := range cfg.Indicators {
		specs[i] = indicator.Spec{Kind: indicator.Kind(s.Kind), Window: s.Window}
	}
	engine, err := indicator.NewEngine(specs)
	require.NoError(t, err)

	bucketer, err := sentiment.NewBucketer(sentiment.NewLexiconScorer(), cfg.Sentiment.BucketWidth, cfg.Sentiment.Reducer, nopMetrics{}, lgr)
	require.NoError(t, err)

	merger, err := feature.NewMerger(cfg.Pipeline.Frequency, feature.Tolerances{}, cfg.Pipeline.MaxFillGap, nopMetrics{}, lgr)
	require.NoError(t, err)

	builder := NewDatasetBuilder(obs, features, engine, bucketer, merger,
		cfg.Pipeline.Frequency, cfg.Sentiment.BucketWidth, nopMetrics{}, lgr)

	artifacts, err := train.NewArtifactStore(cfg.ModelDir)
	require.NoError(t, err)
	tracker := experiment.NewTracker(runs, nopMetrics{}, lgr)

	return NewTraining(builder, tracker, artifacts, cfg, nopMetrics{}, lgr)
}

func TestTraining_EndToEnd(t *testing.T) {
	cfg := trainingConfig(t)
	features := newFakeFeatureStore()
	runs := repository.NewMemoryRunStore()
	training := newTestTraining(t, cfg, syntheticObservations(96), features, runs)

	run, err := training.Run(context.Background(), trainStart, trainStart.Add(96*time.Hour), false)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.True(t, run.Terminal())
	assert.NotEqual(t, models.RunFailed, run.Status)
	assert.NotEmpty(t, run.Epochs)
	assert.NotEmpty(t, run.DataVersion)

	// run record persisted with the terminal status
	stored, err := runs.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.Status, stored.Status)

	// snapshot persisted and retrievable as the latest version
	latest, err := features.LatestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.DataVersion, latest)

	// artifact carries the fitted transform and weights
	artifacts, err := train.NewArtifactStore(cfg.ModelDir)
	require.NoError(t, err)
	art, err := artifacts.Load(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.DataVersion, art.DataVersion)
	assert.Equal(t, cfg.Window.Lookback, art.Lookback)
	assert.NotEmpty(t, art.Weights.W)
	assert.Len(t, art.Stats.Columns, len(art.Schema))
}

func TestTraining_IdenticalSubmissionIsNoOp(t *testing.T) {
	cfg := trainingConfig(t)
	features := newFakeFeatureStore()
	runs := repository.NewMemoryRunStore()
	training := newTestTraining(t, cfg, syntheticObservations(96), features, runs)
	ctx := context.Background()

	first, err := training.Run(ctx, trainStart, trainStart.Add(96*time.Hour), false)
	require.NoError(t, err)

	again, err := training.Run(ctx, trainStart, trainStart.Add(96*time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, again.RunID)
	assert.Equal(t, first.Status, again.Status)

	// unchanged data means the snapshot was reused, not rewritten
	assert.Equal(t, 1, features.saves)
}

func TestTraining_ForceMintsNewRun(t *testing.T) {
	cfg := trainingConfig(t)
	features := newFakeFeatureStore()
	runs := repository.NewMemoryRunStore()
	training := newTestTraining(t, cfg, syntheticObservations(96), features, runs)
	ctx := context.Background()

	first, err := training.Run(ctx, trainStart, trainStart.Add(96*time.Hour), false)
	require.NoError(t, err)

	forced, err := training.Run(ctx, trainStart, trainStart.Add(96*time.Hour), true)
	require.NoError(t, err)
	assert.Equal(t, first.RunID+".2", forced.RunID)
}

func TestTraining_TooLittleDataFails(t *testing.T) {
	cfg := trainingConfig(t)
	features := newFakeFeatureStore()
	runs := repository.NewMemoryRunStore()
	training := newTestTraining(t, cfg, syntheticObservations(8), features, runs)

	_, err := training.Run(context.Background(), trainStart, trainStart.Add(8*time.Hour), false)
	require.Error(t, err)
}
