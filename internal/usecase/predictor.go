package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/normalize"
	"CoinCast/internal/train"
	pkgcache "CoinCast/pkg/cache"
	applogger "CoinCast/pkg/logger"
)

// Predictor serves forecasts from the production model. It loads the
// production artifact, replays the training-time normalization on the
// latest feature rows, and runs the forward pass. Results are cached per
// (run, data version) pair for a short TTL since a snapshot never changes
// under its version.
type Predictor struct {
	features  domrepo.FeatureStore
	registry  domrepo.Registry
	runs      domrepo.RunStore
	artifacts *train.ArtifactStore
	cache     pkgcache.Service
	cacheTTL  time.Duration
	freq      time.Duration
	metrics   domrepo.Metrics
	logger    *applogger.Logger
}

func NewPredictor(
	features domrepo.FeatureStore,
	registry domrepo.Registry,
	runs domrepo.RunStore,
	artifacts *train.ArtifactStore,
	cache pkgcache.Service,
	cacheTTL, freq time.Duration,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *Predictor {
	return &Predictor{
		features:  features,
		registry:  registry,
		runs:      runs,
		artifacts: artifacts,
		cache:     cache,
		cacheTTL:  cacheTTL,
		freq:      freq,
		metrics:   metrics,
		logger:    l,
	}
}

// Predict forecasts the close return at the production model's horizon,
// using the given snapshot version or the latest one when empty.
func (p *Predictor) Predict(ctx context.Context, dataVersion string) (*models.Forecast, error) {
	start := time.Now()

	entry, err := p.registry.Production(ctx)
	if err != nil {
		return nil, err
	}

	version := dataVersion
	if version == "" {
		if version, err = p.features.LatestVersion(ctx); err != nil {
			return nil, err
		}
	}

	cacheKey := pkgcache.GenerateKeyWithParams("forecast", entry.RunID, version)
	var cached models.Forecast
	if err := p.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	art, err := p.artifacts.Load(entry.RunID)
	if err != nil {
		return nil, err
	}

	table, err := p.features.LoadSnapshot(ctx, version)
	if err != nil {
		return nil, err
	}
	if err := matchSchema(table.Schema, art.Schema); err != nil {
		return nil, err
	}
	if len(table.Rows) < art.Lookback {
		return nil, fmt.Errorf("predict: snapshot %s has %d rows, need %d", version, len(table.Rows), art.Lookback)
	}

	tail := table.Rows[len(table.Rows)-art.Lookback:]
	closeIdx := table.ColumnIndex(models.ColClose)
	raw := make([][]float64, art.Lookback)
	for i, row := range tail {
		if !row.Complete() {
			return nil, fmt.Errorf("predict: row %s in snapshot %s is incomplete", row.TS.Format(time.RFC3339), version)
		}
		vec := make([]float64, len(row.Fields))
		for j, f := range row.Fields {
			vec[j] = f.Val
		}
		raw[i] = vec
	}

	norm, err := normalize.FromStats(art.Stats)
	if err != nil {
		return nil, err
	}
	inputs := make([][]float64, len(raw))
	for i, row := range raw {
		if inputs[i], err = norm.ApplyRow(row); err != nil {
			return nil, err
		}
	}

	model, err := train.RestoreModel(art.Weights)
	if err != nil {
		return nil, err
	}
	ret := norm.InvertLabel(model.Predict(inputs))
	lastClose := raw[len(raw)-1][closeIdx]
	lastTS := tail[len(tail)-1].TS

	forecast := &models.Forecast{
		TS:            lastTS.Add(time.Duration(art.Horizon) * p.freq),
		PointForecast: lastClose * (1 + ret),
		Return:        ret,
		Confidence:    p.confidence(ctx, entry.RunID),
		RunID:         entry.RunID,
		ModelVersion:  entry.ModelVersion,
	}
	if err := p.cache.Set(ctx, cacheKey, forecast, p.cacheTTL); err != nil {
		p.logger.Warn("forecast cache set failed", applogger.Error(err))
	}
	p.metrics.RecordLatency("predict", time.Since(start).Seconds())
	p.logger.Debug("forecast served",
		applogger.String("run_id", entry.RunID),
		applogger.String("data_version", version),
		applogger.Any("return", ret),
	)
	return forecast, nil
}

// confidence maps the run's best validation loss into (0, 1]. A missing
// run record yields zero confidence rather than an error.
func (p *Predictor) confidence(ctx context.Context, runID string) float64 {
	run, err := p.runs.Get(ctx, runID)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			p.logger.Warn("confidence lookup failed", applogger.String("run_id", runID), applogger.Error(err))
		}
		return 0
	}
	return 1 / (1 + run.BestValLoss)
}

func matchSchema(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("predict: snapshot schema width %d does not match model schema width %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("predict: schema column %d is %q, model expects %q", i, got[i], want[i])
		}
	}
	return nil
}
