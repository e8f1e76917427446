package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/feature"
	"CoinCast/internal/indicator"
	"CoinCast/internal/sentiment"
	applogger "CoinCast/pkg/logger"
)

// DatasetBuilder turns raw observations in a time range into a versioned
// feature snapshot. Indicator computation and sentiment aggregation run
// concurrently; the merge joins them onto the grid afterwards. The
// resulting version is content-addressed, so rebuilding the same range
// over unchanged data reuses the stored snapshot instead of writing a
// duplicate.
type DatasetBuilder struct {
	obs         domrepo.ObservationStore
	features    domrepo.FeatureStore
	engine      *indicator.Engine
	bucketer    *sentiment.Bucketer
	merger      *feature.Merger
	freq        time.Duration
	bucketWidth time.Duration
	metrics     domrepo.Metrics
	logger      *applogger.Logger
}

func NewDatasetBuilder(
	obs domrepo.ObservationStore,
	features domrepo.FeatureStore,
	engine *indicator.Engine,
	bucketer *sentiment.Bucketer,
	merger *feature.Merger,
	freq, bucketWidth time.Duration,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *DatasetBuilder {
	return &DatasetBuilder{
		obs:         obs,
		features:    features,
		engine:      engine,
		bucketer:    bucketer,
		merger:      merger,
		freq:        freq,
		bucketWidth: bucketWidth,
		metrics:     metrics,
		logger:      l,
	}
}

// Build constructs and persists the feature snapshot for [from, to] and
// returns its content version along with the table.
func (b *DatasetBuilder) Build(ctx context.Context, from, to time.Time) (string, *models.FeatureTable, error) {
	start := time.Now()
	from = from.Truncate(b.freq)
	to = to.Truncate(b.freq)

	// warmup bars before the range so indicators are defined at from
	warmup := time.Duration(b.engine.MaxWindow()+1) * b.freq
	bars, err := b.obs.PriceBars(ctx, from.Add(-warmup), to)
	if err != nil {
		return "", nil, fmt.Errorf("load price bars: %w", err)
	}
	docs, err := b.obs.TextDocs(ctx, from.Add(-b.bucketWidth), to)
	if err != nil {
		return "", nil, fmt.Errorf("load text docs: %w", err)
	}

	var (
		wg       sync.WaitGroup
		indRows  []models.IndicatorRow
		sentRows []models.SentimentRow
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		indRows = b.engine.Compute(bars)
	}()
	go func() {
		defer wg.Done()
		sentRows = b.bucketer.Aggregate(ctx, docs, from, to)
	}()
	wg.Wait()

	table, err := b.merger.Merge(feature.Input{
		Bars:             bars,
		Indicators:       indRows,
		IndicatorColumns: b.engine.Columns(),
		Sentiment:        sentRows,
	}, from, to)
	if err != nil {
		return "", nil, err
	}

	version := feature.Version(table)

	if existing, err := b.features.LoadSnapshot(ctx, version); err == nil {
		b.logger.Info("feature snapshot unchanged, reusing",
			applogger.String("version", version),
			applogger.Int("rows", len(existing.Rows)),
		)
		return version, existing, nil
	} else if !errors.Is(err, domrepo.ErrNotFound) {
		return "", nil, fmt.Errorf("check snapshot %s: %w", version, err)
	}

	if err := b.features.SaveSnapshot(ctx, version, table); err != nil {
		return "", nil, err
	}
	b.metrics.RecordLatency("dataset_build", time.Since(start).Seconds())
	b.logger.Info("feature snapshot built",
		applogger.String("version", version),
		applogger.Int("bars", len(bars)),
		applogger.Int("docs", len(docs)),
		applogger.Int("rows", len(table.Rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return version, table, nil
}
