package sentiment

import (
	"context"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	applogger "CoinCast/pkg/logger"
)

// Reducer names a bucket aggregation.
const (
	ReduceMean     = "mean"
	ReduceWeighted = "weighted" // volume-weighted by TextDoc.Weight
)

// Bucketer partitions text observations into fixed-width buckets aligned
// to the feature grid and reduces per-item scores to one SentimentRow per
// bucket. A bucket with zero items (or zero scorable items) yields a
// missing score, never a neutral zero. Item failures are per-item: the
// item is skipped and the bucket continues.
type Bucketer struct {
	scorer  domsvc.SentimentScorer
	width   time.Duration
	reducer string
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewBucketer(scorer domsvc.SentimentScorer, width time.Duration, reducer string, metrics domrepo.Metrics, l *applogger.Logger) (*Bucketer, error) {
	if width <= 0 {
		return nil, fmt.Errorf("sentiment: bucket width must be positive")
	}
	switch reducer {
	case ReduceMean, ReduceWeighted:
	case "":
		reducer = ReduceMean
	default:
		return nil, fmt.Errorf("sentiment: unknown reducer %q", reducer)
	}
	return &Bucketer{scorer: scorer, width: width, reducer: reducer, metrics: metrics, logger: l}, nil
}

// Aggregate scores docs into buckets ending at from, from+width, ..., to.
// Docs must be ordered by timestamp ascending; a doc belongs to the bucket
// (end-width, end]. Output order is increasing bucket end, one row per
// bucket, deterministic for a given input order by timestamp.
func (b *Bucketer) Aggregate(ctx context.Context, docs []models.TextDoc, from, to time.Time) []models.SentimentRow {
	if to.Before(from) {
		return nil
	}
	n := int(to.Sub(from)/b.width) + 1
	rows := make([]models.SentimentRow, 0, n)

	di := 0
	for k := 0; k < n; k++ {
		end := from.Add(time.Duration(k) * b.width)
		start := end.Add(-b.width)

		// skip docs before this bucket (possible on the first bucket only)
		for di < len(docs) && !docs[di].TS.After(start) {
			di++
		}

		var sum, weightSum float64
		count := 0
		for di < len(docs) && !docs[di].TS.After(end) {
			doc := docs[di]
			di++
			score, err := b.scorer.Score(ctx, doc.Body)
			if err != nil {
				// per-item fallback: mark missing, keep going
				b.metrics.RecordSentimentItem(false)
				b.logger.Warn("sentiment item skipped",
					applogger.String("scorer", b.scorer.Name()),
					applogger.Error(err),
				)
				continue
			}
			b.metrics.RecordSentimentItem(true)
			w := doc.Weight
			if b.reducer != ReduceWeighted || w <= 0 {
				w = 1
			}
			sum += score * w
			weightSum += w
			count++
		}

		row := models.SentimentRow{TS: end, Score: models.Missing(), Count: count}
		if count > 0 && weightSum > 0 {
			row.Score = models.Some(sum / weightSum)
		}
		rows = append(rows, row)
	}
	return rows
}
