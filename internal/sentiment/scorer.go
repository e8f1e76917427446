package sentiment

import (
	"context"
	"fmt"
	"time"

	domsvc "CoinCast/internal/domain/service"
	"CoinCast/pkg/config"
)

// NewScorer builds the configured scorer by name. The lexicon scorer runs
// in-process for short text; the remote scorer calls the external model
// service for longer text.
func NewScorer(cfg *config.Config) (domsvc.SentimentScorer, error) {
	switch cfg.Sentiment.Scorer {
	case "lexicon", "":
		return NewLexiconScorer(), nil
	case "remote":
		return NewRemoteScorer(cfg), nil
	default:
		return nil, fmt.Errorf("sentiment: unknown scorer %q", cfg.Sentiment.Scorer)
	}
}

// timeoutScorer bounds every Score call so one slow item can never stall
// the pipeline; on expiry the item is treated as failed and marked missing
// by the caller.
type timeoutScorer struct {
	inner   domsvc.SentimentScorer
	timeout time.Duration
}

// WithTimeout wraps a scorer with a per-call deadline.
func WithTimeout(s domsvc.SentimentScorer, d time.Duration) domsvc.SentimentScorer {
	if d <= 0 {
		return s
	}
	return &timeoutScorer{inner: s, timeout: d}
}

func (t *timeoutScorer) Name() string { return t.inner.Name() }

func (t *timeoutScorer) Score(ctx context.Context, text string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		score float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := t.inner.Score(ctx, text)
		ch <- result{score: s, err: err}
	}()

	select {
	case r := <-ch:
		return r.score, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("sentiment: score timed out: %w", ctx.Err())
	}
}
