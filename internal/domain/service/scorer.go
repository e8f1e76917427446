package service

import "context"

// SentimentScorer is the capability a sentiment implementation must
// provide: a polarity score in [-1, 1] for a piece of text. Any failure is
// per-item; callers fall back to a missing score, never abort the bucket.
type SentimentScorer interface {
	Name() string
	Score(ctx context.Context, text string) (float64, error)
}
