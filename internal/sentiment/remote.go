package sentiment

import (
	"context"
	"fmt"
	"math"
	"time"

	"CoinCast/internal/service/ratelimit"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
)

// RemoteScorer calls the external model-based scoring service over HTTP.
// The client timeout comes from config; callers additionally wrap with
// WithTimeout so one slow call marks the item missing instead of stalling
// the bucket. Outbound calls are rate limited so a large backfill cannot
// flood the scoring service.
type RemoteScorer struct {
	baseURL string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	maxRPS  float64
}

func NewRemoteScorer(cfg *config.Config) *RemoteScorer {
	rps := cfg.Sentiment.RemoteMaxRPS
	if rps <= 0 {
		rps = 20
	}
	return &RemoteScorer{
		baseURL: cfg.Sentiment.RemoteURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(cfg.Sentiment.ScoreTimeout)),
		limiter: ratelimit.New(),
		maxRPS:  rps,
	}
}

func (s *RemoteScorer) Name() string { return "remote" }

type scoreReq struct {
	Text string `json:"text"`
}

type scoreResp struct {
	Score float64 `json:"score"`
	Model string  `json:"model"`
}

func (s *RemoteScorer) Score(ctx context.Context, text string) (float64, error) {
	if s.baseURL == "" {
		return 0, fmt.Errorf("sentiment: remote scorer url not configured")
	}
	for !s.limiter.Allow("score", s.maxRPS, s.maxRPS) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	var sr scoreResp
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.baseURL + "/score",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: scoreReq{Text: text},
	}, &sr)
	if err != nil {
		return 0, fmt.Errorf("post score: %w", err)
	}
	if math.IsNaN(sr.Score) || sr.Score < -1 || sr.Score > 1 {
		return 0, fmt.Errorf("sentiment: remote score out of range: %v", sr.Score)
	}
	return sr.Score, nil
}
