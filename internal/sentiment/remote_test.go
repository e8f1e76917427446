package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/pkg/config"
)

func remoteConfig(url string) *config.Config {
	cfg := &config.Config{}
	cfg.Sentiment.RemoteURL = url
	cfg.Sentiment.ScoreTimeout = 2 * time.Second
	cfg.Sentiment.RemoteMaxRPS = 1000
	return cfg
}

func TestRemoteScorer_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/score", r.URL.Path)

		var req scoreReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "btc mooning", req.Text)

		json.NewEncoder(w).Encode(scoreResp{Score: 0.8, Model: "fin-sent-1"})
	}))
	defer srv.Close()

	s := NewRemoteScorer(remoteConfig(srv.URL))
	score, err := s.Score(context.Background(), "btc mooning")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, score, 1e-12)
}

func TestRemoteScorer_OutOfRangeScoreRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResp{Score: 3.5})
	}))
	defer srv.Close()

	s := NewRemoteScorer(remoteConfig(srv.URL))
	_, err := s.Score(context.Background(), "whatever")
	require.Error(t, err)
}

func TestRemoteScorer_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewRemoteScorer(remoteConfig(srv.URL))
	_, err := s.Score(context.Background(), "whatever")
	require.Error(t, err)
}

func TestRemoteScorer_UnconfiguredURLFails(t *testing.T) {
	s := NewRemoteScorer(remoteConfig(""))
	_, err := s.Score(context.Background(), "whatever")
	require.Error(t, err)
}
