package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
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

type captureStore struct {
	mu      sync.Mutex
	batches [][]models.RawObservation
	failN   int
}

func (s *captureStore) AppendBatch(_ context.Context, obs []models.RawObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("store unavailable")
	}
	cp := append([]models.RawObservation(nil), obs...)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *captureStore) PriceBars(context.Context, time.Time, time.Time) ([]models.PriceBar, error) {
	return nil, nil
}

func (s *captureStore) TextDocs(context.Context, time.Time, time.Time) ([]models.TextDoc, error) {
	return nil, nil
}

func (s *captureStore) Health(context.Context) error { return nil }

func (s *captureStore) stored() []models.RawObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RawObservation
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

var obsTS = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func priceObs(close float64) models.RawObservation {
	return models.RawObservation{
		Source:    models.SourcePrice,
		Timestamp: obsTS,
		Bar:       &models.PriceBar{TS: obsTS, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10},
	}
}

func textObs(body string) models.RawObservation {
	return models.RawObservation{
		Source:    models.SourceSocial,
		Timestamp: obsTS,
		Doc:       &models.TextDoc{TS: obsTS, Source: models.SourceSocial, Author: "a", Body: body},
	}
}

func TestSubmit_FlushesOnFullBuffer(t *testing.T) {
	store := &captureStore{}
	p := NewIngestPipeline(store, nopMetrics{}, WithBatchSize(2))
	ctx := context.Background()

	require.NoError(t, p.Submit(ctx, &models.ObservationBatch{
		Source:     models.SourcePrice,
		IngestedAt: obsTS,
		Records:    []models.RawObservation{priceObs(100)},
	}))
	assert.Empty(t, store.stored(), "partial buffer must not flush")

	require.NoError(t, p.Submit(ctx, &models.ObservationBatch{
		Source:     models.SourcePrice,
		IngestedAt: obsTS,
		Records:    []models.RawObservation{priceObs(101)},
	}))
	assert.Len(t, store.stored(), 2)
}

func TestSubmit_DropsInvalidRecords(t *testing.T) {
	store := &captureStore{}
	p := NewIngestPipeline(store, nopMetrics{}, WithBatchSize(100))
	ctx := context.Background()

	bad := []models.RawObservation{
		{Source: models.SourcePrice, Timestamp: obsTS},              // bar missing
		{Source: models.SourceSocial, Timestamp: obsTS},             // doc missing
		{Source: "ticker", Timestamp: obsTS},                        // unknown source
		{Source: models.SourcePrice, Bar: &models.PriceBar{}},       // zero timestamp
		textObs(""),                                                 // empty body
	}
	negPrice := priceObs(100)
	negPrice.Bar.Close = -1
	inverted := priceObs(100)
	inverted.Bar.High, inverted.Bar.Low = inverted.Bar.Low, inverted.Bar.High

	records := append(bad, negPrice, inverted, priceObs(100), textObs("hello"))
	require.NoError(t, p.Submit(ctx, &models.ObservationBatch{
		Source:     models.SourcePrice,
		IngestedAt: obsTS,
		Records:    records,
	}))

	require.NoError(t, p.Flush(ctx))
	assert.Len(t, store.stored(), 2)
}

func TestSubmit_DefaultsIngestedAt(t *testing.T) {
	store := &captureStore{}
	p := NewIngestPipeline(store, nopMetrics{}, WithBatchSize(100))
	ctx := context.Background()

	require.NoError(t, p.Submit(ctx, &models.ObservationBatch{
		Source:     models.SourcePrice,
		IngestedAt: obsTS.Add(time.Minute),
		Records:    []models.RawObservation{priceObs(100)},
	}))
	require.NoError(t, p.Flush(ctx))

	stored := store.stored()
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IngestedAt.Equal(obsTS.Add(time.Minute)))
}

func TestFlush_RetriesFailedBatch(t *testing.T) {
	store := &captureStore{failN: 1}
	p := NewIngestPipeline(store, nopMetrics{}, WithBatchSize(100))
	ctx := context.Background()

	require.NoError(t, p.Submit(ctx, &models.ObservationBatch{
		Source:     models.SourcePrice,
		IngestedAt: obsTS,
		Records:    []models.RawObservation{priceObs(100)},
	}))

	require.Error(t, p.Flush(ctx))
	assert.Empty(t, store.stored())

	// the failed batch stays buffered for the next flush
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, store.stored(), 1)
}

func TestStop_FlushesRemainder(t *testing.T) {
	store := &captureStore{}
	p := NewIngestPipeline(store, nopMetrics{}, WithBatchSize(100), WithBatchTimeout(time.Hour))
	ctx := context.Background()
	p.Start(ctx)

	require.NoError(t, p.Submit(ctx, &models.ObservationBatch{
		Source:     models.SourcePrice,
		IngestedAt: obsTS,
		Records:    []models.RawObservation{priceObs(100)},
	}))

	require.NoError(t, p.Stop(ctx))
	assert.Len(t, store.stored(), 1)
}
