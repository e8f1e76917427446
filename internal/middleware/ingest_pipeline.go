package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
)

// IngestPipeline sits between the observation feed and the store. It
// validates records, buffers them, and flushes batches by size or age so
// a bursty feed turns into a steady stream of bulk inserts. Invalid
// records are counted and dropped; they never reach the store.
type IngestPipeline struct {
	store        domrepo.ObservationStore
	metrics      domrepo.Metrics
	batchSize    int
	batchTimeout time.Duration

	mu      sync.Mutex
	buf     []models.RawObservation
	stopCh  chan struct{}
	started bool
	wg      sync.WaitGroup
}

type PipelineOption func(*IngestPipeline)

// WithBatchSize sets the flush threshold.
func WithBatchSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBatchTimeout sets the max age of a partial batch before flushing.
func WithBatchTimeout(d time.Duration) PipelineOption {
	return func(p *IngestPipeline) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(store domrepo.ObservationStore, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		store:        store,
		metrics:      metrics,
		batchSize:    500,
		batchTimeout: 5 * time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.buf = make([]models.RawObservation, 0, p.batchSize)
	return p
}

// Start launches the age-based flusher.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.batchTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				if err := p.Flush(ctx); err != nil {
					p.metrics.RecordError("ingest_flush")
				}
			}
		}
	}()
}

// Stop flushes whatever is buffered and stops the flusher.
func (p *IngestPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
	return p.Flush(ctx)
}

// Submit validates and buffers a batch from the feed, flushing when the
// buffer reaches the batch size.
func (p *IngestPipeline) Submit(ctx context.Context, batch *models.ObservationBatch) error {
	if batch == nil {
		return fmt.Errorf("pipeline: nil batch")
	}
	accepted := 0
	p.mu.Lock()
	for _, obs := range batch.Records {
		if err := validateObservation(&obs); err != nil {
			p.metrics.RecordError("ingest_validate")
			continue
		}
		if obs.IngestedAt.IsZero() {
			obs.IngestedAt = batch.IngestedAt
		}
		p.buf = append(p.buf, obs)
		accepted++
	}
	full := len(p.buf) >= p.batchSize
	p.mu.Unlock()

	p.metrics.RecordObservations(string(batch.Source), accepted)
	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered observations in one store call.
func (p *IngestPipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return nil
	}
	pending := p.buf
	p.buf = make([]models.RawObservation, 0, p.batchSize)
	p.mu.Unlock()

	start := time.Now()
	if err := p.store.AppendBatch(ctx, pending); err != nil {
		// put the batch back so the next flush retries it
		p.mu.Lock()
		p.buf = append(pending, p.buf...)
		p.mu.Unlock()
		return fmt.Errorf("pipeline flush: %w", err)
	}
	p.metrics.RecordLatency("ingest_flush", time.Since(start).Seconds())
	return nil
}

func validateObservation(o *models.RawObservation) error {
	if o.Timestamp.IsZero() {
		return fmt.Errorf("timestamp missing")
	}
	switch o.Source {
	case models.SourcePrice:
		if o.Bar == nil {
			return fmt.Errorf("price observation without bar")
		}
		b := o.Bar
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("non-positive price")
		}
		if b.Volume < 0 {
			return fmt.Errorf("negative volume")
		}
		if b.High < b.Low {
			return fmt.Errorf("high below low")
		}
	case models.SourceSocial, models.SourceNews:
		if o.Doc == nil {
			return fmt.Errorf("text observation without doc")
		}
		if o.Doc.Body == "" {
			return fmt.Errorf("empty body")
		}
	default:
		return fmt.Errorf("unknown source %q", o.Source)
	}
	return nil
}
