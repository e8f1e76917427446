package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/middleware"
	pkgkafka "CoinCast/pkg/kafka"
)

// IngestHandler consumes observation batches from Kafka and feeds them
// through the ingest pipeline.
type IngestHandler struct {
	topic    string
	pipeline *middleware.IngestPipeline
	metrics  domrepo.Metrics
}

func NewIngestHandler(topic string, pipeline *middleware.IngestPipeline, metrics domrepo.Metrics) *IngestHandler {
	return &IngestHandler{topic: topic, pipeline: pipeline, metrics: metrics}
}

func (h *IngestHandler) Topic() string { return h.topic }

func (h *IngestHandler) Handle(ctx context.Context, b []byte) error {
	var batch models.ObservationBatch
	if err := json.Unmarshal(b, &batch); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if batch.IngestedAt.IsZero() {
		batch.IngestedAt = time.Now().UTC()
	}

	start := time.Now()
	if err := h.pipeline.Submit(ctx, &batch); err != nil {
		h.metrics.RecordError("consumer_submit")
		return err
	}
	h.metrics.RecordLatency("ingest_submit", time.Since(start).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*IngestHandler)(nil)
