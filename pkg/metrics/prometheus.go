package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	observations   *prometheus.CounterVec
	mergedRows     *prometheus.CounterVec
	windows        *prometheus.CounterVec
	sentimentItems *prometheus.CounterVec
	runStatus      *prometheus.CounterVec
	promotions     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		observations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_observations_ingested_total",
				Help: "Total number of raw observations written to the store",
			},
			[]string{"source"},
		),
		mergedRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_merged_rows_total",
				Help: "Merged feature rows produced, by completeness",
			},
			[]string{"complete"},
		),
		windows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_windows_total",
				Help: "Candidate training windows, by whether they were emitted",
			},
			[]string{"emitted"},
		),
		sentimentItems: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_sentiment_items_total",
				Help: "Text items scored for sentiment, by outcome",
			},
			[]string{"ok"},
		),
		runStatus: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_run_status_total",
				Help: "Experiment run status transitions",
			},
			[]string{"status"},
		),
		promotions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_registry_actions_total",
				Help: "Model registry promote and rollback actions",
			},
			[]string{"action"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordObservations counts raw observations appended for a source.
func (r *Recorder) RecordObservations(source string, count int) {
	r.observations.WithLabelValues(source).Add(float64(count))
}

// RecordMergedRow counts one merged feature row.
func (r *Recorder) RecordMergedRow(complete bool) {
	r.mergedRows.WithLabelValues(boolLabel(complete)).Inc()
}

// RecordWindow counts one candidate window.
func (r *Recorder) RecordWindow(emitted bool) {
	r.windows.WithLabelValues(boolLabel(emitted)).Inc()
}

// RecordSentimentItem counts one scored text item.
func (r *Recorder) RecordSentimentItem(ok bool) {
	r.sentimentItems.WithLabelValues(boolLabel(ok)).Inc()
}

// RecordRunStatus counts a run status transition.
func (r *Recorder) RecordRunStatus(status string) {
	r.runStatus.WithLabelValues(status).Inc()
}

// RecordPromotion counts a registry action.
func (r *Recorder) RecordPromotion(action string) {
	r.promotions.WithLabelValues(action).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
