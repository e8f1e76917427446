package repository

import (
	"context"
	"errors"
	"time"

	"CoinCast/internal/domain/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrRunExists signals that a run with the same identity already ran;
	// the existing record accompanies it.
	ErrRunExists = errors.New("repository: run already exists")
	// ErrRegistryConflict is returned when a promotion carries a stale
	// expected version; the caller must re-fetch and retry.
	ErrRegistryConflict = errors.New("registry: stale promotion rejected")
	// ErrNoProduction is returned when no entry holds the production stage.
	ErrNoProduction = errors.New("registry: no production entry")
	// ErrNoRollback is returned when no archived predecessor exists.
	ErrNoRollback = errors.New("registry: nothing to roll back to")
)

// ObservationStore is the append-only raw observation store. Records are
// never mutated after AppendBatch; queries order by observation timestamp.
type ObservationStore interface {
	AppendBatch(ctx context.Context, obs []models.RawObservation) error
	PriceBars(ctx context.Context, from, to time.Time) ([]models.PriceBar, error)
	TextDocs(ctx context.Context, from, to time.Time) ([]models.TextDoc, error)
	Health(ctx context.Context) error
}

// FeatureStore persists content-versioned feature dataset snapshots.
type FeatureStore interface {
	SaveSnapshot(ctx context.Context, version string, table *models.FeatureTable) error
	LoadSnapshot(ctx context.Context, version string) (*models.FeatureTable, error)
	LatestVersion(ctx context.Context) (string, error)
	Health(ctx context.Context) error
}

// RunStore keeps experiment run records. Insert upserts by run id so the
// terminal record supersedes the configured one; terminal records are
// never rewritten.
type RunStore interface {
	Insert(ctx context.Context, run *models.ExperimentRun) error
	Get(ctx context.Context, runID string) (*models.ExperimentRun, error)
	List(ctx context.Context, limit int) ([]*models.ExperimentRun, error)
	CountByPrefix(ctx context.Context, prefix string) (int, error)
}

// Registry manages model version stages. Promote is atomic: it demotes the
// current production entry to archived, keeps it as the rollback pointer,
// and rejects promotions whose expectedVersion no longer matches the
// current production version (0 when none). History is never deleted.
type Registry interface {
	Production(ctx context.Context) (*models.RegistryEntry, error)
	Promote(ctx context.Context, runID string, expectedVersion int64) (*models.RegistryEntry, error)
	Rollback(ctx context.Context) (*models.RegistryEntry, error)
	History(ctx context.Context) ([]*models.RegistryEntry, error)
}

// Metrics abstracts pipeline instrumentation.
type Metrics interface {
	RecordObservations(source string, count int)
	RecordMergedRow(complete bool)
	RecordWindow(emitted bool)
	RecordSentimentItem(ok bool)
	RecordRunStatus(status string)
	RecordPromotion(action string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
