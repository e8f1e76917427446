package experiment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/train"
	applogger "CoinCast/pkg/logger"
)

// RunKey is the identity of a training run. Two runs with the same data
// version, feature configuration, and hyperparameters hash to the same id,
// which is what makes re-submitting an identical experiment a no-op.
type RunKey struct {
	DataVersion   string            `json:"data_version"`
	FeatureConfig FeatureConfig     `json:"feature_config"`
	Hyperparams   train.Hyperparams `json:"hyperparams"`
}

// FeatureConfig captures the parts of pipeline configuration that change
// what the model sees.
type FeatureConfig struct {
	Indicators []string `json:"indicators"`
	BucketRule string   `json:"bucket_rule"`
	Lookback   int      `json:"lookback"`
	Horizon    int      `json:"horizon"`
	Stride     int      `json:"stride"`
	Normalize  string   `json:"normalize"`
}

// Hash derives the run id. Struct fields marshal in declaration order, so
// the JSON form is canonical for a given key.
func (k RunKey) Hash() (string, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("marshal run key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

// Tracker assigns run identities and persists run records around the
// trainer. Begin dedupes by run id; Complete writes the terminal record.
type Tracker struct {
	runs    domrepo.RunStore
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewTracker(runs domrepo.RunStore, metrics domrepo.Metrics, l *applogger.Logger) *Tracker {
	return &Tracker{runs: runs, metrics: metrics, logger: l}
}

// Begin registers a new run for the key. When a run with the same id
// already exists and force is false, the existing record is returned
// alongside ErrRunExists and no new run starts. With force, a fresh id is
// minted by suffixing the hash with a retry ordinal.
func (t *Tracker) Begin(ctx context.Context, key RunKey, force bool) (*models.ExperimentRun, error) {
	base, err := key.Hash()
	if err != nil {
		return nil, err
	}

	existing, err := t.runs.Get(ctx, base)
	if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
		return nil, fmt.Errorf("lookup run %s: %w", base, err)
	}

	runID := base
	if existing != nil {
		if !force {
			t.logger.Info("run already exists, skipping",
				applogger.String("run_id", base),
				applogger.String("status", string(existing.Status)),
			)
			return existing, domrepo.ErrRunExists
		}
		n, err := t.runs.CountByPrefix(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("count reruns of %s: %w", base, err)
		}
		runID = fmt.Sprintf("%s.%d", base, n+1)
	}

	cfg, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("marshal run config: %w", err)
	}
	run := &models.ExperimentRun{
		RunID:       runID,
		DataVersion: key.DataVersion,
		ConfigJSON:  string(cfg),
		Status:      models.RunConfigured,
		StartedAt:   time.Now().UTC(),
	}
	if err := t.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run %s: %w", runID, err)
	}
	t.metrics.RecordRunStatus(string(models.RunConfigured))
	t.logger.Info("run registered",
		applogger.String("run_id", runID),
		applogger.String("data_version", key.DataVersion),
		applogger.Any("forced", force && existing != nil),
	)
	return run, nil
}

// Complete persists the terminal run record. It refuses to record a run
// that has not reached a terminal status.
func (t *Tracker) Complete(ctx context.Context, run *models.ExperimentRun) error {
	if !run.Terminal() {
		return fmt.Errorf("experiment: run %s is not terminal (%s)", run.RunID, run.Status)
	}
	if err := t.runs.Insert(ctx, run); err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}
