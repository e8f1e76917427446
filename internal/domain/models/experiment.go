package models

import "time"

// RunStatus is the trainer state machine surface that outlives the run.
type RunStatus string

const (
	RunConfigured   RunStatus = "configured"
	RunRunning      RunStatus = "running"
	RunConverged    RunStatus = "converged"
	RunEarlyStopped RunStatus = "early_stopped"
	RunFailed       RunStatus = "failed"
)

// EpochMetrics is one row of the per-epoch metrics log.
type EpochMetrics struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
}

// ExperimentRun records one trainer invocation. RunID is the content hash
// of {data version, feature/window config, hyperparameters}; the record is
// immutable once the run reaches a terminal status.
type ExperimentRun struct {
	RunID       string         `json:"run_id"`
	DataVersion string         `json:"data_version"`
	ConfigJSON  string         `json:"config_json"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	Epochs      []EpochMetrics `json:"epochs"`
	BestEpoch   int            `json:"best_epoch"`
	BestValLoss float64        `json:"best_val_loss"`
	Error       string         `json:"error,omitempty"`
}

// Terminal reports whether the run reached a final status.
func (r *ExperimentRun) Terminal() bool {
	switch r.Status {
	case RunConverged, RunEarlyStopped, RunFailed:
		return true
	}
	return false
}

// Stage is the registry lifecycle of a model version.
type Stage string

const (
	StageStaging    Stage = "staging"
	StageProduction Stage = "production"
	StageArchived   Stage = "archived"
)

// RegistryEntry binds a model version to the run that produced it.
// ModelVersion is a monotonic counter; PrevID points at the entry that was
// production before this one, enabling one-step rollback.
type RegistryEntry struct {
	ModelVersion int64     `json:"model_version"`
	RunID        string    `json:"run_id"`
	Stage        Stage     `json:"stage"`
	PromotedAt   time.Time `json:"promoted_at"`
	PrevID       int64     `json:"prev_id,omitempty"`
}
