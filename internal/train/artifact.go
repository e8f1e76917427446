package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"CoinCast/internal/domain/models"
)

// Artifact is the complete serving bundle for one run: everything the
// predictor needs to reproduce the training-time transform and forward
// pass, keyed by run id.
type Artifact struct {
	RunID       string                    `json:"run_id"`
	DataVersion string                    `json:"data_version"`
	Schema      []string                  `json:"schema"`
	Lookback    int                       `json:"lookback"`
	Horizon     int                       `json:"horizon"`
	Hyperparams Hyperparams               `json:"hyperparams"`
	Stats       models.NormalizationStats `json:"stats"`
	Weights     ModelWeights              `json:"weights"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// ArtifactStore persists artifacts as one JSON file per run under the
// configured model directory.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("train: model dir not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

// Save writes the artifact atomically so a crashed save never leaves a
// half-written file behind the run id.
func (s *ArtifactStore) Save(a *Artifact) error {
	if a.RunID == "" {
		return fmt.Errorf("train: artifact has no run id")
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	tmp := s.path(a.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, s.path(a.RunID)); err != nil {
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStore) Load(runID string) (*Artifact, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("train: no artifact for run %s", runID)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", runID, err)
	}
	return &a, nil
}

func (s *ArtifactStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
