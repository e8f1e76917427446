package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	applogger "CoinCast/pkg/logger"
)

// Trainer drives the epoch loop for one run. It owns the run lifecycle
// transitions: a run enters as configured, moves to running, and ends in
// exactly one terminal state. On failure the partial epoch history stays
// on the run record so a failed run remains inspectable.
type Trainer struct {
	hp      Hyperparams
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewTrainer(hp Hyperparams, metrics domrepo.Metrics, l *applogger.Logger) (*Trainer, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{hp: hp, metrics: metrics, logger: l}, nil
}

// Run fits model on the training split, evaluates on the validation split
// each epoch, and returns the weights from the best validation epoch. The
// run record is mutated in place; the caller persists it in every outcome.
func (t *Trainer) Run(ctx context.Context, run *models.ExperimentRun, model Model, trainSet, valSet []models.Sequence) (ModelWeights, error) {
	if len(trainSet) == 0 {
		return t.fail(run, fmt.Errorf("train: empty training split"))
	}
	if len(valSet) == 0 {
		return t.fail(run, fmt.Errorf("train: empty validation split"))
	}

	run.Status = models.RunRunning
	run.StartedAt = time.Now().UTC()
	t.metrics.RecordRunStatus(string(run.Status))
	t.logger.Info("training started",
		applogger.String("run_id", run.RunID),
		applogger.Int("train_sequences", len(trainSet)),
		applogger.Int("val_sequences", len(valSet)),
	)

	rng := rand.New(rand.NewSource(t.hp.Seed))
	order := make([]int, len(trainSet))
	for i := range order {
		order[i] = i
	}

	best := model.Weights()
	bestVal := math.Inf(1)
	bestEpoch := 0
	sinceBest := 0
	status := models.RunConverged

	for epoch := 1; epoch <= t.hp.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return t.fail(run, fmt.Errorf("train: run cancelled: %w", err))
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < len(order); start += t.hp.BatchSize {
			end := start + t.hp.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := make([]models.Sequence, 0, end-start)
			for _, idx := range order[start:end] {
				batch = append(batch, trainSet[idx])
			}
			model.TrainBatch(batch)
		}

		trainLoss := model.Loss(trainSet)
		valLoss := model.Loss(valSet)
		run.Epochs = append(run.Epochs, models.EpochMetrics{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss})

		if !isFinite(trainLoss) || !isFinite(valLoss) {
			return t.fail(run, fmt.Errorf("train: loss diverged at epoch %d", epoch))
		}

		t.logger.Debug("epoch done",
			applogger.String("run_id", run.RunID),
			applogger.Int("epoch", epoch),
			applogger.Any("train_loss", trainLoss),
			applogger.Any("val_loss", valLoss),
		)

		if valLoss < bestVal-t.hp.MinDelta {
			bestVal = valLoss
			bestEpoch = epoch
			best = model.Weights()
			sinceBest = 0
		} else {
			sinceBest++
			if sinceBest >= t.hp.Patience {
				status = models.RunEarlyStopped
				break
			}
		}
	}

	run.Status = status
	run.EndedAt = time.Now().UTC()
	run.BestEpoch = bestEpoch
	run.BestValLoss = bestVal
	t.metrics.RecordRunStatus(string(status))
	t.logger.Info("training finished",
		applogger.String("run_id", run.RunID),
		applogger.String("status", string(status)),
		applogger.Int("best_epoch", bestEpoch),
		applogger.Any("best_val_loss", bestVal),
	)

	if err := model.SetWeights(best); err != nil {
		return t.fail(run, fmt.Errorf("train: restore best weights: %w", err))
	}
	return best, nil
}

func (t *Trainer) fail(run *models.ExperimentRun, err error) (ModelWeights, error) {
	run.Status = models.RunFailed
	run.EndedAt = time.Now().UTC()
	run.Error = err.Error()
	t.metrics.RecordRunStatus(string(models.RunFailed))
	t.logger.Error("training failed",
		applogger.String("run_id", run.RunID),
		applogger.Error(err),
	)
	return ModelWeights{}, err
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
