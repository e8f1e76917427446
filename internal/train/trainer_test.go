package train

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
	applogger "CoinCast/pkg/logger"
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

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func testHyperparams() Hyperparams {
	return Hyperparams{
		LearningRate:   0.05,
		Epochs:         60,
		BatchSize:      8,
		Patience:       10,
		MinDelta:       1e-6,
		AttentionSpan:  4,
		AttentionDecay: 0.5,
		Seed:           7,
	}
}

// linearSequences builds windows whose label is an exact linear function
// of the last row, so the regression model can fit them to near-zero loss.
func linearSequences(n, lookback, cols int, seed int64) []models.Sequence {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Sequence, n)
	for i := range out {
		inputs := make([][]float64, lookback)
		for r := range inputs {
			row := make([]float64, cols)
			for c := range row {
				row[c] = rng.NormFloat64()
			}
			inputs[r] = row
		}
		last := inputs[lookback-1]
		label := 0.0
		for c, v := range last {
			label += float64(c+1) * 0.1 * v
		}
		out[i] = models.Sequence{Inputs: inputs, Label: label, WindowEnd: base.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

// divergingModel returns NaN losses after a few epochs.
type divergingModel struct {
	AttentionModel
	calls int
	after int
}

func (m *divergingModel) Loss(seqs []models.Sequence) float64 {
	m.calls++
	if m.calls > m.after {
		return math.NaN()
	}
	return 1.0
}

func TestTrainer_ConvergesOnLinearData(t *testing.T) {
	hp := testHyperparams()
	seqs := linearSequences(200, 6, 3, 1)
	trainSet, valSet := seqs[:160], seqs[160:]

	model, err := NewAttentionModel(3, 6, hp)
	require.NoError(t, err)
	trainer, err := NewTrainer(hp, nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	run := &models.ExperimentRun{RunID: "r1", Status: models.RunConfigured}
	weights, err := trainer.Run(context.Background(), run, model, trainSet, valSet)
	require.NoError(t, err)

	assert.True(t, run.Terminal())
	assert.NotEqual(t, models.RunFailed, run.Status)
	assert.Less(t, run.BestValLoss, 0.01)
	assert.Greater(t, run.BestEpoch, 0)
	assert.NotEmpty(t, run.Epochs)
	assert.Len(t, weights.W, 6)
}

func TestTrainer_ReturnsBestEpochWeights(t *testing.T) {
	hp := testHyperparams()
	hp.Epochs = 30
	seqs := linearSequences(120, 6, 2, 2)
	trainSet, valSet := seqs[:100], seqs[100:]

	model, err := NewAttentionModel(2, 6, hp)
	require.NoError(t, err)
	trainer, err := NewTrainer(hp, nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	run := &models.ExperimentRun{RunID: "r2", Status: models.RunConfigured}
	weights, err := trainer.Run(context.Background(), run, model, trainSet, valSet)
	require.NoError(t, err)

	// the model left behind carries the best-epoch weights
	restored, err := RestoreModel(weights)
	require.NoError(t, err)
	assert.InDelta(t, run.BestValLoss, restored.Loss(valSet), 1e-9)
	assert.InDelta(t, run.BestValLoss, model.Loss(valSet), 1e-9)
}

func TestTrainer_DivergenceFailsKeepingEpochs(t *testing.T) {
	hp := testHyperparams()
	inner, err := NewAttentionModel(2, 6, hp)
	require.NoError(t, err)
	model := &divergingModel{AttentionModel: *inner, after: 4}

	trainer, err := NewTrainer(hp, nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	seqs := linearSequences(40, 6, 2, 3)
	run := &models.ExperimentRun{RunID: "r3", Status: models.RunConfigured}
	_, err = trainer.Run(context.Background(), run, model, seqs[:30], seqs[30:])
	require.Error(t, err)

	assert.Equal(t, models.RunFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.NotEmpty(t, run.Epochs, "partial epoch history must survive the failure")
	assert.False(t, run.EndedAt.IsZero())
}

func TestTrainer_EmptySplitsFail(t *testing.T) {
	hp := testHyperparams()
	model, err := NewAttentionModel(2, 6, hp)
	require.NoError(t, err)
	trainer, err := NewTrainer(hp, nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	seqs := linearSequences(10, 6, 2, 4)

	run := &models.ExperimentRun{RunID: "r4", Status: models.RunConfigured}
	_, err = trainer.Run(context.Background(), run, model, nil, seqs)
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)

	run = &models.ExperimentRun{RunID: "r5", Status: models.RunConfigured}
	_, err = trainer.Run(context.Background(), run, model, seqs, nil)
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
}

func TestTrainer_CancelledContextFails(t *testing.T) {
	hp := testHyperparams()
	model, err := NewAttentionModel(2, 6, hp)
	require.NoError(t, err)
	trainer, err := NewTrainer(hp, nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seqs := linearSequences(20, 6, 2, 5)
	run := &models.ExperimentRun{RunID: "r6", Status: models.RunConfigured}
	_, err = trainer.Run(ctx, run, model, seqs[:15], seqs[15:])
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
}

func TestTrainer_Deterministic(t *testing.T) {
	hp := testHyperparams()
	hp.Epochs = 10
	seqs := linearSequences(60, 6, 2, 6)

	runOnce := func() ModelWeights {
		model, err := NewAttentionModel(2, 6, hp)
		require.NoError(t, err)
		trainer, err := NewTrainer(hp, nopMetrics{}, testLogger(t))
		require.NoError(t, err)
		run := &models.ExperimentRun{RunID: "rd", Status: models.RunConfigured}
		w, err := trainer.Run(context.Background(), run, model, seqs[:50], seqs[50:])
		require.NoError(t, err)
		return w
	}

	assert.Equal(t, runOnce(), runOnce())
}

func TestAttentionModel_WeightsRoundTrip(t *testing.T) {
	hp := testHyperparams()
	model, err := NewAttentionModel(3, 6, hp)
	require.NoError(t, err)

	seqs := linearSequences(5, 6, 3, 8)
	model.TrainBatch(seqs)

	restored, err := RestoreModel(model.Weights())
	require.NoError(t, err)
	for _, s := range seqs {
		assert.InDelta(t, model.Predict(s.Inputs), restored.Predict(s.Inputs), 1e-12)
	}
}

func TestAttentionModel_SetWeightsValidatesShape(t *testing.T) {
	_, err := RestoreModel(ModelWeights{W: []float64{1, 2, 3}, Columns: 2, Lookback: 4, AttentionSpan: 2})
	require.Error(t, err)
}

func TestAttentionWeights_SumToOneAndFavorRecency(t *testing.T) {
	w := attentionWeights(5, 0.8)
	var sum float64
	for i := 1; i < len(w); i++ {
		assert.Greater(t, w[i], w[i-1])
	}
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}
