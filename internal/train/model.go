package train

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"CoinCast/internal/domain/models"
)

// Hyperparams configures one training run. The struct serialises into the
// run config, so two runs with identical hyperparameters and data hash to
// the same run identity.
type Hyperparams struct {
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate" default:"0.01"`
	Epochs         int     `json:"epochs" yaml:"epochs" default:"50"`
	BatchSize      int     `json:"batch_size" yaml:"batch_size" default:"32"`
	Patience       int     `json:"patience" yaml:"patience" default:"5"`
	MinDelta       float64 `json:"min_delta" yaml:"min_delta" default:"0.0001"`
	AttentionSpan  int     `json:"attention_span" yaml:"attention_span" default:"8"`
	AttentionDecay float64 `json:"attention_decay" yaml:"attention_decay" default:"0.5"`
	Seed           int64   `json:"seed" yaml:"seed" default:"42"`
}

func (h Hyperparams) Validate() error {
	if h.LearningRate <= 0 {
		return fmt.Errorf("train: learning rate must be positive")
	}
	if h.Epochs < 1 {
		return fmt.Errorf("train: epochs must be >= 1")
	}
	if h.BatchSize < 1 {
		return fmt.Errorf("train: batch size must be >= 1")
	}
	if h.Patience < 1 {
		return fmt.Errorf("train: patience must be >= 1")
	}
	if h.AttentionSpan < 1 {
		return fmt.Errorf("train: attention span must be >= 1")
	}
	return nil
}

// ModelWeights is the portable parameter set persisted in artifacts.
type ModelWeights struct {
	W              []float64 `json:"w"`
	B              float64   `json:"b"`
	Columns        int       `json:"columns"`
	Lookback       int       `json:"lookback"`
	AttentionSpan  int       `json:"attention_span"`
	AttentionDecay float64   `json:"attention_decay"`
}

// Model is the minimal contract the trainer and predictor need: batch
// updates during fitting, loss evaluation, point prediction, and weight
// round-tripping for artifacts.
type Model interface {
	TrainBatch(batch []models.Sequence) float64
	Loss(seqs []models.Sequence) float64
	Predict(inputs [][]float64) float64
	Weights() ModelWeights
	SetWeights(w ModelWeights) error
}

// AttentionModel pools a window with a fixed recency-weighted attention
// over the last span rows, concatenates the pooled vector with the final
// row, and regresses the normalised forward return linearly on that
// feature vector. Gradients are exact, so fitting is plain mini-batch SGD.
type AttentionModel struct {
	w        *mat.VecDense
	b        float64
	cols     int
	lookback int
	span     int
	decay    float64
	attn     []float64 // fixed softmax weights over the last span rows
	lr       float64
}

func NewAttentionModel(cols, lookback int, hp Hyperparams) (*AttentionModel, error) {
	if cols < 1 || lookback < 2 {
		return nil, fmt.Errorf("train: model needs cols >= 1 and lookback >= 2")
	}
	span := hp.AttentionSpan
	if span > lookback {
		span = lookback
	}
	m := &AttentionModel{
		cols:     cols,
		lookback: lookback,
		span:     span,
		decay:    hp.AttentionDecay,
		attn:     attentionWeights(span, hp.AttentionDecay),
		lr:       hp.LearningRate,
	}

	rng := rand.New(rand.NewSource(hp.Seed))
	dim := 2 * cols
	w := make([]float64, dim)
	scale := 1 / math.Sqrt(float64(dim))
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * scale
	}
	m.w = mat.NewVecDense(dim, w)
	return m, nil
}

// attentionWeights builds softmax(exp(-decay * age)) for ages span-1..0.
func attentionWeights(span int, decay float64) []float64 {
	w := make([]float64, span)
	var sum float64
	for i := 0; i < span; i++ {
		age := float64(span - 1 - i)
		w[i] = math.Exp(-decay * age)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// features maps a window to the regression input: recency-pooled vector
// followed by the last row.
func (m *AttentionModel) features(inputs [][]float64) *mat.VecDense {
	z := mat.NewVecDense(2*m.cols, nil)
	offset := len(inputs) - m.span
	for i := 0; i < m.span; i++ {
		row := inputs[offset+i]
		for c := 0; c < m.cols; c++ {
			z.SetVec(c, z.AtVec(c)+m.attn[i]*row[c])
		}
	}
	last := inputs[len(inputs)-1]
	for c := 0; c < m.cols; c++ {
		z.SetVec(m.cols+c, last[c])
	}
	return z
}

// Predict returns the model output for one normalised window.
func (m *AttentionModel) Predict(inputs [][]float64) float64 {
	return mat.Dot(m.w, m.features(inputs)) + m.b
}

// TrainBatch runs one SGD step on the batch and returns the batch MSE
// before the update.
func (m *AttentionModel) TrainBatch(batch []models.Sequence) float64 {
	if len(batch) == 0 {
		return 0
	}
	grad := mat.NewVecDense(m.w.Len(), nil)
	var gradB, loss float64
	for _, seq := range batch {
		z := m.features(seq.Inputs)
		residual := mat.Dot(m.w, z) + m.b - seq.Label
		loss += residual * residual
		grad.AddScaledVec(grad, 2*residual, z)
		gradB += 2 * residual
	}
	n := float64(len(batch))
	m.w.AddScaledVec(m.w, -m.lr/n, grad)
	m.b -= m.lr / n * gradB
	return loss / n
}

// Loss evaluates MSE without updating parameters.
func (m *AttentionModel) Loss(seqs []models.Sequence) float64 {
	if len(seqs) == 0 {
		return 0
	}
	var loss float64
	for _, seq := range seqs {
		r := m.Predict(seq.Inputs) - seq.Label
		loss += r * r
	}
	return loss / float64(len(seqs))
}

func (m *AttentionModel) Weights() ModelWeights {
	w := make([]float64, m.w.Len())
	copy(w, m.w.RawVector().Data)
	return ModelWeights{
		W:              w,
		B:              m.b,
		Columns:        m.cols,
		Lookback:       m.lookback,
		AttentionSpan:  m.span,
		AttentionDecay: m.decay,
	}
}

func (m *AttentionModel) SetWeights(w ModelWeights) error {
	if len(w.W) != 2*w.Columns {
		return fmt.Errorf("train: weight vector length %d does not match columns %d", len(w.W), w.Columns)
	}
	m.cols = w.Columns
	m.lookback = w.Lookback
	m.span = w.AttentionSpan
	m.decay = w.AttentionDecay
	m.attn = attentionWeights(w.AttentionSpan, w.AttentionDecay)
	m.b = w.B
	data := make([]float64, len(w.W))
	copy(data, w.W)
	m.w = mat.NewVecDense(len(data), data)
	return nil
}

// RestoreModel rebuilds a model from persisted weights, for serving.
func RestoreModel(w ModelWeights) (*AttentionModel, error) {
	m := &AttentionModel{}
	if err := m.SetWeights(w); err != nil {
		return nil, err
	}
	return m, nil
}
