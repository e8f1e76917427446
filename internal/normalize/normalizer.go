package normalize

import (
	"fmt"
	"math"

	"CoinCast/internal/domain/models"
)

const (
	KindZScore = "zscore"
	KindMinMax = "minmax"
)

// Normalizer scales sequence inputs and labels using statistics fitted on
// training data only. The fitted stats travel with the model artifact so
// serving applies exactly the transform training saw.
type Normalizer struct {
	kind  string
	stats models.NormalizationStats
}

func New(kind string) (*Normalizer, error) {
	switch kind {
	case KindZScore, KindMinMax:
	case "":
		kind = KindZScore
	default:
		return nil, fmt.Errorf("normalize: unknown kind %q", kind)
	}
	return &Normalizer{kind: kind}, nil
}

// FromStats rebuilds a normalizer from persisted statistics, for serving.
func FromStats(stats models.NormalizationStats) (*Normalizer, error) {
	n, err := New(stats.Kind)
	if err != nil {
		return nil, err
	}
	n.stats = stats
	return n, nil
}

func (n *Normalizer) Stats() models.NormalizationStats { return n.stats }

// Fit computes per-column and label statistics over the training
// sequences. It must be called before Apply and must never see validation
// or test data.
func (n *Normalizer) Fit(train []models.Sequence, schema []string) error {
	if len(train) == 0 {
		return fmt.Errorf("normalize: no training sequences to fit")
	}
	cols := len(schema)
	count := 0
	sum := make([]float64, cols)
	sumSq := make([]float64, cols)
	min := make([]float64, cols)
	max := make([]float64, cols)
	for c := range min {
		min[c] = math.Inf(1)
		max[c] = math.Inf(-1)
	}

	var lblSum, lblSumSq float64
	lblMin, lblMax := math.Inf(1), math.Inf(-1)

	for _, seq := range train {
		for _, row := range seq.Inputs {
			if len(row) != cols {
				return fmt.Errorf("normalize: row width %d does not match schema width %d", len(row), cols)
			}
			for c, v := range row {
				sum[c] += v
				sumSq[c] += v * v
				if v < min[c] {
					min[c] = v
				}
				if v > max[c] {
					max[c] = v
				}
			}
			count++
		}
		lblSum += seq.Label
		lblSumSq += seq.Label * seq.Label
		if seq.Label < lblMin {
			lblMin = seq.Label
		}
		if seq.Label > lblMax {
			lblMax = seq.Label
		}
	}

	n.stats = models.NormalizationStats{Kind: n.kind, Columns: make([]models.ColumnStats, cols)}
	fc := float64(count)
	for c := 0; c < cols; c++ {
		mean := sum[c] / fc
		n.stats.Columns[c] = models.ColumnStats{
			Name: schema[c],
			Mean: mean,
			Std:  stddev(sumSq[c], mean, fc),
			Min:  min[c],
			Max:  max[c],
		}
	}
	fn := float64(len(train))
	lblMean := lblSum / fn
	n.stats.Label = models.ColumnStats{
		Name: "label",
		Mean: lblMean,
		Std:  stddev(lblSumSq, lblMean, fn),
		Min:  lblMin,
		Max:  lblMax,
	}
	return nil
}

// Apply returns scaled copies of the given sequences. Inputs are not
// mutated; the same fitted stats apply to every split.
func (n *Normalizer) Apply(seqs []models.Sequence) ([]models.Sequence, error) {
	if len(n.stats.Columns) == 0 {
		return nil, fmt.Errorf("normalize: apply before fit")
	}
	out := make([]models.Sequence, len(seqs))
	for i, seq := range seqs {
		inputs := make([][]float64, len(seq.Inputs))
		for r, row := range seq.Inputs {
			if len(row) != len(n.stats.Columns) {
				return nil, fmt.Errorf("normalize: row width %d does not match fitted width %d", len(row), len(n.stats.Columns))
			}
			vec := make([]float64, len(row))
			for c, v := range row {
				vec[c] = n.scale(v, n.stats.Columns[c])
			}
			inputs[r] = vec
		}
		out[i] = models.Sequence{
			Inputs:    inputs,
			Label:     n.scale(seq.Label, n.stats.Label),
			WindowEnd: seq.WindowEnd,
		}
	}
	return out, nil
}

// ApplyRow scales a single raw feature row, for serving.
func (n *Normalizer) ApplyRow(row []float64) ([]float64, error) {
	if len(row) != len(n.stats.Columns) {
		return nil, fmt.Errorf("normalize: row width %d does not match fitted width %d", len(row), len(n.stats.Columns))
	}
	out := make([]float64, len(row))
	for c, v := range row {
		out[c] = n.scale(v, n.stats.Columns[c])
	}
	return out, nil
}

// InvertLabel maps a model output back to the raw return scale.
func (n *Normalizer) InvertLabel(v float64) float64 {
	s := n.stats.Label
	switch n.stats.Kind {
	case KindMinMax:
		return v*rangeOf(s) + s.Min
	default:
		return v*safeStd(s.Std) + s.Mean
	}
}

func (n *Normalizer) scale(v float64, s models.ColumnStats) float64 {
	switch n.stats.Kind {
	case KindMinMax:
		return (v - s.Min) / rangeOf(s)
	default:
		return (v - s.Mean) / safeStd(s.Std)
	}
}

// stddev computes a population standard deviation, clamping tiny negative
// round-off under the square root.
func stddev(sumSq, mean, n float64) float64 {
	v := sumSq/n - mean*mean
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

// safeStd keeps constant columns from dividing by zero.
func safeStd(std float64) float64 {
	if std == 0 {
		return 1
	}
	return std
}

func rangeOf(s models.ColumnStats) float64 {
	r := s.Max - s.Min
	if r == 0 {
		return 1
	}
	return r
}
