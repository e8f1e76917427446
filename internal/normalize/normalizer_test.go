package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
)

func seq(label float64, rows ...[]float64) models.Sequence {
	return models.Sequence{
		Inputs:    rows,
		Label:     label,
		WindowEnd: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	_, err := New("robust")
	require.Error(t, err)

	n, err := New("")
	require.NoError(t, err)
	require.NoError(t, n.Fit([]models.Sequence{seq(0, []float64{1})}, []string{"close"}))
	assert.Equal(t, KindZScore, n.Stats().Kind)
}

func TestFit_PopulationStats(t *testing.T) {
	n, err := New(KindZScore)
	require.NoError(t, err)

	train := []models.Sequence{
		seq(0.1, []float64{1}, []float64{3}),
		seq(0.3, []float64{5}, []float64{7}),
	}
	require.NoError(t, n.Fit(train, []string{"close"}))

	stats := n.Stats()
	require.Len(t, stats.Columns, 1)
	assert.InDelta(t, 4.0, stats.Columns[0].Mean, 1e-12)
	// population std of {1,3,5,7} = sqrt(5)
	assert.InDelta(t, 2.2360679775, stats.Columns[0].Std, 1e-9)
	assert.Equal(t, 1.0, stats.Columns[0].Min)
	assert.Equal(t, 7.0, stats.Columns[0].Max)

	assert.InDelta(t, 0.2, stats.Label.Mean, 1e-12)
	assert.InDelta(t, 0.1, stats.Label.Std, 1e-12)
}

func TestApply_ZScoreAndInvertRoundTrip(t *testing.T) {
	n, err := New(KindZScore)
	require.NoError(t, err)

	train := []models.Sequence{
		seq(0.1, []float64{1}, []float64{3}),
		seq(0.3, []float64{5}, []float64{7}),
	}
	require.NoError(t, n.Fit(train, []string{"close"}))

	scaled, err := n.Apply(train)
	require.NoError(t, err)

	// originals untouched
	assert.Equal(t, 1.0, train[0].Inputs[0][0])
	assert.Equal(t, 0.1, train[0].Label)

	// mean of scaled column is zero
	var sum float64
	for _, s := range scaled {
		for _, row := range s.Inputs {
			sum += row[0]
		}
	}
	assert.InDelta(t, 0.0, sum, 1e-9)

	for i := range train {
		assert.InDelta(t, train[i].Label, n.InvertLabel(scaled[i].Label), 1e-9)
	}
}

func TestApply_MinMaxBounds(t *testing.T) {
	n, err := New(KindMinMax)
	require.NoError(t, err)

	train := []models.Sequence{
		seq(-0.05, []float64{10}, []float64{20}),
		seq(0.05, []float64{30}, []float64{40}),
	}
	require.NoError(t, n.Fit(train, []string{"close"}))

	scaled, err := n.Apply(train)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, scaled[0].Inputs[0][0], 1e-12)
	assert.InDelta(t, 1.0, scaled[1].Inputs[1][0], 1e-12)

	assert.InDelta(t, -0.05, n.InvertLabel(scaled[0].Label), 1e-12)
	assert.InDelta(t, 0.05, n.InvertLabel(scaled[1].Label), 1e-12)
}

func TestFit_ConstantColumnDoesNotDivideByZero(t *testing.T) {
	for _, kind := range []string{KindZScore, KindMinMax} {
		n, err := New(kind)
		require.NoError(t, err)

		train := []models.Sequence{seq(0.0, []float64{5}, []float64{5})}
		require.NoError(t, n.Fit(train, []string{"close"}))

		scaled, err := n.Apply(train)
		require.NoError(t, err)
		for _, row := range scaled[0].Inputs {
			assert.False(t, row[0] != row[0], "kind %s produced NaN", kind)
		}
		assert.InDelta(t, 0.0, n.InvertLabel(scaled[0].Label), 1e-12)
	}
}

func TestApply_BeforeFitFails(t *testing.T) {
	n, err := New(KindZScore)
	require.NoError(t, err)
	_, err = n.Apply([]models.Sequence{seq(0, []float64{1})})
	require.Error(t, err)
}

func TestApply_WidthMismatchFails(t *testing.T) {
	n, err := New(KindZScore)
	require.NoError(t, err)
	require.NoError(t, n.Fit([]models.Sequence{seq(0, []float64{1, 2})}, []string{"a", "b"}))

	_, err = n.Apply([]models.Sequence{seq(0, []float64{1})})
	require.Error(t, err)
	_, err = n.ApplyRow([]float64{1})
	require.Error(t, err)
}

func TestFromStats_ServingMatchesTraining(t *testing.T) {
	n, err := New(KindZScore)
	require.NoError(t, err)
	train := []models.Sequence{
		seq(0.1, []float64{1}, []float64{3}),
		seq(0.3, []float64{5}, []float64{7}),
	}
	require.NoError(t, n.Fit(train, []string{"close"}))

	restored, err := FromStats(n.Stats())
	require.NoError(t, err)

	a, err := n.ApplyRow([]float64{6})
	require.NoError(t, err)
	b, err := restored.ApplyRow([]float64{6})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
