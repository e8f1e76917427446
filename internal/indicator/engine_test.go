package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
)

func barsFromCloses(closes ...float64) []models.PriceBar {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{
			TS:     base.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

func TestNewEngine_RejectsBadSpecs(t *testing.T) {
	_, err := NewEngine(nil)
	require.Error(t, err)

	_, err = NewEngine([]Spec{{Kind: "macd", Window: 12}})
	require.Error(t, err)

	_, err = NewEngine([]Spec{{Kind: KindSMA, Window: 1}})
	require.Error(t, err)

	_, err = NewEngine([]Spec{{Kind: KindSMA, Window: 5}, {Kind: KindSMA, Window: 5}})
	require.Error(t, err)
}

func TestEngine_ColumnOrderIsLexicographic(t *testing.T) {
	e, err := NewEngine([]Spec{
		{Kind: KindSMA, Window: 20},
		{Kind: KindEMA, Window: 12},
		{Kind: KindRSI, Window: 14},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ema_12", "rsi_14", "sma_20"}, e.Columns())
	assert.Equal(t, 20, e.MaxWindow())
}

func TestSMA_ClosedForm(t *testing.T) {
	e, err := NewEngine([]Spec{{Kind: KindSMA, Window: 3}})
	require.NoError(t, err)

	rows := e.Compute(barsFromCloses(1, 2, 3, 4, 5))
	require.Len(t, rows, 5)

	// warmup rows are missing, never zero
	assert.False(t, rows[0].Values[0].Valid)
	assert.False(t, rows[1].Values[0].Valid)

	require.True(t, rows[2].Values[0].Valid)
	assert.InDelta(t, 2.0, rows[2].Values[0].Val, 1e-12)
	assert.InDelta(t, 3.0, rows[3].Values[0].Val, 1e-12)
	assert.InDelta(t, 4.0, rows[4].Values[0].Val, 1e-12)
}

func TestEMA_SeededWithSMA(t *testing.T) {
	e, err := NewEngine([]Spec{{Kind: KindEMA, Window: 3}})
	require.NoError(t, err)

	rows := e.Compute(barsFromCloses(2, 4, 6, 8))
	require.Len(t, rows, 4)

	assert.False(t, rows[1].Values[0].Valid)
	require.True(t, rows[2].Values[0].Valid)
	assert.InDelta(t, 4.0, rows[2].Values[0].Val, 1e-12) // seed = mean(2,4,6)

	// alpha = 2/(w+1) = 0.5: next = 0.5*8 + 0.5*4
	require.True(t, rows[3].Values[0].Valid)
	assert.InDelta(t, 6.0, rows[3].Values[0].Val, 1e-12)
}

func TestRSI_WilderSmoothing(t *testing.T) {
	e, err := NewEngine([]Spec{{Kind: KindRSI, Window: 2}})
	require.NoError(t, err)

	// deltas: +1, +1 -> all gains, first value at index w
	rows := e.Compute(barsFromCloses(10, 11, 12, 11))
	require.Len(t, rows, 4)
	assert.False(t, rows[1].Values[0].Valid)

	require.True(t, rows[2].Values[0].Valid)
	assert.InDelta(t, 100.0, rows[2].Values[0].Val, 1e-9)

	// next delta -1: avgGain = (1*1+0)/2 = 0.5, avgLoss = (0*1+1)/2 = 0.5
	require.True(t, rows[3].Values[0].Valid)
	assert.InDelta(t, 50.0, rows[3].Values[0].Val, 1e-9)
}

func TestRSI_FlatSeriesIsNeutral(t *testing.T) {
	e, err := NewEngine([]Spec{{Kind: KindRSI, Window: 3}})
	require.NoError(t, err)

	rows := e.Compute(barsFromCloses(5, 5, 5, 5, 5))
	require.True(t, rows[3].Values[0].Valid)
	assert.InDelta(t, 50.0, rows[3].Values[0].Val, 1e-12)
}

func TestCompute_Deterministic(t *testing.T) {
	e, err := NewEngine([]Spec{
		{Kind: KindSMA, Window: 4},
		{Kind: KindEMA, Window: 4},
		{Kind: KindRSI, Window: 4},
	})
	require.NoError(t, err)

	closes := make([]float64, 64)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/3)
	}
	bars := barsFromCloses(closes...)

	a := e.Compute(bars)
	b := e.Compute(bars)
	require.Equal(t, a, b)
}

func TestCompute_ShortSeriesAllMissing(t *testing.T) {
	e, err := NewEngine([]Spec{{Kind: KindSMA, Window: 10}})
	require.NoError(t, err)

	rows := e.Compute(barsFromCloses(1, 2, 3))
	for _, r := range rows {
		assert.False(t, r.Values[0].Valid)
	}
}
