package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// tableFromCloses builds a single-column table; indexes in missing get an
// absent close.
func tableFromCloses(closes []float64, missing map[int]bool) *models.FeatureTable {
	rows := make([]models.FeatureRow, len(closes))
	for i, c := range closes {
		f := models.Some(c)
		if missing[i] {
			f = models.Missing()
		}
		rows[i] = models.FeatureRow{
			TS:     base.Add(time.Duration(i) * time.Hour),
			Fields: []models.OptFloat{f},
		}
	}
	return &models.FeatureTable{Schema: []string{models.ColClose}, Rows: rows}
}

func TestNewWindower_Validation(t *testing.T) {
	table := tableFromCloses([]float64{1, 2, 3}, nil)

	_, err := NewWindower(table, 1, 1, 1)
	require.Error(t, err)
	_, err = NewWindower(table, 2, 0, 1)
	require.Error(t, err)
	_, err = NewWindower(table, 2, 1, 0)
	require.Error(t, err)

	noClose := &models.FeatureTable{Schema: []string{"open"}, Rows: nil}
	_, err = NewWindower(noClose, 2, 1, 1)
	require.Error(t, err)
}

func TestWindower_LabelIsForwardReturn(t *testing.T) {
	table := tableFromCloses([]float64{100, 110, 121, 133.1}, nil)
	w, err := NewWindower(table, 2, 1, 1)
	require.NoError(t, err)

	seqs := w.All()
	require.Len(t, seqs, 2)

	// first window ends at index 1 (close 110), label row is index 2
	assert.True(t, seqs[0].WindowEnd.Equal(base.Add(time.Hour)))
	assert.InDelta(t, 0.1, seqs[0].Label, 1e-9)
	require.Len(t, seqs[0].Inputs, 2)
	assert.Equal(t, 100.0, seqs[0].Inputs[0][0])
	assert.Equal(t, 110.0, seqs[0].Inputs[1][0])

	assert.True(t, seqs[1].WindowEnd.Equal(base.Add(2*time.Hour)))
	assert.InDelta(t, 0.1, seqs[1].Label, 1e-9)
}

func TestWindower_SkipsWindowsOverGaps(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	table := tableFromCloses(closes, map[int]bool{3: true})
	w, err := NewWindower(table, 3, 1, 1)
	require.NoError(t, err)

	seqs := w.All()
	// candidate ends: 2..6; ends 3, 4, 5 contain the missing row 3 and are
	// skipped, end 2 needs label row 3 which is missing too
	require.Len(t, seqs, 1)
	assert.True(t, seqs[0].WindowEnd.Equal(base.Add(6*time.Hour)))
}

func TestWindower_ZeroCloseAtWindowEndSkipped(t *testing.T) {
	table := tableFromCloses([]float64{1, 0, 2, 3}, nil)
	w, err := NewWindower(table, 2, 1, 1)
	require.NoError(t, err)

	seqs := w.All()
	// end 1 has zero close, end 2 is fine
	require.Len(t, seqs, 1)
	assert.True(t, seqs[0].WindowEnd.Equal(base.Add(2*time.Hour)))
}

func TestWindower_StrideKeepsFixedPhase(t *testing.T) {
	closes := make([]float64, 12)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	table := tableFromCloses(closes, nil)
	w, err := NewWindower(table, 3, 1, 3)
	require.NoError(t, err)

	seqs := w.All()
	// candidate ends 2, 5, 8; end 11 has no label row
	require.Len(t, seqs, 3)
	assert.True(t, seqs[0].WindowEnd.Equal(base.Add(2*time.Hour)))
	assert.True(t, seqs[1].WindowEnd.Equal(base.Add(5*time.Hour)))
	assert.True(t, seqs[2].WindowEnd.Equal(base.Add(8*time.Hour)))
}

func TestWindower_NextAndReset(t *testing.T) {
	table := tableFromCloses([]float64{1, 2, 3, 4}, nil)
	w, err := NewWindower(table, 2, 1, 1)
	require.NoError(t, err)

	first, ok := w.Next()
	require.True(t, ok)
	second, ok := w.Next()
	require.True(t, ok)
	assert.True(t, second.WindowEnd.After(first.WindowEnd))

	_, ok = w.Next()
	assert.False(t, ok)

	w.Reset()
	again, ok := w.Next()
	require.True(t, ok)
	assert.True(t, again.WindowEnd.Equal(first.WindowEnd))
}

func TestWindower_TooShortTableYieldsNothing(t *testing.T) {
	table := tableFromCloses([]float64{1, 2}, nil)
	w, err := NewWindower(table, 24, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, w.All())
}
