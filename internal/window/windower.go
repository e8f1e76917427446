package window

import (
	"fmt"

	"CoinCast/internal/domain/models"
)

// Windower slices a merged feature table into fixed-length input windows
// with a forward return label. Windows are yielded lazily so a large
// backfill never materialises every sequence at once.
//
// Candidate window ends sit on a fixed phase of the stride, so adding or
// removing rows at the edges of the range never shifts which timestamps
// become window ends. A window is emitted only when every row inside it is
// complete and the label row has a close; windows straddling a gap are
// skipped, never bridged.
type Windower struct {
	table    *models.FeatureTable
	lookback int
	horizon  int
	stride   int
	closeIdx int
	next     int // next candidate end index
}

func NewWindower(table *models.FeatureTable, lookback, horizon, stride int) (*Windower, error) {
	if lookback < 2 {
		return nil, fmt.Errorf("window: lookback must be >= 2")
	}
	if horizon < 1 {
		return nil, fmt.Errorf("window: horizon must be >= 1")
	}
	if stride < 1 {
		return nil, fmt.Errorf("window: stride must be >= 1")
	}
	closeIdx := table.ColumnIndex(models.ColClose)
	if closeIdx < 0 {
		return nil, fmt.Errorf("window: table has no %s column", models.ColClose)
	}
	return &Windower{
		table:    table,
		lookback: lookback,
		horizon:  horizon,
		stride:   stride,
		closeIdx: closeIdx,
		next:     lookback - 1,
	}, nil
}

// Next returns the next valid sequence in chronological order, or false
// when the table is exhausted.
func (w *Windower) Next() (*models.Sequence, bool) {
	rows := w.table.Rows
	for end := w.next; end+w.horizon < len(rows); end += w.stride {
		if seq, ok := w.build(end); ok {
			w.next = end + w.stride
			return seq, true
		}
	}
	w.next = len(rows)
	return nil, false
}

// Reset rewinds the windower to the first candidate window.
func (w *Windower) Reset() {
	w.next = w.lookback - 1
}

// All drains the windower from its current position.
func (w *Windower) All() []models.Sequence {
	var out []models.Sequence
	for {
		seq, ok := w.Next()
		if !ok {
			return out
		}
		out = append(out, *seq)
	}
}

func (w *Windower) build(end int) (*models.Sequence, bool) {
	rows := w.table.Rows
	start := end - w.lookback + 1
	for i := start; i <= end; i++ {
		if !rows[i].Complete() {
			return nil, false
		}
	}
	labelClose := rows[end+w.horizon].Fields[w.closeIdx]
	endClose := rows[end].Fields[w.closeIdx]
	if !labelClose.Valid || !endClose.Valid || endClose.Val == 0 {
		return nil, false
	}

	inputs := make([][]float64, w.lookback)
	for i := start; i <= end; i++ {
		vec := make([]float64, len(rows[i].Fields))
		for j, f := range rows[i].Fields {
			vec[j] = f.Val
		}
		inputs[i-start] = vec
	}
	return &models.Sequence{
		Inputs:    inputs,
		Label:     labelClose.Val/endClose.Val - 1,
		WindowEnd: rows[end].TS,
	}, true
}
