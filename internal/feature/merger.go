package feature

import (
	"fmt"
	"sort"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	applogger "CoinCast/pkg/logger"
)

// Tolerances bound how far back an as-of join may reach per source; a
// source row older than the tolerance leaves the field missing.
type Tolerances struct {
	Price     time.Duration
	Indicator time.Duration
	Sentiment time.Duration
}

// Merger joins price, indicator, and sentiment streams onto one regular
// timestamp grid. The join is defined purely by timestamps: inputs are
// re-sorted before merging, so arrival order never changes the output.
// No field ever derives from an observation after the row's own timestamp.
type Merger struct {
	freq       time.Duration
	tol        Tolerances
	maxFillGap int
	metrics    domrepo.Metrics
	logger     *applogger.Logger
}

// Input carries the three source streams for one merge.
type Input struct {
	Bars             []models.PriceBar
	Indicators       []models.IndicatorRow
	IndicatorColumns []string
	Sentiment        []models.SentimentRow
}

func NewMerger(freq time.Duration, tol Tolerances, maxFillGap int, metrics domrepo.Metrics, l *applogger.Logger) (*Merger, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("feature: grid frequency must be positive")
	}
	if maxFillGap < 0 {
		return nil, fmt.Errorf("feature: max fill gap must be >= 0")
	}
	if tol.Price <= 0 {
		tol.Price = freq
	}
	if tol.Indicator <= 0 {
		tol.Indicator = freq
	}
	if tol.Sentiment <= 0 {
		tol.Sentiment = freq
	}
	return &Merger{freq: freq, tol: tol, maxFillGap: maxFillGap, metrics: metrics, logger: l}, nil
}

// Schema returns the merged column order: price fields, then indicator
// columns, then sentiment fields.
func (m *Merger) Schema(indicatorColumns []string) []string {
	schema := []string{models.ColOpen, models.ColHigh, models.ColLow, models.ColClose, models.ColVolume}
	schema = append(schema, indicatorColumns...)
	return append(schema, models.ColSentimentScore, models.ColSentimentCount)
}

// Merge produces exactly one FeatureRow per grid timestamp in [from, to].
// Rows left incomplete after forward-filling stay in the table with
// explicit missing marks; they are retained for storage but excluded from
// training candidates downstream.
func (m *Merger) Merge(in Input, from, to time.Time) (*models.FeatureTable, error) {
	from = from.Truncate(m.freq)
	to = to.Truncate(m.freq)
	if to.Before(from) {
		return nil, fmt.Errorf("feature: merge range inverted")
	}

	bars := sortedBars(in.Bars)
	inds := sortedIndicators(in.Indicators)
	sents := sortedSentiment(in.Sentiment)

	schema := m.Schema(in.IndicatorColumns)
	nInd := len(in.IndicatorColumns)
	steps := int(to.Sub(from)/m.freq) + 1
	rows := make([]models.FeatureRow, 0, steps)

	bi, ii, si := 0, 0, 0
	for k := 0; k < steps; k++ {
		ts := from.Add(time.Duration(k) * m.freq)
		fields := make([]models.OptFloat, len(schema))

		// price: most recent bar at or before ts within tolerance
		bi = advance(len(bars), bi, ts, func(i int) time.Time { return bars[i].TS })
		if bi > 0 && within(bars[bi-1].TS, ts, m.tol.Price) {
			b := bars[bi-1]
			fields[0] = models.Some(b.Open)
			fields[1] = models.Some(b.High)
			fields[2] = models.Some(b.Low)
			fields[3] = models.Some(b.Close)
			fields[4] = models.Some(b.Volume)
		}

		// indicators: as-of join against the indicator stream
		ii = advance(len(inds), ii, ts, func(i int) time.Time { return inds[i].TS })
		if ii > 0 && within(inds[ii-1].TS, ts, m.tol.Indicator) {
			for j, v := range inds[ii-1].Values {
				if j < nInd {
					fields[5+j] = v
				}
			}
		}

		// sentiment: bucket ending at or before ts within tolerance
		si = advance(len(sents), si, ts, func(i int) time.Time { return sents[i].TS })
		if si > 0 && within(sents[si-1].TS, ts, m.tol.Sentiment) {
			s := sents[si-1]
			fields[len(schema)-2] = s.Score
			fields[len(schema)-1] = models.Some(float64(s.Count))
		}

		rows = append(rows, models.FeatureRow{TS: ts, Fields: fields})
	}

	m.forwardFill(rows, len(schema))

	complete := 0
	for _, r := range rows {
		ok := r.Complete()
		m.metrics.RecordMergedRow(ok)
		if ok {
			complete++
		}
	}
	m.logger.Info("feature merge done",
		applogger.Int("rows", len(rows)),
		applogger.Int("complete", complete),
		applogger.Int("dropped", len(rows)-complete),
	)

	return &models.FeatureTable{Schema: schema, Rows: rows}, nil
}

// forwardFill fills missing fields from the last present value, per
// column, for at most maxFillGap consecutive grid steps. Beyond the gap
// the field stays missing and the row falls out of training candidates.
func (m *Merger) forwardFill(rows []models.FeatureRow, cols int) {
	if m.maxFillGap == 0 {
		return
	}
	for c := 0; c < cols; c++ {
		lastIdx := -1
		var lastVal float64
		for i := range rows {
			if rows[i].Fields[c].Valid {
				lastIdx = i
				lastVal = rows[i].Fields[c].Val
				continue
			}
			if lastIdx >= 0 && i-lastIdx <= m.maxFillGap {
				rows[i].Fields[c] = models.Some(lastVal)
				// a filled value does not extend the fill horizon
			}
		}
	}
}

// advance moves i forward while element timestamps are at or before ts.
// Inputs are sorted, so i only ever moves forward across grid steps.
func advance(n, i int, ts time.Time, at func(int) time.Time) int {
	for i < n && !at(i).After(ts) {
		i++
	}
	return i
}

func within(src, grid time.Time, tol time.Duration) bool {
	return grid.Sub(src) <= tol
}

func sortedBars(in []models.PriceBar) []models.PriceBar {
	out := make([]models.PriceBar, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

func sortedIndicators(in []models.IndicatorRow) []models.IndicatorRow {
	out := make([]models.IndicatorRow, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

func sortedSentiment(in []models.SentimentRow) []models.SentimentRow {
	out := make([]models.SentimentRow, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}
