package feature

import (
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

var grid = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func gridBar(step int, close float64) models.PriceBar {
	ts := grid.Add(time.Duration(step) * time.Hour)
	return models.PriceBar{TS: ts, Open: close, High: close, Low: close, Close: close, Volume: 10}
}

func gridIndicator(step int, vals ...models.OptFloat) models.IndicatorRow {
	return models.IndicatorRow{TS: grid.Add(time.Duration(step) * time.Hour), Values: vals}
}

func gridSentiment(step int, score models.OptFloat, count int) models.SentimentRow {
	return models.SentimentRow{TS: grid.Add(time.Duration(step) * time.Hour), Score: score, Count: count}
}

func newTestMerger(t *testing.T, maxFillGap int) *Merger {
	t.Helper()
	m, err := NewMerger(time.Hour, Tolerances{}, maxFillGap, nopMetrics{}, testLogger(t))
	require.NoError(t, err)
	return m
}

func TestMerge_OneRowPerGridStep(t *testing.T) {
	m := newTestMerger(t, 0)
	in := Input{
		Bars:             []models.PriceBar{gridBar(0, 100), gridBar(1, 101), gridBar(2, 102)},
		Indicators:       []models.IndicatorRow{gridIndicator(0, models.Some(1)), gridIndicator(1, models.Some(2)), gridIndicator(2, models.Some(3))},
		IndicatorColumns: []string{"sma_2"},
		Sentiment:        []models.SentimentRow{gridSentiment(0, models.Some(0.1), 4), gridSentiment(1, models.Some(0.2), 5), gridSentiment(2, models.Some(0.3), 6)},
	}
	table, err := m.Merge(in, grid, grid.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []string{"open", "high", "low", "close", "volume", "sma_2", "sentiment_score", "sentiment_count"}, table.Schema)
	require.Len(t, table.Rows, 3)
	for i, row := range table.Rows {
		assert.True(t, row.TS.Equal(grid.Add(time.Duration(i)*time.Hour)))
		assert.True(t, row.Complete(), "row %d should be complete", i)
	}
	closeIdx := table.ColumnIndex(models.ColClose)
	assert.Equal(t, 102.0, table.Rows[2].Fields[closeIdx].Val)
	assert.Equal(t, 6.0, table.Rows[2].Fields[len(table.Schema)-1].Val)
}

func TestMerge_NeverReadsAheadOfRow(t *testing.T) {
	m := newTestMerger(t, 0)
	in := Input{
		// sentiment exists only at step 2; rows 0 and 1 must not see it
		Bars:             []models.PriceBar{gridBar(0, 100), gridBar(1, 101), gridBar(2, 102)},
		Indicators:       []models.IndicatorRow{gridIndicator(0, models.Some(1)), gridIndicator(1, models.Some(2)), gridIndicator(2, models.Some(3))},
		IndicatorColumns: []string{"sma_2"},
		Sentiment:        []models.SentimentRow{gridSentiment(2, models.Some(0.9), 1)},
	}
	table, err := m.Merge(in, grid, grid.Add(2*time.Hour))
	require.NoError(t, err)

	scoreIdx := table.ColumnIndex(models.ColSentimentScore)
	assert.False(t, table.Rows[0].Fields[scoreIdx].Valid)
	assert.False(t, table.Rows[1].Fields[scoreIdx].Valid)
	require.True(t, table.Rows[2].Fields[scoreIdx].Valid)
	assert.Equal(t, 0.9, table.Rows[2].Fields[scoreIdx].Val)
}

func TestMerge_StalenessToleranceBoundsJoin(t *testing.T) {
	m, err := NewMerger(time.Hour, Tolerances{Sentiment: time.Hour}, 0, nopMetrics{}, testLogger(t))
	require.NoError(t, err)

	in := Input{
		Bars:             []models.PriceBar{gridBar(0, 100), gridBar(1, 101), gridBar(2, 102), gridBar(3, 103)},
		Indicators:       []models.IndicatorRow{gridIndicator(0, models.Some(1)), gridIndicator(1, models.Some(1)), gridIndicator(2, models.Some(1)), gridIndicator(3, models.Some(1))},
		IndicatorColumns: []string{"sma_2"},
		Sentiment:        []models.SentimentRow{gridSentiment(0, models.Some(0.5), 2)},
	}
	table, err := m.Merge(in, grid, grid.Add(3*time.Hour))
	require.NoError(t, err)

	scoreIdx := table.ColumnIndex(models.ColSentimentScore)
	assert.True(t, table.Rows[0].Fields[scoreIdx].Valid)  // exact match
	assert.True(t, table.Rows[1].Fields[scoreIdx].Valid)  // one step old, within tolerance
	assert.False(t, table.Rows[2].Fields[scoreIdx].Valid) // two steps old, stale
	assert.False(t, table.Rows[3].Fields[scoreIdx].Valid)
}

func TestMerge_ForwardFillBounded(t *testing.T) {
	m := newTestMerger(t, 2)
	in := Input{
		// bar present only at step 0; fill may bridge at most 2 steps
		Bars:             []models.PriceBar{gridBar(0, 100)},
		Indicators:       []models.IndicatorRow{gridIndicator(0, models.Some(1)), gridIndicator(1, models.Some(1)), gridIndicator(2, models.Some(1)), gridIndicator(3, models.Some(1)), gridIndicator(4, models.Some(1))},
		IndicatorColumns: []string{"sma_2"},
		Sentiment: []models.SentimentRow{
			gridSentiment(0, models.Some(0.1), 1), gridSentiment(1, models.Some(0.1), 1),
			gridSentiment(2, models.Some(0.1), 1), gridSentiment(3, models.Some(0.1), 1),
			gridSentiment(4, models.Some(0.1), 1),
		},
	}
	table, err := m.Merge(in, grid, grid.Add(4*time.Hour))
	require.NoError(t, err)

	closeIdx := table.ColumnIndex(models.ColClose)

	// step 1 joins the bar within tolerance; steps 2 and 3 are filled from it
	assert.True(t, table.Rows[1].Fields[closeIdx].Valid)
	assert.Equal(t, 100.0, table.Rows[1].Fields[closeIdx].Val)
	assert.True(t, table.Rows[2].Fields[closeIdx].Valid)
	assert.True(t, table.Rows[3].Fields[closeIdx].Valid)
	assert.Equal(t, 100.0, table.Rows[3].Fields[closeIdx].Val)

	// beyond the gap the field stays missing: fills do not extend the horizon
	assert.False(t, table.Rows[4].Fields[closeIdx].Valid)
}

func TestMerge_InputOrderDoesNotMatter(t *testing.T) {
	in := Input{
		Bars:             []models.PriceBar{gridBar(2, 102), gridBar(0, 100), gridBar(1, 101)},
		Indicators:       []models.IndicatorRow{gridIndicator(1, models.Some(2)), gridIndicator(0, models.Some(1)), gridIndicator(2, models.Some(3))},
		IndicatorColumns: []string{"sma_2"},
		Sentiment:        []models.SentimentRow{gridSentiment(1, models.Some(0.2), 1), gridSentiment(2, models.Some(0.3), 1), gridSentiment(0, models.Some(0.1), 1)},
	}
	sorted := Input{
		Bars:             []models.PriceBar{gridBar(0, 100), gridBar(1, 101), gridBar(2, 102)},
		Indicators:       []models.IndicatorRow{gridIndicator(0, models.Some(1)), gridIndicator(1, models.Some(2)), gridIndicator(2, models.Some(3))},
		IndicatorColumns: []string{"sma_2"},
		Sentiment:        []models.SentimentRow{gridSentiment(0, models.Some(0.1), 1), gridSentiment(1, models.Some(0.2), 1), gridSentiment(2, models.Some(0.3), 1)},
	}

	a, err := newTestMerger(t, 1).Merge(in, grid, grid.Add(2*time.Hour))
	require.NoError(t, err)
	b, err := newTestMerger(t, 1).Merge(sorted, grid, grid.Add(2*time.Hour))
	require.NoError(t, err)

	require.Equal(t, a, b)
	assert.Equal(t, Version(a), Version(b))
}

func TestMerge_InvertedRangeRejected(t *testing.T) {
	m := newTestMerger(t, 0)
	_, err := m.Merge(Input{}, grid.Add(time.Hour), grid)
	require.Error(t, err)
}

func TestVersion_SensitiveToValuesAndMissingness(t *testing.T) {
	base := &models.FeatureTable{
		Schema: []string{"close"},
		Rows: []models.FeatureRow{
			{TS: grid, Fields: []models.OptFloat{models.Some(100)}},
			{TS: grid.Add(time.Hour), Fields: []models.OptFloat{models.Some(101)}},
		},
	}
	v1 := Version(base)
	assert.Regexp(t, `^ds-[0-9a-f]{16}$`, v1)
	assert.Equal(t, v1, Version(base))

	changed := &models.FeatureTable{
		Schema: []string{"close"},
		Rows: []models.FeatureRow{
			{TS: grid, Fields: []models.OptFloat{models.Some(100)}},
			{TS: grid.Add(time.Hour), Fields: []models.OptFloat{models.Some(102)}},
		},
	}
	assert.NotEqual(t, v1, Version(changed))

	missing := &models.FeatureTable{
		Schema: []string{"close"},
		Rows: []models.FeatureRow{
			{TS: grid, Fields: []models.OptFloat{models.Some(100)}},
			{TS: grid.Add(time.Hour), Fields: []models.OptFloat{models.Missing()}},
		},
	}
	assert.NotEqual(t, v1, Version(missing))

	// missing is distinct from zero
	zero := &models.FeatureTable{
		Schema: []string{"close"},
		Rows: []models.FeatureRow{
			{TS: grid, Fields: []models.OptFloat{models.Some(100)}},
			{TS: grid.Add(time.Hour), Fields: []models.OptFloat{models.Some(0)}},
		},
	}
	assert.NotEqual(t, Version(missing), Version(zero))
}
