package models

import "time"

// OptFloat is a float64 that can be explicitly missing. Missing is never
// encoded as zero anywhere in the pipeline.
type OptFloat struct {
	Val   float64 `json:"val"`
	Valid bool    `json:"valid"`
}

// Some wraps a present value.
func Some(v float64) OptFloat { return OptFloat{Val: v, Valid: true} }

// Missing is the absent value.
func Missing() OptFloat { return OptFloat{} }

// IndicatorRow holds the configured indicator values for one bar timestamp.
// Values is parallel to the engine's column order.
type IndicatorRow struct {
	TS     time.Time  `json:"ts"`
	Values []OptFloat `json:"values"`
}

// SentimentRow is the aggregate over all text observations in the bucket
// ending at TS. Count is the number of items that scored successfully; a
// bucket with zero items has a missing Score, never a neutral zero.
type SentimentRow struct {
	TS    time.Time `json:"ts"`
	Score OptFloat  `json:"score"`
	Count int       `json:"count"`
}

// FeatureRow is one merged record on the feature grid. Fields is parallel
// to the table schema columns.
type FeatureRow struct {
	TS     time.Time  `json:"ts"`
	Fields []OptFloat `json:"fields"`
}

// Complete reports whether every field is present.
func (r FeatureRow) Complete() bool {
	for _, f := range r.Fields {
		if !f.Valid {
			return false
		}
	}
	return true
}

// FeatureTable is the merged feature dataset for one time range: one row
// per grid timestamp, no duplicates, schema fixed across rows.
type FeatureTable struct {
	Schema []string     `json:"schema"`
	Rows   []FeatureRow `json:"rows"`
}

// ColumnIndex returns the schema position of name, or -1.
func (t *FeatureTable) ColumnIndex(name string) int {
	for i, c := range t.Schema {
		if c == name {
			return i
		}
	}
	return -1
}

// Price column names, in schema order. Indicator columns follow, then the
// sentiment columns.
const (
	ColOpen           = "open"
	ColHigh           = "high"
	ColLow            = "low"
	ColClose          = "close"
	ColVolume         = "volume"
	ColSentimentScore = "sentiment_score"
	ColSentimentCount = "sentiment_count"
)
