package models

import "time"

// Sequence is one training example: a dense lookback window of feature
// rows and the forward label. Inputs is lookback x features, row order
// oldest first. Label is the relative close change measured at
// WindowEnd + horizon grid steps; it never uses data from inside or
// before the window beyond the window itself.
type Sequence struct {
	Inputs    [][]float64 `json:"inputs"`
	Label     float64     `json:"label"`
	WindowEnd time.Time   `json:"window_end"`
}

// ColumnStats holds scaling statistics for one column.
type ColumnStats struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// NormalizationStats is fit on the training split only and applied
// read-only everywhere else. It travels with the model artifact so serving
// normalizes inputs exactly as training did.
type NormalizationStats struct {
	Kind    string        `json:"kind"` // "zscore" or "minmax"
	Columns []ColumnStats `json:"columns"`
	Label   ColumnStats   `json:"label"`
}

// Forecast is the serving contract output.
type Forecast struct {
	TS            time.Time `json:"ts"`
	PointForecast float64   `json:"point_forecast"` // predicted close at horizon
	Return        float64   `json:"return"`         // predicted relative change
	Confidence    float64   `json:"confidence,omitempty"`
	RunID         string    `json:"run_id"`
	ModelVersion  int64     `json:"model_version"`
}
