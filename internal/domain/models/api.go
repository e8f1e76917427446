package models

// Requests for the registry and training HTTP endpoints. Defined in domain
// for consistency and reuse.

type PromoteRequest struct {
	RunID           string `json:"run_id" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type TrainRequest struct {
	From  string `json:"from" validate:"required"`
	To    string `json:"to" validate:"required"`
	Force bool   `json:"force" default:"false"`
}

type PredictRequest struct {
	DataVersion string `query:"data_version" json:"data_version"`
}

type RunQuery struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
