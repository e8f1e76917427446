package models

import "time"

// Source identifies where a raw observation came from.
type Source string

const (
	SourcePrice  Source = "price"
	SourceSocial Source = "social"
	SourceNews   Source = "news"
)

// PriceBar is the payload of a price observation (OHLCV).
type PriceBar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TextDoc is the payload of a social or news observation.
// Weight carries source-specific engagement (followers, upvotes); the
// volume-weighted sentiment reducer uses it, the plain mean ignores it.
type TextDoc struct {
	TS     time.Time `json:"ts"`
	Source Source    `json:"source"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	Weight float64   `json:"weight"`
}

// RawObservation is one immutable, append-only record from the ingestion
// feed. Exactly one of Bar/Doc is set, matching Source.
type RawObservation struct {
	Source     Source    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	IngestedAt time.Time `json:"ingested_at"`
	Bar        *PriceBar `json:"bar,omitempty"`
	Doc        *TextDoc  `json:"doc,omitempty"`
}

// ObservationBatch is the wire format of the raw feed: records for one
// source, tagged with the ingestion time. Ordering inside a batch follows
// observation time, not arrival.
type ObservationBatch struct {
	Source     Source           `json:"source"`
	IngestedAt time.Time        `json:"ingested_at"`
	Records    []RawObservation `json:"records"`
}
