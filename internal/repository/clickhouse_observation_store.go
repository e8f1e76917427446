package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CoinCast/internal/domain/models"
	pkgch "CoinCast/pkg/clickhouse"
	applogger "CoinCast/pkg/logger"
)

// CHObservationStore implements ObservationStore backed by ClickHouse.
// Writes are batched multi-row inserts; the tables are append-only and
// nothing here ever updates or deletes a record.
type CHObservationStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHObservationStore(ch *pkgch.Client) *CHObservationStore {
	return &CHObservationStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHObservationStore) SetLogger(l *applogger.Logger) { s.l = l }

const obsChunkSize = 2000

func (s *CHObservationStore) AppendBatch(ctx context.Context, obs []models.RawObservation) error {
	if len(obs) == 0 {
		return nil
	}
	var bars []models.RawObservation
	var docs []models.RawObservation
	for _, o := range obs {
		switch {
		case o.Bar != nil:
			bars = append(bars, o)
		case o.Doc != nil:
			docs = append(docs, o)
		}
	}
	if err := s.appendBars(ctx, bars); err != nil {
		return err
	}
	return s.appendDocs(ctx, docs)
}

func (s *CHObservationStore) appendBars(ctx context.Context, obs []models.RawObservation) error {
	for start := 0; start < len(obs); start += obsChunkSize {
		end := start + obsChunkSize
		if end > len(obs) {
			end = len(obs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, o := range obs[start:end] {
			b := o.Bar
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.TS, o.IngestedAt, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := "INSERT INTO coincast.obs_price (ts, ingested_at, open, high, low, close, volume) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("append price observations: %w", err)
		}
	}
	return nil
}

func (s *CHObservationStore) appendDocs(ctx context.Context, obs []models.RawObservation) error {
	for start := 0; start < len(obs); start += obsChunkSize {
		end := start + obsChunkSize
		if end > len(obs) {
			end = len(obs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, o := range obs[start:end] {
			d := o.Doc
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, d.TS, o.IngestedAt, string(d.Source), d.Author, d.Body, d.Weight)
		}
		q := "INSERT INTO coincast.obs_text (ts, ingested_at, source, author, body, weight) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("append text observations: %w", err)
		}
	}
	return nil
}

func (s *CHObservationStore) PriceBars(ctx context.Context, from, to time.Time) ([]models.PriceBar, error) {
	start := time.Now()
	const q = `
        SELECT ts, open, high, low, close, volume
        FROM coincast.obs_price FINAL
        WHERE ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query price bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceBar, 0, 1024)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse price_bars ok",
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHObservationStore) TextDocs(ctx context.Context, from, to time.Time) ([]models.TextDoc, error) {
	start := time.Now()
	const q = `
        SELECT ts, source, author, body, weight
        FROM coincast.obs_text
        WHERE ts >= ? AND ts <= ?
        ORDER BY ts ASC, source ASC, author ASC
    `
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query text docs: %w", err)
	}
	defer rows.Close()

	out := make([]models.TextDoc, 0, 1024)
	for rows.Next() {
		var d models.TextDoc
		var src string
		if err := rows.Scan(&d.TS, &src, &d.Author, &d.Body, &d.Weight); err != nil {
			return nil, fmt.Errorf("scan text doc: %w", err)
		}
		d.Source = models.Source(src)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse text_docs ok",
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHObservationStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
