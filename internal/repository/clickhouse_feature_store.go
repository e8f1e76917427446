package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	pkgch "CoinCast/pkg/clickhouse"
	applogger "CoinCast/pkg/logger"
)

// CHFeatureStore implements FeatureStore backed by ClickHouse. A snapshot
// is a meta record (version, schema) plus one row record per grid
// timestamp; field values are stored as a JSON array with nulls for
// missing marks, so the round trip preserves missingness exactly.
type CHFeatureStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client) *CHFeatureStore {
	return &CHFeatureStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHFeatureStore) SetLogger(l *applogger.Logger) { s.l = l }

const snapshotChunkSize = 2000

func (s *CHFeatureStore) SaveSnapshot(ctx context.Context, version string, table *models.FeatureTable) error {
	start := time.Now()
	schemaJSON, err := json.Marshal(table.Schema)
	if err != nil {
		return fmt.Errorf("marshal snapshot schema: %w", err)
	}

	const metaQ = `
        INSERT INTO coincast.feature_snapshot_meta (version, created_at, schema_json, row_count)
        VALUES (?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, metaQ, version, time.Now().UTC(), string(schemaJSON), uint64(len(table.Rows))); err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}

	for chunk := 0; chunk < len(table.Rows); chunk += snapshotChunkSize {
		end := chunk + snapshotChunkSize
		if end > len(table.Rows) {
			end = len(table.Rows)
		}
		values := make([]string, 0, end-chunk)
		args := make([]interface{}, 0, (end-chunk)*3)
		for _, row := range table.Rows[chunk:end] {
			fieldsJSON, err := json.Marshal(encodeFields(row.Fields))
			if err != nil {
				return fmt.Errorf("marshal snapshot row: %w", err)
			}
			values = append(values, "(?, ?, ?)")
			args = append(args, version, row.TS, string(fieldsJSON))
		}
		q := "INSERT INTO coincast.feature_snapshot_rows (version, ts, fields_json) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert snapshot rows: %w", err)
		}
	}

	if s.l != nil {
		s.l.Info("feature snapshot saved",
			applogger.String("version", version),
			applogger.Int("rows", len(table.Rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHFeatureStore) LoadSnapshot(ctx context.Context, version string) (*models.FeatureTable, error) {
	const metaQ = `
        SELECT schema_json
        FROM coincast.feature_snapshot_meta FINAL
        WHERE version = ?
        LIMIT 1
    `
	var schemaJSON string
	if err := s.db.QueryRowContext(ctx, metaQ, version).Scan(&schemaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("snapshot %s: %w", version, domrepo.ErrNotFound)
		}
		return nil, fmt.Errorf("query snapshot meta: %w", err)
	}
	var schema []string
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("decode snapshot schema: %w", err)
	}

	const rowsQ = `
        SELECT ts, fields_json
        FROM coincast.feature_snapshot_rows FINAL
        WHERE version = ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, rowsQ, version)
	if err != nil {
		return nil, fmt.Errorf("query snapshot rows: %w", err)
	}
	defer rows.Close()

	table := &models.FeatureTable{Schema: schema}
	for rows.Next() {
		var ts time.Time
		var fieldsJSON string
		if err := rows.Scan(&ts, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		var encoded []*float64
		if err := json.Unmarshal([]byte(fieldsJSON), &encoded); err != nil {
			return nil, fmt.Errorf("decode snapshot row: %w", err)
		}
		table.Rows = append(table.Rows, models.FeatureRow{TS: ts, Fields: decodeFields(encoded)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return table, nil
}

func (s *CHFeatureStore) LatestVersion(ctx context.Context) (string, error) {
	const q = `
        SELECT version
        FROM coincast.feature_snapshot_meta FINAL
        ORDER BY created_at DESC
        LIMIT 1
    `
	var version string
	if err := s.db.QueryRowContext(ctx, q).Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no snapshots: %w", domrepo.ErrNotFound)
		}
		return "", fmt.Errorf("query latest version: %w", err)
	}
	return version, nil
}

func (s *CHFeatureStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeFields(fields []models.OptFloat) []*float64 {
	out := make([]*float64, len(fields))
	for i, f := range fields {
		if f.Valid {
			v := f.Val
			out[i] = &v
		}
	}
	return out
}

func decodeFields(encoded []*float64) []models.OptFloat {
	out := make([]models.OptFloat, len(encoded))
	for i, p := range encoded {
		if p != nil {
			out[i] = models.Some(*p)
		}
	}
	return out
}
