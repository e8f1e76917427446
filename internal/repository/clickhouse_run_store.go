package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	pkgch "CoinCast/pkg/clickhouse"
	applogger "CoinCast/pkg/logger"
)

// CHRunStore implements RunStore backed by ClickHouse. Inserts append
// versioned records; ReplacingMergeTree keyed by run_id with the insert
// time as version makes the latest record win, which gives Insert its
// upsert semantics without ever rewriting history in place.
type CHRunStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHRunStore(ch *pkgch.Client) *CHRunStore {
	return &CHRunStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHRunStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHRunStore) Insert(ctx context.Context, run *models.ExperimentRun) error {
	epochsJSON, err := json.Marshal(run.Epochs)
	if err != nil {
		return fmt.Errorf("marshal run epochs: %w", err)
	}
	const q = `
        INSERT INTO coincast.runs
            (run_id, data_version, config_json, status, started_at, ended_at,
             epochs_json, best_epoch, best_val_loss, error, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = s.db.ExecContext(ctx, q,
		run.RunID,
		run.DataVersion,
		run.ConfigJSON,
		string(run.Status),
		run.StartedAt,
		run.EndedAt,
		string(epochsJSON),
		int32(run.BestEpoch),
		run.BestValLoss,
		run.Error,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if s.l != nil {
		s.l.Debug("run record written",
			applogger.String("run_id", run.RunID),
			applogger.String("status", string(run.Status)),
		)
	}
	return nil
}

func (s *CHRunStore) Get(ctx context.Context, runID string) (*models.ExperimentRun, error) {
	const q = `
        SELECT run_id, data_version, config_json, status, started_at, ended_at,
               epochs_json, best_epoch, best_val_loss, error
        FROM coincast.runs FINAL
        WHERE run_id = ?
        LIMIT 1
    `
	run, err := scanRun(s.db.QueryRowContext(ctx, q, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

func (s *CHRunStore) List(ctx context.Context, limit int) ([]*models.ExperimentRun, error) {
	const q = `
        SELECT run_id, data_version, config_json, status, started_at, ended_at,
               epochs_json, best_epoch, best_val_loss, error
        FROM coincast.runs FINAL
        ORDER BY started_at DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*models.ExperimentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHRunStore) CountByPrefix(ctx context.Context, prefix string) (int, error) {
	const q = `
        SELECT count(DISTINCT run_id)
        FROM coincast.runs
        WHERE startsWith(run_id, ?)
    `
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, prefix).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs by prefix: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.ExperimentRun, error) {
	var run models.ExperimentRun
	var status, epochsJSON string
	var bestEpoch int32
	if err := row.Scan(
		&run.RunID,
		&run.DataVersion,
		&run.ConfigJSON,
		&status,
		&run.StartedAt,
		&run.EndedAt,
		&epochsJSON,
		&bestEpoch,
		&run.BestValLoss,
		&run.Error,
	); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.BestEpoch = int(bestEpoch)
	if epochsJSON != "" {
		if err := json.Unmarshal([]byte(epochsJSON), &run.Epochs); err != nil {
			return nil, fmt.Errorf("decode run epochs: %w", err)
		}
	}
	return &run, nil
}
