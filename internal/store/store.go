// Package store provides optional PostgreSQL persistence for run outcomes,
// for runs where the JSON/CSV artifacts should also land in a queryable
// table. Enabled by setting database.url; the probe works fully without it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS probe_outcomes (
    run_id              TEXT        NOT NULL,
    iteration           INTEGER     NOT NULL,
    profile             TEXT        NOT NULL,
    phrase              TEXT        NOT NULL,
    intended_duration_ms BIGINT     NOT NULL,
    intended_error_count INTEGER    NOT NULL,
    observed_wpm        DOUBLE PRECISION NOT NULL,
    observed_accuracy   DOUBLE PRECISION NOT NULL,
    computed_wpm        DOUBLE PRECISION NOT NULL,
    elapsed_ms          BIGINT      NOT NULL,
    status              TEXT        NOT NULL,
    error               TEXT,
    raw_log_path        TEXT,
    recorded_at         TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, iteration)
)`

var outcomeColumns = []string{
	"run_id", "iteration", "profile", "phrase",
	"intended_duration_ms", "intended_error_count",
	"observed_wpm", "observed_accuracy", "computed_wpm",
	"elapsed_ms", "status", "error", "raw_log_path", "recorded_at",
}

// Store writes outcome records to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies the connection and ensures the outcomes table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure probe_outcomes table: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// PersistRun bulk-inserts a run's outcome records in one transaction using
// the pgx CopyFrom protocol.
func (s *Store) PersistRun(ctx context.Context, records []probe.OutcomeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	rows := make([][]interface{}, len(records))
	for i, r := range records {
		rows[i] = []interface{}{
			r.RunID, r.Iteration, string(r.Profile), r.GroundTruth.Phrase,
			r.GroundTruth.IntendedDurationMs, r.GroundTruth.IntendedErrorCount,
			r.ObservedWPM, r.ObservedAccuracy, r.ComputedWPM,
			r.ElapsedMs, string(r.Status), r.Error, r.RawLogPath, now,
		}
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"probe_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy outcome records: %w", err)
	}
	if copied != int64(len(records)) {
		return fmt.Errorf("expected to insert %d records, inserted %d", len(records), copied)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run outcomes persisted", zap.Int("records", len(records)))
	return nil
}
