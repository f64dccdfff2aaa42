// Package history persists scan outcomes to Postgres for later inspection.
// It is entirely optional; without a DSN the scanner runs with no database at
// all, and recording failures never fail a scan.
package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sddi-tools/catsync/internal/scan"
)

const createTables = `
CREATE TABLE IF NOT EXISTS scan_runs (
	run_id      UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	scanned     INTEGER NOT NULL,
	evaluated   INTEGER NOT NULL,
	actionable  INTEGER NOT NULL,
	total_bytes BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_verdicts (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID NOT NULL REFERENCES scan_runs(run_id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	extension   TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL,
	state       TEXT NOT NULL,
	time_diff   BIGINT NOT NULL,
	detail      TEXT NOT NULL
);
`

// Store records scan runs in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool and makes sure the history tables exist.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to history database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTables); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating history tables: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordRun inserts a finished report and its actionable verdicts in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, report *scan.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx,
		`INSERT INTO scan_runs (run_id, started_at, finished_at, scanned, evaluated, actionable, total_bytes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.RunID.String(), report.StartedAt, report.FinishedAt,
		report.Scanned, report.Evaluated, report.Totals.Count, report.Totals.Bytes)
	if err != nil {
		return fmt.Errorf("inserting scan run: %w", err)
	}

	for ext, verdicts := range report.ByExtension {
		for _, v := range verdicts {
			_, err = tx.Exec(ctx,
				`INSERT INTO scan_verdicts (run_id, path, extension, size_bytes, modified_at, state, time_diff, detail)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				report.RunID.String(), v.File.Path, ext, v.File.Size, v.File.ModifiedAt,
				v.Verdict.State.String(), int64(v.Verdict.TimeDiff), v.Verdict.Detail)
			if err != nil {
				return fmt.Errorf("inserting scan verdict for %s: %w", v.File.Path, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing history transaction: %w", err)
	}
	return nil
}
