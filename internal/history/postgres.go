package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gitlab.com/tozd/go/errors"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS csv_escape_runs (
	id             UUID PRIMARY KEY,
	request_id     TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL,
	mode           TEXT NOT NULL,
	profile        TEXT NOT NULL,
	status         TEXT NOT NULL,
	error_code     TEXT NOT NULL DEFAULT '',
	input_bytes    INTEGER NOT NULL,
	output_bytes   INTEGER NOT NULL,
	rows           INTEGER NOT NULL,
	rows_truncated INTEGER NOT NULL,
	issues_fixed   INTEGER NOT NULL,
	issues_unfixed INTEGER NOT NULL,
	duration_ms    BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS csv_escape_runs_created_at_idx ON csv_escape_runs (created_at DESC);
`

const runColumns = `id, request_id, source, mode, profile, status, error_code, input_bytes,
	output_bytes, rows, rows_truncated, issues_fixed, issues_unfixed, duration_ms, created_at`

// dbtx is the subset of *pgxpool.Pool the store uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgStore persists runs in PostgreSQL.
type PgStore struct {
	db dbtx
}

// NewPgStore returns a store backed by pool, creating the runs table if needed.
func NewPgStore(ctx context.Context, pool *pgxpool.Pool) (*PgStore, error) {
	s := &PgStore{db: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PgStore) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createRunsTable); err != nil {
		return errors.Errorf("create csv_escape_runs: %w", err)
	}
	return nil
}

func (s *PgStore) Record(ctx context.Context, run Run) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO csv_escape_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.RequestID, run.Source, run.Mode, run.Profile, run.Status, run.ErrorCode,
		run.InputBytes, run.OutputBytes, run.Rows, run.RowsTruncated, run.IssuesFixed,
		run.IssuesUnfixed, run.DurationMS, run.CreatedAt,
	)
	if err != nil {
		return errors.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PgStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM csv_escape_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Errorf("query recent runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, errors.Errorf("scan recent runs: %w", err)
	}
	return runs, nil
}

func (s *PgStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM csv_escape_runs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, errors.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.CollectableRow) (Run, error) {
	var r Run
	err := row.Scan(
		&r.ID, &r.RequestID, &r.Source, &r.Mode, &r.Profile, &r.Status, &r.ErrorCode,
		&r.InputBytes, &r.OutputBytes, &r.Rows, &r.RowsTruncated, &r.IssuesFixed,
		&r.IssuesUnfixed, &r.DurationMS, &r.CreatedAt,
	)
	return r, err
}
