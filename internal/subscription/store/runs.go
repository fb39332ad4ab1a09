package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"subsnap/internal/subscription/models"
	"subsnap/pkg/platform/sentinel"
)

// RunRecord is the persisted outcome of one pipeline run.
type RunRecord struct {
	RunID          string    `json:"run_id"`
	AsOf           time.Time `json:"as_of"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Success        bool      `json:"success"`
	Accounts       int       `json:"accounts"`
	FailedAccounts int       `json:"failed_accounts"`
	RowsLoaded     int       `json:"rows_loaded"`
	SkippedEvents  int       `json:"skipped_events"`
	FailedChecks   int       `json:"failed_checks"`
	Summary        string    `json:"summary"`
}

// RunStore keeps the pipeline_runs audit table.
type RunStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewRunStore(db *sql.DB, dialect Dialect) *RunStore {
	return &RunStore{db: db, dialect: dialect}
}

// Save inserts or replaces a run record.
func (s *RunStore) Save(ctx context.Context, r RunRecord) error {
	d := s.dialect
	query := fmt.Sprintf(`INSERT INTO pipeline_runs (
    run_id, as_of, started_at, finished_at, success, accounts, failed_accounts,
    rows_loaded, skipped_events, failed_checks, summary
) VALUES (%s)
ON CONFLICT (run_id) DO UPDATE SET
    as_of = excluded.as_of,
    started_at = excluded.started_at,
    finished_at = excluded.finished_at,
    success = excluded.success,
    accounts = excluded.accounts,
    failed_accounts = excluded.failed_accounts,
    rows_loaded = excluded.rows_loaded,
    skipped_events = excluded.skipped_events,
    failed_checks = excluded.failed_checks,
    summary = excluded.summary`, d.placeholders(1, 11))

	_, err := s.db.ExecContext(ctx, query,
		r.RunID, formatDate(r.AsOf), formatInstant(r.StartedAt), formatInstant(r.FinishedAt),
		r.Success, r.Accounts, r.FailedAccounts, r.RowsLoaded, r.SkippedEvents, r.FailedChecks, r.Summary,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}
	return nil
}

// Latest returns the most recently finished run, or sentinel.ErrNotFound.
func (s *RunStore) Latest(ctx context.Context) (RunRecord, error) {
	query := `SELECT run_id, as_of, started_at, finished_at, success, accounts, failed_accounts,
    rows_loaded, skipped_events, failed_checks, summary
FROM pipeline_runs
ORDER BY finished_at DESC, run_id DESC
LIMIT 1`

	var (
		r                           RunRecord
		asOf, startedAt, finishedAt any
	)
	err := s.db.QueryRowContext(ctx, query).Scan(
		&r.RunID, &asOf, &startedAt, &finishedAt, &r.Success, &r.Accounts, &r.FailedAccounts,
		&r.RowsLoaded, &r.SkippedEvents, &r.FailedChecks, &r.Summary,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("query latest run: %w", err)
	}

	if r.AsOf, err = scanTime(asOf); err != nil {
		return RunRecord{}, fmt.Errorf("scan as_of: %w", err)
	}
	if r.StartedAt, err = scanTime(startedAt); err != nil {
		return RunRecord{}, fmt.Errorf("scan started_at: %w", err)
	}
	if r.FinishedAt, err = scanTime(finishedAt); err != nil {
		return RunRecord{}, fmt.Errorf("scan finished_at: %w", err)
	}
	return r, nil
}

// scanTime accepts the native time of Postgres and the text SQLite stores.
func scanTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return parseStoredTime(x)
	case []byte:
		return parseStoredTime(string(x))
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

func parseStoredTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return models.ParseDate(s)
}
