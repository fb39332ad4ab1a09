package ports

import (
	"context"
	"time"

	"subsnap/internal/quality"
	"subsnap/internal/subscription/models"
	"subsnap/internal/subscription/store"
)

// EventSource supplies the raw subscription events of one run.
// Implementations decide where events come from (file, warehouse extract, API).
type EventSource interface {
	Events(ctx context.Context) ([]models.RawEvent, error)
}

// Loader writes a reconstructed batch atomically.
type Loader interface {
	Load(ctx context.Context, b store.Batch) (store.LoadStats, error)
}

// Validator runs the post-load quality gate for a run.
type Validator interface {
	Validate(ctx context.Context, runID string) *quality.Report
}

// RunRecorder persists run outcomes for the operator surface.
type RunRecorder interface {
	Save(ctx context.Context, r store.RunRecord) error
	Latest(ctx context.Context) (store.RunRecord, error)
}

// Publisher announces finished runs to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, summary RunSummary) error
}

// RunSummary is the message published after every run that reached the loader.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	AsOf           string        `json:"as_of"`
	Success        bool          `json:"success"`
	Accounts       int           `json:"accounts"`
	FailedAccounts int           `json:"failed_accounts"`
	RowsLoaded     int           `json:"rows_loaded"`
	SkippedEvents  int           `json:"skipped_events"`
	FailedChecks   []string      `json:"failed_checks,omitempty"`
	Error          string        `json:"error,omitempty"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration_ns"`
}
