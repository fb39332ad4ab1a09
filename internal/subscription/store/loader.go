// Package store persists reconstructed snapshots into the warehouse star schema
// and keeps the schema itself.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"subsnap/internal/platform/metrics"
	"subsnap/internal/subscription/models"
	"subsnap/pkg/platform/retry"
	"subsnap/pkg/platform/tx"
)

// Account is a dim_account entry.
type Account struct {
	ID         string
	SignupDate time.Time
}

// Batch is everything one run writes. RunID and LoadedAt are stamped on every
// fact row, so loading the same batch twice leaves identical rows behind.
type Batch struct {
	RunID    string
	LoadedAt time.Time
	Plans    []models.Plan
	Accounts []Account
	Events   []models.SubscriptionEvent
	Rows     []models.DailySnapshot
}

// Validate checks the batch is self-consistent before any write.
func (b Batch) Validate() error {
	if b.RunID == "" {
		return errors.New("batch run id is required")
	}
	if b.LoadedAt.IsZero() {
		return errors.New("batch loaded_at is required")
	}
	known := make(map[string]struct{}, len(b.Accounts))
	for _, a := range b.Accounts {
		known[a.ID] = struct{}{}
	}
	for _, r := range b.Rows {
		if _, ok := known[r.AccountID]; !ok {
			return fmt.Errorf("row for account %s on %s has no account entry", r.AccountID, r.Date.Format(models.DateLayout))
		}
	}
	// (account_id, seq) keys subscription_events; a repeat would overwrite a
	// staged event on SQLite and fail the statement on Postgres.
	type eventKey struct {
		account string
		seq     int
	}
	staged := make(map[eventKey]struct{}, len(b.Events))
	for _, e := range b.Events {
		k := eventKey{e.AccountID, e.Seq}
		if _, dup := staged[k]; dup {
			return fmt.Errorf("event seq %d repeated for account %s", e.Seq, e.AccountID)
		}
		staged[k] = struct{}{}
	}
	return nil
}

// dates returns every distinct fact day in ascending order.
func (b Batch) dates() []time.Time {
	seen := make(map[int]time.Time)
	for _, r := range b.Rows {
		seen[r.DateKey()] = r.Date
	}
	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// LoadStats summarises a committed load.
type LoadStats struct {
	Dates    int
	Plans    int
	Accounts int
	Events   int
	Rows     int
	Attempts int
	Duration time.Duration
}

// Loader writes batches atomically: either every dimension, staged event and
// fact row of a batch lands or none does.
type Loader struct {
	db      *sql.DB
	dialect Dialect
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithRetryPolicy bounds retries of transient failures.
func WithRetryPolicy(p retry.Policy) LoaderOption {
	return func(l *Loader) {
		l.policy = p
	}
}

// WithAttemptTimeout caps each attempt. Zero leaves attempts bounded only by ctx.
func WithAttemptTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.timeout = d
	}
}

func NewLoader(db *sql.DB, dialect Dialect, opts ...LoaderOption) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	l := &Loader{
		db:      db,
		dialect: dialect,
		policy:  retry.DefaultPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load upserts the batch in one transaction. Transient failures roll back and
// retry the whole batch; anything else is returned at once.
func (l *Loader) Load(ctx context.Context, b Batch) (LoadStats, error) {
	if err := b.Validate(); err != nil {
		return LoadStats{}, fmt.Errorf("validate batch: %w", err)
	}

	start := time.Now()
	stats := LoadStats{}
	err := retry.Do(ctx, l.policy, func() error {
		stats.Attempts++
		err := l.loadOnce(ctx, b, &stats)
		if err != nil && !IsTransient(err) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		l.metrics.IncrementLoadRetries()
		l.logger.WarnContext(ctx, "batch load failed, retrying",
			"run_id", b.RunID,
			"attempt", stats.Attempts,
			"wait", wait,
			"error", err,
		)
	})
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, fmt.Errorf("load batch %s after %d attempt(s): %w", b.RunID, stats.Attempts, err)
	}

	l.metrics.ObserveLoad(stats.Duration, stats.Rows)
	l.logger.InfoContext(ctx, "batch loaded",
		"run_id", b.RunID,
		"rows", stats.Rows,
		"accounts", stats.Accounts,
		"attempts", stats.Attempts,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (l *Loader) loadOnce(ctx context.Context, b Batch, stats *LoadStats) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var written LoadStats
	err := tx.Run(ctx, l.db, func(ctx context.Context) error {
		var err error
		written, err = l.write(ctx, b)
		return err
	})
	if err != nil {
		return err
	}

	written.Attempts, written.Duration = stats.Attempts, stats.Duration
	*stats = written
	return nil
}

// write runs every statement of the batch on the transaction carried by ctx.
func (l *Loader) write(ctx context.Context, b Batch) (LoadStats, error) {
	exec := tx.ExecutorFrom(ctx, l.db)
	d := l.dialect

	days := b.dates()
	dateRows := make([][]any, len(days))
	for i, day := range days {
		dateRows[i] = dateRow(day)
	}
	if err := d.upsert(ctx, exec, dimDate, dateRows); err != nil {
		return LoadStats{}, err
	}

	planRows := make([][]any, len(b.Plans))
	for i, p := range b.Plans {
		planRows[i] = planRow(p)
	}
	if err := d.upsert(ctx, exec, dimPlan, planRows); err != nil {
		return LoadStats{}, err
	}

	accountRows := make([][]any, len(b.Accounts))
	accountIDs := make([]string, len(b.Accounts))
	for i, a := range b.Accounts {
		accountRows[i] = accountRow(a)
		accountIDs[i] = a.ID
	}
	if err := d.upsert(ctx, exec, dimAccount, accountRows); err != nil {
		return LoadStats{}, err
	}

	if err := d.deleteStagedEvents(ctx, exec, accountIDs); err != nil {
		return LoadStats{}, err
	}
	eventRows := make([][]any, len(b.Events))
	for i, e := range b.Events {
		eventRows[i] = eventRow(e, b.RunID)
	}
	if err := d.upsert(ctx, exec, stagedEvents, eventRows); err != nil {
		return LoadStats{}, err
	}

	facts := make([][]any, len(b.Rows))
	for i, r := range b.Rows {
		facts[i] = factRow(r, b.RunID, b.LoadedAt)
	}
	if err := d.upsert(ctx, exec, factDaily, facts); err != nil {
		return LoadStats{}, err
	}

	return LoadStats{
		Dates:    len(days),
		Plans:    len(b.Plans),
		Accounts: len(b.Accounts),
		Events:   len(b.Events),
		Rows:     len(b.Rows),
	}, nil
}
