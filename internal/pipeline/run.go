package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"subsnap/internal/quality"
	"subsnap/internal/subscription/activity"
	"subsnap/internal/subscription/models"
	"subsnap/internal/subscription/normalize"
	"subsnap/internal/subscription/snapshot"
	"subsnap/internal/subscription/store"
)

// Run outcomes used as the metrics label.
const (
	OutcomeSuccess        = "success"
	OutcomeQualityFailed  = "quality_failed"
	OutcomeAccountsFailed = "accounts_failed"
	OutcomeError          = "error"
)

// AccountError is a reconstruction failure isolated to one account.
type AccountError struct {
	AccountID string
	Err       error
}

func (e AccountError) Error() string {
	return fmt.Sprintf("account %s: %v", e.AccountID, e.Err)
}

func (e AccountError) Unwrap() error { return e.Err }

// RunResult describes one run.
type RunResult struct {
	RunID      string
	AsOf       time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	// Accounts and Rows count what was handed to the loader.
	Accounts      int
	Rows          int
	SkippedEvents int
	Defects       []normalize.Defect
	AccountErrors []AccountError

	Load   store.LoadStats
	Report *quality.Report
	Err    error

	normalized bool
}

// Success is true only when the load committed, every account replayed and the
// quality report passed.
func (r *RunResult) Success() bool {
	return r.Err == nil && len(r.AccountErrors) == 0 && r.Report != nil && r.Report.Success
}

// Outcome classifies the run for metrics and logs.
func (r *RunResult) Outcome() string {
	switch {
	case r.Err != nil || r.Report == nil:
		return OutcomeError
	case !r.Report.Success:
		return OutcomeQualityFailed
	case len(r.AccountErrors) > 0:
		return OutcomeAccountsFailed
	default:
		return OutcomeSuccess
	}
}

func (r *RunResult) failedChecks() []string {
	if r.Report == nil {
		return nil
	}
	return lo.Map(r.Report.Failures(), func(c quality.CheckResult, _ int) string {
		return c.Relation + ": " + c.Name
	})
}

// Record is the run as stored in pipeline_runs.
func (r *RunResult) Record() store.RunRecord {
	rec := store.RunRecord{
		RunID:          r.RunID,
		AsOf:           r.AsOf,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Success:        r.Success(),
		Accounts:       r.Accounts,
		FailedAccounts: len(r.AccountErrors),
		RowsLoaded:     r.Load.Rows,
		SkippedEvents:  r.SkippedEvents,
		FailedChecks:   len(r.failedChecks()),
	}
	switch {
	case r.Err != nil:
		rec.Summary = r.Err.Error()
	case r.Report != nil:
		rec.Summary = r.Report.Summary()
	}
	return rec
}

// Summary is the run as published to downstream consumers.
func (r *RunResult) Summary() RunSummary {
	s := RunSummary{
		RunID:          r.RunID,
		AsOf:           r.AsOf.Format(models.DateLayout),
		Success:        r.Success(),
		Accounts:       r.Accounts,
		FailedAccounts: len(r.AccountErrors),
		RowsLoaded:     r.Load.Rows,
		SkippedEvents:  r.SkippedEvents,
		FailedChecks:   r.failedChecks(),
		FinishedAt:     r.FinishedAt,
		Duration:       r.FinishedAt.Sub(r.StartedAt),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// replays holds per-account output in account order.
type replays struct {
	accounts []string
	rows     [][]models.DailySnapshot
	events   [][]models.SubscriptionEvent
	failed   []bool
	errors   []AccountError
}

// reconstruct replays every account with at most s.concurrency in flight.
// Account failures are collected, never propagated; only cancellation aborts.
func (s *Service) reconstruct(ctx context.Context, norm normalize.Result, asOf time.Time) (*replays, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Reconstruct")
	defer span.End()

	n := len(norm.Accounts)
	out := &replays{
		accounts: norm.Accounts,
		rows:     make([][]models.DailySnapshot, n),
		events:   make([][]models.SubscriptionEvent, n),
		failed:   make([]bool, n),
	}
	errs := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, accountID := range norm.Accounts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			events := norm.ByAccount[accountID]
			rows, err := s.replayAccount(gctx, accountID, events, asOf)
			if err != nil {
				errs[i] = err
				return nil
			}
			out.rows[i] = rows
			out.events[i] = lo.Filter(events, func(e models.SubscriptionEvent, _ int) bool {
				return !e.Day().After(asOf)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconstruct accounts: %w", err)
	}

	for i, err := range errs {
		if err == nil {
			s.metrics.IncrementAccounts("ok")
			continue
		}
		out.failed[i] = true
		out.errors = append(out.errors, AccountError{AccountID: norm.Accounts[i], Err: err})
		s.metrics.IncrementAccounts("error")
	}
	span.SetAttributes(attribute.Int("accounts", n), attribute.Int("failed", len(out.errors)))
	return out, nil
}

func (s *Service) replayAccount(ctx context.Context, accountID string, events []models.SubscriptionEvent, asOf time.Time) ([]models.DailySnapshot, error) {
	rows, err := snapshot.Replay(accountID, events, asOf, s.catalog)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	counts, err := s.activity.Counts(ctx, accountID, rows[0].Date, rows[len(rows)-1].Date)
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	activity.Fill(rows, counts)
	return rows, nil
}

// buildBatch merges successful replays. Accounts with no rows up to as-of are
// left out, as are failed accounts, whose earlier rows stay untouched.
func (s *Service) buildBatch(res *RunResult, req RunRequest, r *replays) store.Batch {
	b := store.Batch{
		RunID:    res.RunID,
		LoadedAt: res.StartedAt,
		Plans:    s.catalog.Plans(),
	}
	from := time.Time{}
	if !req.From.IsZero() {
		from = models.Day(req.From)
	}
	for i, accountID := range r.accounts {
		if r.failed[i] || len(r.rows[i]) == 0 {
			continue
		}
		rows := r.rows[i]
		b.Accounts = append(b.Accounts, store.Account{ID: accountID, SignupDate: rows[0].SignupDate})
		b.Events = append(b.Events, r.events[i]...)
		for _, row := range rows {
			if row.Date.Before(from) {
				continue
			}
			b.Rows = append(b.Rows, row)
		}
	}
	return b
}
