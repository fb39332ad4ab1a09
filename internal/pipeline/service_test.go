package pipeline

//go:generate mockgen -source=ports/ports.go -destination=mocks/mocks.go -package=mocks EventSource,Loader,Validator,RunRecorder,Publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"subsnap/internal/pipeline/mocks"
	"subsnap/internal/platform/metrics"
	"subsnap/internal/quality"
	"subsnap/internal/subscription/activity"
	"subsnap/internal/subscription/models"
	"subsnap/internal/subscription/normalize"
	"subsnap/internal/subscription/store"
	"subsnap/pkg/platform/sentinel"
)

// =============================================================================
// Pipeline Service Test Suite
// =============================================================================
// Justification for unit tests: the service wires normalization, replay,
// loading and the quality gate. Tests verify what reaches each port, how
// failures are isolated, and what is recorded and published.

type ServiceSuite struct {
	suite.Suite
	ctx           context.Context
	ctrl          *gomock.Controller
	mockSource    *mocks.MockEventSource
	mockLoader    *mocks.MockLoader
	mockValidator *mocks.MockValidator
	mockRecorder  *mocks.MockRunRecorder
	mockPublisher *mocks.MockPublisher
	metrics       *metrics.Metrics
	now           time.Time
	service       *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

var asOf = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.mockSource = mocks.NewMockEventSource(s.ctrl)
	s.mockLoader = mocks.NewMockLoader(s.ctrl)
	s.mockValidator = mocks.NewMockValidator(s.ctrl)
	s.mockRecorder = mocks.NewMockRunRecorder(s.ctrl)
	s.mockPublisher = mocks.NewMockPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2024, 2, 2, 6, 0, 0, 0, time.UTC)
	s.service = s.newService()
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithRunRecorder(s.mockRecorder),
		WithPublisher(s.mockPublisher),
		WithClock(func() time.Time { return s.now }),
		WithRunIDGenerator(func() string { return "run-1" }),
	}, opts...)
	svc, err := New(s.mockSource, s.mockLoader, s.mockValidator, opts...)
	s.Require().NoError(err)
	return svc
}

func raw(account, ts, plan, status string) models.RawEvent {
	ev := models.RawEvent{AccountID: account, PlanID: plan, Status: status}
	if ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			panic(err)
		}
		ev.Timestamp = &t
	}
	return ev
}

func upgradeThenCancel(account string) []models.RawEvent {
	return []models.RawEvent{
		raw(account, "2024-01-01T09:00:00Z", "basic", "active"),
		raw(account, "2024-01-15T09:00:00Z", "pro", "active"),
		raw(account, "2024-02-01T09:00:00Z", "pro", "cancelled"),
	}
}

func passingReport() *quality.Report {
	return &quality.Report{
		Suite:   GateSuiteName,
		Success: true,
		Results: []quality.CheckResult{{Name: "row_count >= 1", Kind: quality.KindRowCount, Relation: FactTable, Passed: true}},
	}
}

func failingReport() *quality.Report {
	return &quality.Report{
		Suite:   GateSuiteName,
		Success: false,
		Results: []quality.CheckResult{
			{Name: "row_count >= 1", Kind: quality.KindRowCount, Relation: FactTable, Passed: true},
			{Name: "no_nulls(status)", Kind: quality.KindNoNulls, Relation: FactTable, Detail: "null values in status (1)"},
		},
	}
}

// expectLoad captures the batch and reports it as committed.
func (s *ServiceSuite) expectLoad(captured *store.Batch) {
	s.mockLoader.EXPECT().Load(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, b store.Batch) (store.LoadStats, error) {
			*captured = b
			return store.LoadStats{Rows: len(b.Rows), Accounts: len(b.Accounts), Events: len(b.Events), Attempts: 1}, nil
		})
}

// expectFinish captures what is recorded and published.
func (s *ServiceSuite) expectFinish(rec *store.RunRecord, summary *RunSummary) {
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r store.RunRecord) error {
			*rec = r
			return nil
		})
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sum RunSummary) error {
			*summary = sum
			return nil
		})
}

// =============================================================================
// Constructor Tests (Invariant Enforcement)
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil event source returns error", func() {
		_, err := New(nil, s.mockLoader, s.mockValidator)
		s.Error(err)
		s.Contains(err.Error(), "event source is required")
	})

	s.Run("nil loader returns error", func() {
		_, err := New(s.mockSource, nil, s.mockValidator)
		s.Error(err)
		s.Contains(err.Error(), "loader is required")
	})

	s.Run("nil validator returns error", func() {
		_, err := New(s.mockSource, s.mockLoader, nil)
		s.Error(err)
		s.Contains(err.Error(), "validator is required")
	})

	s.Run("defaults", func() {
		svc, err := New(s.mockSource, s.mockLoader, s.mockValidator)
		s.Require().NoError(err)
		s.Equal(defaultConcurrency, svc.concurrency)
		s.Len(svc.catalog, 4)
		s.IsType(activity.Noop{}, svc.activity)
	})

	s.Run("with options applies options", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		counter := activity.NewMemory()
		svc, err := New(s.mockSource, s.mockLoader, s.mockValidator,
			WithLogger(logger),
			WithConcurrency(2),
			WithActivity(counter),
			WithPublisher(s.mockPublisher),
			WithCatalog(models.Catalog{"solo": {ID: "solo"}}),
		)
		s.Require().NoError(err)
		s.Equal(logger, svc.logger)
		s.Equal(2, svc.concurrency)
		s.Equal(counter, svc.activity)
		s.Equal(s.mockPublisher, svc.publisher)
		s.Len(svc.catalog, 1)
	})

	s.Run("non-positive concurrency is ignored", func() {
		svc, err := New(s.mockSource, s.mockLoader, s.mockValidator, WithConcurrency(0))
		s.Require().NoError(err)
		s.Equal(defaultConcurrency, svc.concurrency)
	})
}

// =============================================================================
// Successful Runs
// =============================================================================

func (s *ServiceSuite) TestRun_LoadsReconstructedBatch() {
	events := append(upgradeThenCancel("acct-1"),
		raw("", "2024-01-03T00:00:00Z", "basic", "active"),
		raw("acct-1", "2024-01-04T00:00:00Z", "basic", "paused"),
	)
	s.mockSource.EXPECT().Events(gomock.Any()).Return(events, nil)

	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), "run-1").Return(passingReport())

	var (
		rec     store.RunRecord
		summary RunSummary
	)
	s.expectFinish(&rec, &summary)

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().NoError(err)

	s.Run("batch carries run metadata and every dimension", func() {
		s.Equal("run-1", batch.RunID)
		s.Equal(s.now, batch.LoadedAt)
		s.Len(batch.Plans, 4)
		s.Equal([]store.Account{{ID: "acct-1", SignupDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}, batch.Accounts)
		s.Len(batch.Events, 3)
	})

	s.Run("rows cover signup through as-of with lifecycle flags", func() {
		s.Require().Len(batch.Rows, 32)
		s.True(batch.Rows[0].IsNewSubscription)
		s.True(batch.Rows[14].IsExpansion)
		s.True(batch.Rows[31].IsChurned)
		s.Equal(31, batch.Rows[31].DaysSinceSignup)
	})

	s.Run("result reports success and skipped events", func() {
		s.True(res.Success())
		s.Equal(OutcomeSuccess, res.Outcome())
		s.Equal(2, res.SkippedEvents)
		s.Len(res.Defects, 2)
		s.Equal(1, res.Accounts)
		s.Equal(32, res.Rows)
		s.Empty(res.AccountErrors)
	})

	s.Run("run is recorded and published", func() {
		s.Equal("run-1", rec.RunID)
		s.True(rec.Success)
		s.Equal(32, rec.RowsLoaded)
		s.Equal(2, rec.SkippedEvents)
		s.Equal(asOf, rec.AsOf)

		s.Equal("run-1", summary.RunID)
		s.Equal("2024-02-01", summary.AsOf)
		s.True(summary.Success)
		s.Empty(summary.FailedChecks)
	})

	s.Run("metrics", func() {
		s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsSkipped.WithLabelValues(normalize.ReasonMissingAccount)))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsSkipped.WithLabelValues(normalize.ReasonUnknownStatus)))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.AccountsReconstructed.WithLabelValues("ok")))
		s.Equal(32.0, testutil.ToFloat64(s.metrics.RowsEmitted))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Runs.WithLabelValues(OutcomeSuccess)))
	})
}

func (s *ServiceSuite) TestRun_PinnedRunID() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return(upgradeThenCancel("acct-1"), nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), "rerun-7").Return(passingReport())
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf, RunID: "rerun-7"})
	s.Require().NoError(err)
	s.Equal("rerun-7", res.RunID)
	s.Equal("rerun-7", batch.RunID)
}

func (s *ServiceSuite) TestRun_FromLimitsWrittenDays() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return(upgradeThenCancel("acct-1"), nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(passingReport())
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf, From: from})
	s.Require().NoError(err)

	s.Require().Len(batch.Rows, 18)
	s.Equal(from, batch.Rows[0].Date)
	s.True(batch.Rows[0].IsExpansion, "flags on the first written day still see the prior day")
	s.Len(batch.Accounts, 1)
	s.Len(batch.Events, 3)
}

func (s *ServiceSuite) TestRun_EventsAfterAsOfAreNotStaged() {
	events := append(upgradeThenCancel("acct-1"), raw("late", "2024-03-01T00:00:00Z", "pro", "active"))
	s.mockSource.EXPECT().Events(gomock.Any()).Return(events, nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(passingReport())
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	early := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	res, err := s.service.Run(s.ctx, RunRequest{AsOf: early})
	s.Require().NoError(err)

	s.Len(batch.Accounts, 1, "an account signing up after as-of has no rows")
	s.Len(batch.Events, 2)
	s.Len(batch.Rows, 20)
	s.True(res.Success())
}

func (s *ServiceSuite) TestRun_FillsActivityCounts() {
	counter := activity.NewMemory()
	s.Require().NoError(counter.Record(s.ctx, "acct-1", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), activity.Counts{ActiveUsers: 3, Events: 12}))
	svc := s.newService(WithActivity(counter))

	s.mockSource.EXPECT().Events(gomock.Any()).Return(upgradeThenCancel("acct-1"), nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(passingReport())
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := svc.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().NoError(err)

	s.Equal(int64(3), batch.Rows[14].ActiveUsers)
	s.Equal(int64(12), batch.Rows[14].EventCount)
	s.Zero(batch.Rows[13].EventCount)
}

func (s *ServiceSuite) TestRun_ManyAccountsKeepAccountOrder() {
	svc := s.newService(WithConcurrency(3))
	var events []models.RawEvent
	for i := 20; i > 0; i-- {
		events = append(events, upgradeThenCancel(fmt.Sprintf("acct-%02d", i))...)
	}
	s.mockSource.EXPECT().Events(gomock.Any()).Return(events, nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(passingReport())
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	res, err := svc.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().NoError(err)

	s.Equal(20, res.Accounts)
	s.Len(batch.Rows, 20*32)
	s.Equal("acct-01", batch.Accounts[0].ID)
	s.Equal("acct-20", batch.Accounts[19].ID)
	s.Equal("acct-01", batch.Rows[0].AccountID)
	s.Equal("acct-20", batch.Rows[len(batch.Rows)-1].AccountID)
}

// =============================================================================
// Failure Isolation
// =============================================================================
// Justification: a bad account or a failed check must not hide the rest of
// the run, and nothing must be written when input is unusable.

func (s *ServiceSuite) TestRun_AccountErrorsAreIsolated() {
	events := append(upgradeThenCancel("acct-1"), raw("acct-2", "2024-01-10T00:00:00Z", "platinum", "active"))
	s.mockSource.EXPECT().Events(gomock.Any()).Return(events, nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(passingReport())
	var (
		rec     store.RunRecord
		summary RunSummary
	)
	s.expectFinish(&rec, &summary)

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().NoError(err)

	s.Require().Len(res.AccountErrors, 1)
	s.Equal("acct-2", res.AccountErrors[0].AccountID)
	s.ErrorIs(res.AccountErrors[0], sentinel.ErrUnknownPlan)
	s.Len(batch.Accounts, 1)
	s.Len(batch.Rows, 32)

	s.False(res.Success())
	s.Equal(OutcomeAccountsFailed, res.Outcome())
	s.False(rec.Success)
	s.Equal(1, rec.FailedAccounts)
	s.Equal(1, summary.FailedAccounts)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AccountsReconstructed.WithLabelValues("error")))
}

func (s *ServiceSuite) TestRun_ActivityErrorFailsTheAccount() {
	svc := s.newService(WithActivity(failingCounter{err: errors.New("redis down")}))
	s.mockSource.EXPECT().Events(gomock.Any()).Return(upgradeThenCancel("acct-1"), nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(passingReport())
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	res, err := svc.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().NoError(err)

	s.Require().Len(res.AccountErrors, 1)
	s.Contains(res.AccountErrors[0].Error(), "read activity: redis down")
	s.Empty(batch.Rows)
}

func (s *ServiceSuite) TestRun_QualityFailureFailsTheRun() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return(upgradeThenCancel("acct-1"), nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(failingReport())
	var (
		rec     store.RunRecord
		summary RunSummary
	)
	s.expectFinish(&rec, &summary)

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().NoError(err, "a failed gate is a result, not an error")

	s.False(res.Success())
	s.Equal(OutcomeQualityFailed, res.Outcome())
	s.Equal(1, rec.FailedChecks)
	s.Contains(rec.Summary, "Suite Result: FAILED")
	s.Equal([]string{FactTable + ": no_nulls(status)"}, summary.FailedChecks)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Runs.WithLabelValues(OutcomeQualityFailed)))
}

func (s *ServiceSuite) TestRun_LoadFailureSkipsValidation() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return(upgradeThenCancel("acct-1"), nil)
	loadErr := errors.New("connection refused")
	s.mockLoader.EXPECT().Load(gomock.Any(), gomock.Any()).Return(store.LoadStats{Attempts: 4}, loadErr)
	var (
		rec     store.RunRecord
		summary RunSummary
	)
	s.expectFinish(&rec, &summary)

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().Error(err)
	s.ErrorIs(err, loadErr)
	s.Contains(err.Error(), "load snapshots")

	s.Require().NotNil(res, "a run that read events returns its partial result")
	s.False(res.Success())
	s.Equal(OutcomeError, res.Outcome())
	s.Equal(4, res.Load.Attempts)
	s.Nil(res.Report)
	s.False(rec.Success)
	s.Contains(rec.Summary, "connection refused")
	s.Contains(summary.Error, "connection refused")
}

func (s *ServiceSuite) TestRun_SourceErrorWritesNothing() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return(nil, errors.New("file missing"))

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().Error(err)
	s.Contains(err.Error(), "read events: file missing")
	s.Nil(res)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Runs.WithLabelValues(OutcomeError)))
}

func (s *ServiceSuite) TestRun_NoValidEventsWritesNothing() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return([]models.RawEvent{
		raw("", "2024-01-01T00:00:00Z", "basic", "active"),
		raw("acct-1", "", "basic", "active"),
	}, nil)

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrNoValidEvents)
	s.Nil(res)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsSkipped.WithLabelValues(normalize.ReasonMissingTime)))
}

func (s *ServiceSuite) TestRun_RecorderAndPublisherFailuresAreLogged() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return(upgradeThenCancel("acct-1"), nil)
	var batch store.Batch
	s.expectLoad(&batch)
	s.mockValidator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(passingReport())
	s.mockRecorder.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("table missing"))
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	res, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().NoError(err)
	s.True(res.Success())
}

// =============================================================================
// Request Validation and Single Flight
// =============================================================================

func (s *ServiceSuite) TestRun_RejectsInvalidRequests() {
	s.Run("missing as-of", func() {
		_, err := s.service.Run(s.ctx, RunRequest{})
		s.Require().Error(err)
		s.Contains(err.Error(), "as-of date is required")
	})

	s.Run("from after as-of", func() {
		_, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf, From: asOf.AddDate(0, 0, 1)})
		s.Require().Error(err)
		s.Contains(err.Error(), "is after as-of")
	})
}

func (s *ServiceSuite) TestRun_RejectsConcurrentRun() {
	s.service.running.Store(true)

	_, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.ErrorIs(err, sentinel.ErrRunInProgress)

	s.service.running.Store(false)
}

func (s *ServiceSuite) TestRun_ReleasesGuardAfterFailure() {
	s.mockSource.EXPECT().Events(gomock.Any()).Return(nil, errors.New("boom")).Times(2)

	_, err := s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().Error(err)
	_, err = s.service.Run(s.ctx, RunRequest{AsOf: asOf})
	s.Require().Error(err)
	s.NotErrorIs(err, sentinel.ErrRunInProgress)
}

// =============================================================================
// Latest Run
// =============================================================================

func (s *ServiceSuite) TestLatest() {
	s.Run("without recorder", func() {
		svc, err := New(s.mockSource, s.mockLoader, s.mockValidator)
		s.Require().NoError(err)
		_, err = svc.Latest(s.ctx)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns the recorded run", func() {
		s.mockRecorder.EXPECT().Latest(gomock.Any()).Return(store.RunRecord{RunID: "run-9", Success: true}, nil)
		rec, err := s.service.Latest(s.ctx)
		s.Require().NoError(err)
		s.Equal("run-9", rec.RunID)
	})

	s.Run("propagates not found", func() {
		s.mockRecorder.EXPECT().Latest(gomock.Any()).Return(store.RunRecord{}, sentinel.ErrNotFound)
		_, err := s.service.Latest(s.ctx)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

type failingCounter struct{ err error }

func (f failingCounter) Counts(context.Context, string, time.Time, time.Time) (map[int]activity.Counts, error) {
	return nil, f.err
}
