// Package pipeline orchestrates one snapshot run: normalize raw events, replay
// every account in parallel, load the batch, then gate it with the quality suite.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"subsnap/internal/pipeline/ports"
	"subsnap/internal/platform/metrics"
	"subsnap/internal/subscription/activity"
	"subsnap/internal/subscription/catalog"
	"subsnap/internal/subscription/models"
	"subsnap/internal/subscription/normalize"
	"subsnap/internal/subscription/store"
	"subsnap/pkg/platform/sentinel"
)

// Type aliases for the ports this service depends on.
type (
	EventSource = ports.EventSource
	Loader      = ports.Loader
	Validator   = ports.Validator
	RunRecorder = ports.RunRecorder
	Publisher   = ports.Publisher
	RunSummary  = ports.RunSummary
)

const defaultConcurrency = 4

var tracer = otel.Tracer("subsnap/pipeline")

// Service runs the snapshot pipeline. A Service executes at most one run at a
// time; cross-process single-flight belongs to the scheduler.
type Service struct {
	source      EventSource
	loader      Loader
	validator   Validator
	recorder    RunRecorder
	publisher   Publisher
	activity    activity.Counter
	catalog     models.Catalog
	concurrency int
	clock       func() time.Time
	newRunID    func() string
	logger      *slog.Logger
	metrics     *metrics.Metrics

	running atomic.Bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCatalog replaces the default plan catalog.
func WithCatalog(c models.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithConcurrency bounds parallel account replays. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithActivity sets the source of active users and event counts.
func WithActivity(c activity.Counter) Option {
	return func(s *Service) {
		s.activity = c
	}
}

func WithRunRecorder(r RunRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithRunIDGenerator overrides how run ids are minted when a request has none.
func WithRunIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newRunID = fn
	}
}

func New(source EventSource, loader Loader, validator Validator, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("event source is required")
	}
	if loader == nil {
		return nil, errors.New("loader is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}

	svc := &Service{
		source:      source,
		loader:      loader,
		validator:   validator,
		activity:    activity.Noop{},
		catalog:     catalog.Default(),
		concurrency: defaultConcurrency,
		clock:       time.Now,
		newRunID:    uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RunRequest selects the history a run reconstructs.
type RunRequest struct {
	// AsOf is the last day emitted. Events after it are ignored.
	AsOf time.Time
	// From limits the days written. Zero writes every day since signup.
	// Replay always starts at signup so flags on From are still correct.
	From time.Time
	// RunID lets the scheduler pin the id of a rerun. Empty mints a new one.
	RunID string
}

func (r RunRequest) validate() error {
	if r.AsOf.IsZero() {
		return errors.New("as-of date is required")
	}
	if !r.From.IsZero() && models.Day(r.From).After(models.Day(r.AsOf)) {
		return fmt.Errorf("from %s is after as-of %s",
			r.From.Format(models.DateLayout), r.AsOf.Format(models.DateLayout))
	}
	return nil
}

// Run executes one pipeline run. Errors before the loader commits are returned
// with a nil result when nothing usable was read, otherwise alongside the
// partial result. Quality failures and account errors are not Go errors: they
// leave the returned result unsuccessful.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, sentinel.ErrRunInProgress
	}
	defer s.running.Store(false)

	res := &RunResult{
		RunID:     req.RunID,
		AsOf:      models.Day(req.AsOf),
		StartedAt: s.clock().UTC(),
	}
	if res.RunID == "" {
		res.RunID = s.newRunID()
	}

	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("run_id", res.RunID),
		attribute.String("as_of", res.AsOf.Format(models.DateLayout)),
	))
	defer span.End()

	logger := s.logger.With("run_id", res.RunID)
	logger.InfoContext(ctx, "pipeline run started", "as_of", res.AsOf.Format(models.DateLayout))

	err := s.execute(ctx, req, res, logger)
	res.FinishedAt = s.clock().UTC()
	if err != nil {
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("success", res.Success()))
	s.metrics.ObserveRun(res.Outcome(), res.FinishedAt.Sub(res.StartedAt))

	if res.normalized {
		s.finish(ctx, res, logger)
	}
	if err != nil {
		if !res.normalized {
			return nil, err
		}
		return res, err
	}
	return res, nil
}

func (s *Service) execute(ctx context.Context, req RunRequest, res *RunResult, logger *slog.Logger) error {
	raw, err := s.readEvents(ctx)
	if err != nil {
		return err
	}

	norm, err := s.normalize(ctx, raw, logger)
	if err != nil {
		return err
	}
	res.normalized = true
	res.Defects = norm.Defects
	res.SkippedEvents = norm.Skipped()

	replayed, err := s.reconstruct(ctx, norm, res.AsOf)
	if err != nil {
		return err
	}
	for _, ae := range replayed.errors {
		logger.ErrorContext(ctx, "account reconstruction failed",
			"account_id", ae.AccountID,
			"error", ae.Err,
		)
	}
	res.AccountErrors = replayed.errors

	batch := s.buildBatch(res, req, replayed)
	res.Accounts = len(batch.Accounts)
	res.Rows = len(batch.Rows)
	s.metrics.AddRowsEmitted(res.Rows)

	loadCtx, loadSpan := tracer.Start(ctx, "pipeline.Load", trace.WithAttributes(attribute.Int("rows", res.Rows)))
	stats, err := s.loader.Load(loadCtx, batch)
	loadSpan.End()
	res.Load = stats
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}

	res.Report = s.validator.Validate(ctx, res.RunID)
	return nil
}

func (s *Service) readEvents(ctx context.Context) ([]models.RawEvent, error) {
	ctx, span := tracer.Start(ctx, "pipeline.ReadEvents")
	defer span.End()

	raw, err := s.source.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	span.SetAttributes(attribute.Int("events", len(raw)))
	return raw, nil
}

func (s *Service) normalize(ctx context.Context, raw []models.RawEvent, logger *slog.Logger) (normalize.Result, error) {
	_, span := tracer.Start(ctx, "pipeline.Normalize")
	defer span.End()

	norm, err := normalize.Normalize(raw)
	for _, d := range norm.Defects {
		s.metrics.IncrementSkipped(d.Reason)
		logger.WarnContext(ctx, "skipping malformed event",
			"seq", d.Seq,
			"account_id", d.AccountID,
			"reason", d.Reason,
			"detail", d.Detail,
		)
	}
	if err != nil {
		return normalize.Result{}, err
	}
	span.SetAttributes(
		attribute.Int("accounts", len(norm.Accounts)),
		attribute.Int("skipped", norm.Skipped()),
	)
	return norm, nil
}

// finish records and publishes a run. Failures here are logged only: the
// warehouse already holds the outcome.
func (s *Service) finish(ctx context.Context, res *RunResult, logger *slog.Logger) {
	if s.recorder != nil {
		if err := s.recorder.Save(ctx, res.Record()); err != nil {
			logger.ErrorContext(ctx, "failed to record run", "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res.Summary()); err != nil {
			logger.ErrorContext(ctx, "failed to publish run summary", "error", err)
		}
	}

	logger.InfoContext(ctx, "pipeline run finished",
		"success", res.Success(),
		"accounts", res.Accounts,
		"failed_accounts", len(res.AccountErrors),
		"rows", res.Rows,
		"skipped_events", res.SkippedEvents,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	)
}

// Latest returns the most recently recorded run.
func (s *Service) Latest(ctx context.Context) (store.RunRecord, error) {
	if s.recorder == nil {
		return store.RunRecord{}, sentinel.ErrNotFound
	}
	rec, err := s.recorder.Latest(ctx)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("latest run: %w", err)
	}
	return rec, nil
}
