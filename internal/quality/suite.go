// Package quality is a declarative data-quality gate. A Suite collects
// expectations about named relations and evaluates them together in Run,
// producing a Report whose Success is the AND of every result.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"subsnap/internal/platform/metrics"
)

var tracer = otel.Tracer("subsnap/quality")

// Suite is a fluent builder of expectations. Methods append an immutable
// descriptor and return the suite; nothing touches the source until Run. A
// Suite is not safe for concurrent building.
type Suite struct {
	name        string
	source      Source
	checks      []expectation
	concurrency int
	clock       func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Suite.
type Option func(*Suite)

// WithConcurrency bounds how many expectations evaluate at once.
func WithConcurrency(n int) Option {
	return func(s *Suite) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock sets the time freshness is measured against.
func WithClock(clock func() time.Time) Option {
	return func(s *Suite) {
		s.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Suite) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Suite) {
		s.metrics = m
	}
}

func New(name string, source Source, opts ...Option) *Suite {
	s := &Suite{
		name:        name,
		source:      source,
		concurrency: 4,
		clock:       time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Suite) Name() string { return s.name }

// Len is the number of declared expectations.
func (s *Suite) Len() int { return len(s.checks) }

func (s *Suite) add(e expectation) *Suite {
	s.checks = append(s.checks, e)
	return s
}

// ExpectRowCount requires at least min rows.
func (s *Suite) ExpectRowCount(relation string, minRows int64) *Suite {
	return s.add(rowCount{rel: relation, min: minRows})
}

// ExpectRowCountBetween requires between minRows and maxRows rows inclusive.
func (s *Suite) ExpectRowCountBetween(relation string, minRows, maxRows int64) *Suite {
	if maxRows < minRows {
		return s.add(invalid{k: KindRowCount, rel: relation, err: fmt.Errorf("max %d below min %d", maxRows, minRows)})
	}
	return s.add(rowCount{rel: relation, min: minRows, max: maxRows, bounded: true})
}

// ExpectNoNulls requires every listed column to be non-null in every row.
func (s *Suite) ExpectNoNulls(relation string, columns ...string) *Suite {
	if len(columns) == 0 {
		return s.add(invalid{k: KindNoNulls, rel: relation, err: errNoColumns})
	}
	return s.add(noNulls{rel: relation, cols: columns})
}

// ExpectNullRate allows each column at most maxRate (0..1) nulls.
func (s *Suite) ExpectNullRate(relation string, maxRate float64, columns ...string) *Suite {
	if len(columns) == 0 {
		return s.add(invalid{k: KindNullRate, rel: relation, err: errNoColumns})
	}
	return s.add(nullRate{rel: relation, cols: columns, maxRate: maxRate})
}

// ExpectUnique requires the column combination to identify rows uniquely.
func (s *Suite) ExpectUnique(relation string, columns ...string) *Suite {
	if len(columns) == 0 {
		return s.add(invalid{k: KindUnique, rel: relation, err: errNoColumns})
	}
	return s.add(unique{rel: relation, cols: columns})
}

// ExpectReferentialIntegrity requires every non-null key in columns to exist in
// refRelation's refColumns.
func (s *Suite) ExpectReferentialIntegrity(relation string, columns []string, refRelation string, refColumns []string) *Suite {
	return s.add(referential{rel: relation, cols: columns, refRel: refRelation, refCols: refColumns})
}

// ExpectFreshness requires the newest value of column to be at most maxAge old.
func (s *Suite) ExpectFreshness(relation, column string, maxAge time.Duration) *Suite {
	return s.add(freshness{rel: relation, col: column, maxAge: maxAge})
}

// ExpectValuesInSet requires every non-null value of column to be one of allowed.
func (s *Suite) ExpectValuesInSet(relation, column string, allowed ...string) *Suite {
	return s.add(valuesInSet{rel: relation, col: column, allowed: allowed})
}

// ExpectValueRange bounds a numeric column. A nil bound is open.
func (s *Suite) ExpectValueRange(relation, column string, lower, upper *decimal.Decimal) *Suite {
	return s.add(valueRange{rel: relation, col: column, lower: lower, upper: upper})
}

// ExpectNotBefore requires laterColumn >= earlierColumn wherever both are set.
func (s *Suite) ExpectNotBefore(relation, earlierColumn, laterColumn string) *Suite {
	return s.add(notBefore{rel: relation, earlier: earlierColumn, later: laterColumn})
}

// Run evaluates every expectation and returns the report. It never stops early:
// a check that cannot run is recorded as failed with the error as its detail.
func (s *Suite) Run(ctx context.Context) *Report {
	ctx, span := tracer.Start(ctx, "quality.Run")
	defer span.End()
	span.SetAttributes(attribute.String("suite", s.name), attribute.Int("expectations", len(s.checks)))

	start := time.Now()
	now := s.clock()
	results := make([]CheckResult, len(s.checks))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, check := range s.checks {
		g.Go(func() error {
			results[i] = s.evaluate(ctx, check, now)
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(s.name, now, results)
	for _, r := range results {
		s.metrics.IncrementCheck(s.name, r.Kind, r.Passed)
	}
	s.metrics.ObserveSuite(time.Since(start))
	span.SetAttributes(attribute.Bool("success", report.Success), attribute.Int("failed", report.Failed()))

	s.logger.InfoContext(ctx, "quality suite finished",
		"suite", s.name,
		"passed", report.Passed(),
		"failed", report.Failed(),
		"success", report.Success,
	)
	return report
}

func (s *Suite) evaluate(ctx context.Context, check expectation, now time.Time) CheckResult {
	start := time.Now()
	res := CheckResult{Name: check.name(), Kind: check.kind(), Relation: check.relation()}

	passed, detail, err := check.evaluate(ctx, s.source, now)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.Detail = "check failed to execute: " + err.Error()
		s.logger.WarnContext(ctx, "quality check errored",
			"suite", s.name,
			"check", res.Name,
			"relation", res.Relation,
			"error", err,
		)
		return res
	}
	res.Passed, res.Detail = passed, detail
	return res
}
