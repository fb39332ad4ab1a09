package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"subsnap/internal/quality"
	"subsnap/internal/subscription/models"
)

// Relations checked by the default gate.
const (
	FactTable   = "fact_subscription_daily"
	EventsTable = "subscription_events"
	DateDim     = "dim_date"
	AccountDim  = "dim_account"
	PlanDim     = "dim_plan"
)

// GateSuiteName labels the default post-load suite in reports and metrics.
const GateSuiteName = "post_load"

// GateConfig sets the thresholds of the default suite.
type GateConfig struct {
	MinFactRows  int64
	FreshnessMax time.Duration
}

// Gate is the post-load quality gate: the default warehouse suite plus any
// declarative suites loaded from YAML, evaluated against one source.
type Gate struct {
	source       quality.Source
	cfg          GateConfig
	specs        []quality.SuiteSpec
	suiteOptions []quality.Option
	logger       *slog.Logger
}

type GateOption func(*Gate)

// WithSuiteSpec appends the expectations of a declarative suite.
func WithSuiteSpec(spec quality.SuiteSpec) GateOption {
	return func(g *Gate) {
		g.specs = append(g.specs, spec)
	}
}

// WithSuiteOptions passes options (concurrency, clock, metrics) to every suite built.
func WithSuiteOptions(opts ...quality.Option) GateOption {
	return func(g *Gate) {
		g.suiteOptions = append(g.suiteOptions, opts...)
	}
}

func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

func NewGate(source quality.Source, cfg GateConfig, opts ...GateOption) (*Gate, error) {
	if source == nil {
		return nil, errors.New("quality source is required")
	}
	if cfg.MinFactRows < 0 {
		return nil, errors.New("min fact rows must not be negative")
	}
	if cfg.FreshnessMax <= 0 {
		return nil, errors.New("freshness max age must be positive")
	}
	g := &Gate{
		source: source,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Suite builds the gate's suite. Every call returns a fresh builder.
func (g *Gate) Suite() *quality.Suite {
	statuses := make([]string, len(models.AllStatuses))
	for i, st := range models.AllStatuses {
		statuses[i] = st.String()
	}
	zero := decimal.Zero

	opts := append([]quality.Option{quality.WithLogger(g.logger)}, g.suiteOptions...)
	s := quality.New(GateSuiteName, g.source, opts...).
		ExpectRowCount(FactTable, g.cfg.MinFactRows).
		ExpectNoNulls(FactTable, "date_key", "account_id", "full_date", "plan_id", "status",
			"signup_date", "mrr", "arr", "run_id", "loaded_at").
		ExpectUnique(FactTable, "date_key", "account_id").
		ExpectReferentialIntegrity(FactTable, []string{"account_id"}, AccountDim, []string{"account_id"}).
		ExpectReferentialIntegrity(FactTable, []string{"date_key"}, DateDim, []string{"date_key"}).
		ExpectReferentialIntegrity(FactTable, []string{"plan_id"}, PlanDim, []string{"plan_id"}).
		ExpectFreshness(FactTable, "loaded_at", g.cfg.FreshnessMax).
		ExpectValuesInSet(FactTable, "status", statuses...).
		ExpectValueRange(FactTable, "mrr", &zero, nil).
		ExpectNotBefore(EventsTable, "start_date", "end_date")

	for _, spec := range g.specs {
		spec.AddTo(s)
	}
	return s
}

// Validate runs the gate and returns its report.
func (g *Gate) Validate(ctx context.Context, runID string) *quality.Report {
	report := g.Suite().Run(ctx)
	if !report.Success {
		g.logger.WarnContext(ctx, "quality gate failed",
			"run_id", runID,
			"failed", report.Failed(),
			"total", report.Total(),
		)
	}
	return report
}
