package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the pipeline reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Normalizer
	EventsSkipped *prometheus.CounterVec

	// Reconstruction outcomes by result ("ok", "error")
	AccountsReconstructed *prometheus.CounterVec
	RowsEmitted           prometheus.Counter

	// Loader
	LoadDuration prometheus.Histogram
	LoadRetries  prometheus.Counter
	RowsLoaded   prometheus.Counter

	// Validation
	CheckOutcomes *prometheus.CounterVec
	SuiteDuration prometheus.Histogram

	// Runs by outcome ("success", "quality_failed", "accounts_failed", "error")
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subsnap_events_skipped_total",
			Help: "Malformed subscription events dropped by the normalizer, by reason",
		}, []string{"reason"}),

		AccountsReconstructed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subsnap_accounts_reconstructed_total",
			Help: "Accounts replayed into daily snapshots, by result",
		}, []string{"result"}),

		RowsEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "subsnap_snapshot_rows_emitted_total",
			Help: "Daily snapshot rows produced by replay",
		}),

		LoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "subsnap_load_duration_seconds",
			Help:    "Duration of a batch load including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		LoadRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "subsnap_load_retries_total",
			Help: "Batch load attempts retried after a transient storage error",
		}),

		RowsLoaded: f.NewCounter(prometheus.CounterOpts{
			Name: "subsnap_fact_rows_loaded_total",
			Help: "Fact rows written by committed batch loads",
		}),

		CheckOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subsnap_quality_checks_total",
			Help: "Data-quality expectation outcomes by suite, kind and result",
		}, []string{"suite", "kind", "result"}),

		SuiteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "subsnap_quality_suite_duration_seconds",
			Help:    "Duration of a full data-quality suite run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subsnap_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "subsnap_run_duration_seconds",
			Help:    "End-to-end pipeline run duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

func (m *Metrics) IncrementSkipped(reason string) {
	if m != nil {
		m.EventsSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementAccounts(result string) {
	if m != nil {
		m.AccountsReconstructed.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AddRowsEmitted(n int) {
	if m != nil {
		m.RowsEmitted.Add(float64(n))
	}
}

// ObserveLoad records a finished load and the rows it committed.
func (m *Metrics) ObserveLoad(d time.Duration, rows int) {
	if m != nil {
		m.LoadDuration.Observe(d.Seconds())
		m.RowsLoaded.Add(float64(rows))
	}
}

func (m *Metrics) IncrementLoadRetries() {
	if m != nil {
		m.LoadRetries.Inc()
	}
}

func (m *Metrics) IncrementCheck(suite, kind string, passed bool) {
	if m != nil {
		result := "passed"
		if !passed {
			result = "failed"
		}
		m.CheckOutcomes.WithLabelValues(suite, kind, result).Inc()
	}
}

func (m *Metrics) ObserveSuite(d time.Duration) {
	if m != nil {
		m.SuiteDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
		m.RunDuration.Observe(d.Seconds())
	}
}
