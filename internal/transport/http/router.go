package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "subsnap/internal/jwt_token"
	"subsnap/internal/platform/middleware"
)

// RouterConfig collects what the router needs besides the run handler.
type RouterConfig struct {
	Validator middleware.TokenValidator
	Gatherer  prometheus.Gatherer
	Health    map[string]HealthCheck
	Logger    *slog.Logger
	// RequestTimeout bounds every request. A run trigger waits for the run.
	RequestTimeout time.Duration
}

// NewRouter wires the operator surface: health, metrics, and run endpoints.
// Triggering a run requires a scheduler token.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", healthHandler(cfg.Health, logger))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/runs", func(runs chi.Router) {
		runs.Get("/latest", h.HandleLatest)
		runs.With(middleware.RequireScheduler(cfg.Validator, jwttoken.ScopeTriggerRun, logger)).
			Post("/", h.HandleTrigger)
	})
	return r
}
