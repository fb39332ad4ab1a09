package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"subsnap/internal/pipeline"
	"subsnap/internal/pipeline/publisher"
	"subsnap/internal/platform/config"
	"subsnap/internal/platform/database"
	"subsnap/internal/platform/kafka"
	"subsnap/internal/platform/logger"
	"subsnap/internal/platform/metrics"
	"subsnap/internal/platform/redis"
	"subsnap/internal/quality"
	"subsnap/internal/subscription/activity"
	"subsnap/internal/subscription/catalog"
	"subsnap/internal/subscription/ingest"
	"subsnap/internal/subscription/store"
	"subsnap/pkg/platform/retry"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	db      *sql.DB
	dialect store.Dialect
	redis   *redis.Client
	kafka   *kafka.Client
}

// newApp loads configuration and opens the warehouse. Redis and Kafka are
// connected lazily by the commands that need them.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	dialect, err := store.DialectForDriver(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New(prometheus.DefaultRegisterer),
		db:      db,
		dialect: dialect,
	}, nil
}

func (a *app) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

func (a *app) migrate(ctx context.Context) error {
	applied, err := store.Migrate(ctx, a.db, a.dialect)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		a.logger.Info("migration applied", "name", name)
	}
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.redis = client
	return nil
}

func (a *app) activityCounter() *activity.Redis {
	return activity.NewRedis(a.redis.Client, activity.WithTTL(a.cfg.Redis.ActivityTTL))
}

func (a *app) connectKafka(ctx context.Context) error {
	client, err := kafka.New(ctx, a.cfg.Kafka)
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	a.kafka = client
	return kafka.EnsureTopic(ctx, client.Client, client.Topic(), a.cfg.Kafka.Partitions, a.cfg.Kafka.ReplicationFactor)
}

func (a *app) gate(opts ...quality.Option) (*pipeline.Gate, error) {
	gateOpts := []pipeline.GateOption{
		pipeline.WithGateLogger(a.logger),
		pipeline.WithSuiteOptions(append([]quality.Option{
			quality.WithConcurrency(a.cfg.Quality.MaxConcurrency),
			quality.WithLogger(a.logger),
			quality.WithMetrics(a.metrics),
		}, opts...)...),
	}
	if path := a.cfg.Quality.SuitePath; path != "" {
		spec, err := quality.LoadSuiteFile(path)
		if err != nil {
			return nil, err
		}
		gateOpts = append(gateOpts, pipeline.WithSuiteSpec(spec))
	}
	return pipeline.NewGate(quality.NewSQLSource(a.db), pipeline.GateConfig{
		MinFactRows:  int64(a.cfg.Quality.MinFactRows),
		FreshnessMax: a.cfg.Quality.FreshnessMax,
	}, gateOpts...)
}

// runService wires the pipeline. eventsPath overrides the configured file.
func (a *app) runService(ctx context.Context, eventsPath string) (*pipeline.Service, error) {
	if eventsPath == "" {
		eventsPath = a.cfg.Pipeline.EventsPath
	}
	if eventsPath == "" {
		return nil, errors.New("events path is required")
	}

	plans, err := catalog.Load(a.cfg.Pipeline.PlanCatalogPath)
	if err != nil {
		return nil, err
	}

	loader, err := store.NewLoader(a.db, a.dialect,
		store.WithLogger(a.logger),
		store.WithMetrics(a.metrics),
		store.WithAttemptTimeout(a.cfg.Pipeline.LoadTimeout),
		store.WithRetryPolicy(retry.Policy{
			MaxRetries:      a.cfg.Pipeline.LoadMaxRetries,
			InitialInterval: a.cfg.Pipeline.LoadInitialBackoff,
			MaxInterval:     retry.DefaultPolicy().MaxInterval,
		}),
	)
	if err != nil {
		return nil, err
	}

	gate, err := a.gate()
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithCatalog(plans),
		pipeline.WithConcurrency(a.cfg.Pipeline.Concurrency),
		pipeline.WithRunRecorder(store.NewRunStore(a.db, a.dialect)),
	}

	if err := a.connectRedis(ctx); err != nil {
		return nil, err
	}
	if a.redis != nil {
		opts = append(opts, pipeline.WithActivity(a.activityCounter()))
	}

	if err := a.connectKafka(ctx); err != nil {
		return nil, err
	}
	if a.kafka != nil {
		pub, err := publisher.NewKafka(a.kafka.Client, a.kafka.Topic(), publisher.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithPublisher(pub))
	} else {
		opts = append(opts, pipeline.WithPublisher(publisher.NewLog(a.logger)))
	}

	return pipeline.New(ingest.NewFileSource(eventsPath), loader, gate, opts...)
}
