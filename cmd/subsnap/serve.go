package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	jwttoken "subsnap/internal/jwt_token"
	"subsnap/internal/platform/httpserver"
	httptransport "subsnap/internal/transport/http"
)

func newServeCmd() *cobra.Command {
	var events string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the scheduler run trigger over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Server.SchedulerSecret == "" {
				return errors.New("SUBSNAP_SCHEDULER_SECRET is required")
			}
			if err := a.migrate(ctx); err != nil {
				return err
			}
			svc, err := a.runService(ctx, events)
			if err != nil {
				return err
			}

			tokens := jwttoken.NewJWTService(a.cfg.Server.SchedulerSecret, a.cfg.Server.TokenIssuer, a.cfg.Server.TokenAudience)
			router := httptransport.NewRouter(httptransport.NewHandler(svc, a.logger), httptransport.RouterConfig{
				Validator: jwttoken.NewJWTServiceAdapter(tokens),
				Gatherer:  prometheus.DefaultGatherer,
				Health:    a.healthChecks(),
				Logger:    a.logger,
			})

			return httpserver.Run(ctx, httpserver.New(a.cfg.Server.Addr, router), a.logger)
		},
	}
	cmd.Flags().StringVar(&events, "events", "", "event file, overrides SUBSNAP_EVENTS_PATH")
	return cmd
}

func (a *app) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{
		"warehouse": func(ctx context.Context) error { return a.db.PingContext(ctx) },
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	if a.kafka != nil {
		checks["kafka"] = a.kafka.Health
	}
	return checks
}
