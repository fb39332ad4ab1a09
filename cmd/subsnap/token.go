package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "subsnap/internal/jwt_token"
	"subsnap/internal/platform/config"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a scheduler token for POST /v1/runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := mintToken(cfg.Server, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "scheduler", "name of the caller")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func mintToken(cfg config.Server, subject string, ttl time.Duration) (string, error) {
	if cfg.SchedulerSecret == "" {
		return "", errors.New("SUBSNAP_SCHEDULER_SECRET is required")
	}
	if ttl <= 0 {
		return "", errors.New("--ttl must be positive")
	}
	svc := jwttoken.NewJWTService(cfg.SchedulerSecret, cfg.TokenIssuer, cfg.TokenAudience)
	return svc.GenerateSchedulerToken(subject, jwttoken.ScopeTriggerRun, ttl)
}
