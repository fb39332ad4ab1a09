package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"subsnap/internal/subscription/ingest"
)

func newActivityCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Aggregate a product usage file into the Redis activity counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return errors.New("--file is required")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connectRedis(ctx); err != nil {
				return err
			}
			if a.redis == nil {
				return errors.New("SUBSNAP_REDIS_URL is required to record activity")
			}

			skipped, err := ingest.LoadActivity(ctx, path, a.activityCounter())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activity recorded, skipped events: %d\n", skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "usage event file (JSON array or JSON lines)")
	return cmd
}
