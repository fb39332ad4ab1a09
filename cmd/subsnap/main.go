// Command subsnap rebuilds the daily subscription snapshot warehouse from raw
// subscription events and gates each load with data quality checks.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subsnap/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		config.Exitf("subsnap: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "subsnap",
		Short:         "Daily subscription snapshots with a post-load quality gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newMigrateCmd(),
		newActivityCmd(),
		newServeCmd(),
		newTokenCmd(),
	)
	return root
}
