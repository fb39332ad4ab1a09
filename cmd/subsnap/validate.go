package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run the post-load quality gate against the current warehouse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			gate, err := a.gate()
			if err != nil {
				return err
			}
			report := gate.Validate(ctx, "")
			fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			if !report.Success {
				return errors.New("quality gate failed")
			}
			return nil
		},
	}
}
