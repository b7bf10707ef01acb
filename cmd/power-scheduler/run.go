package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t77yq/power-scheduler/internal/config"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single evaluation pass and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil, func(cfg *config.Config) {
			if runDryRun {
				cfg.Schedule.DryRun = true
			}
		})
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.runner.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "evaluate without starting or stopping anything")
}
