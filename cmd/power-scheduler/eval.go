package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/t77yq/power-scheduler/internal/schedule"
)

// evalTimeLayout is the layout of --at, read as a naive wall clock
const evalTimeLayout = "2006-01-02T15:04"

var evalAt string

var evalCmd = &cobra.Command{
	Use:   "eval SCHEDULE",
	Short: "Parse a schedule and print the target it evaluates to",
	Example: `  power-scheduler eval "08:00;18:00;Europe/Paris;Mon,Tue,Wed,Thu,Fri"
  power-scheduler eval "NONE;20:00;UTC;Fri" --at 2018-04-27T21:00`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := schedule.Parse(args[0])
		if err != nil {
			return err
		}

		var target schedule.Target
		if evalAt != "" {
			ts, err := time.Parse(evalTimeLayout, evalAt)
			if err != nil {
				return fmt.Errorf("failed to parse --at: %w", err)
			}
			if target, err = sched.Evaluate(ts); err != nil {
				return err
			}
		} else {
			target = sched.EvaluateInstant(time.Now())
		}

		fmt.Fprintf(cmd.OutOrStdout(), "schedule: %s\ntarget:   %s\n", sched, target)
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalAt, "at", "", "wall clock in the schedule's zone ("+evalTimeLayout+"), default now")
}
