package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/power-scheduler/internal/config"
	"github.com/t77yq/power-scheduler/internal/storage"
)

var (
	historyResource string
	historyResult   string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent power transitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.History.Path == "" {
			return fmt.Errorf("history is disabled: history.path is empty")
		}

		history, err := storage.NewSQLiteTransitionHistory(zap.NewNop(), cfg.History.Path)
		if err != nil {
			return err
		}
		defer history.Close()

		filters := map[string]interface{}{}
		if historyResource != "" {
			filters["resource_id"] = historyResource
		}
		if historyResult != "" {
			filters["result"] = historyResult
		}

		transitions, err := history.List(cmd.Context(), filters, 0, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVALUATED AT\tRESOURCE\tPROVIDER\tTARGET\tRESULT\tERROR")
		for _, t := range transitions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.EvaluatedAt.Format(time.RFC3339),
				t.ResourceID,
				t.Provider,
				t.Target,
				t.Result,
				t.Error)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyResource, "resource", "", "only show transitions of this resource id")
	historyCmd.Flags().StringVar(&historyResult, "result", "", "only show transitions with this result (succeeded, failed, dry_run, invalid_schedule)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of transitions to print")
}
