package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "power-scheduler",
	Short: "Power EC2 instances and containers on and off on a weekly schedule",
	Long: `power-scheduler reads a START;STOP;ZONE;DAYS schedule from a tag on each
EC2 instance (or a label on each container) and starts or stops the resource
when its state diverges from the schedule.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(historyCmd)
}
