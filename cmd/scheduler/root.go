package main

import (
	"log/slog"
	"os"

	"github.com/orbita-labs/taskscheduler/pkg/observability"
	"github.com/spf13/cobra"
)

var (
	inputPath string
	verbose   bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Hybrid greedy/CP-interval task scheduling engine",
	Long: `scheduler assigns tasks to hourly slots across a planning horizon,
honoring per-user weekly calendars and leave periods, routing each job to
a greedy or CP interval solver based on instance size.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := observability.LogLevelInfo
		if verbose {
			level = observability.LogLevelDebug
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      observability.LogFormatText,
			Output:      os.Stderr,
			ServiceName: "scheduler",
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "-", "path to a job input JSON document, or - for stdin")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(explainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openInput() (*os.File, error) {
	if inputPath == "-" {
		return os.Stdin, nil
	}
	return os.Open(inputPath)
}
