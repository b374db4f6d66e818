package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/application/commands"
	"github.com/orbita-labs/taskscheduler/pkg/observability"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scheduling job and print the resulting solution as JSON",
	Long: `run reads a job input document ({"tasks", "calendar_slots", "leaves",
"config"}) and prints the persisted JSON form of the resulting Solution to
stdout.

Examples:
  scheduler run --input job.json
  cat job.json | scheduler run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openInput()
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()

		in, err := readJobInput(f)
		if err != nil {
			return err
		}

		tasks, slots, leaves, err := in.toDomain()
		if err != nil {
			return fmt.Errorf("invalid job input: %w", err)
		}
		cfg := in.toConfig()

		deps := commands.Deps{
			Logger:  logger,
			Metrics: observability.NoopMetrics{},
		}

		solution, err := commands.Schedule(context.Background(), tasks, slots, leaves, cfg, deps)
		if err != nil {
			return fmt.Errorf("schedule: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(solution)
	},
}
