package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/application/services"
	"github.com/spf13/cobra"
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Print the router's classification and chosen path without solving",
	Long: `explain reads the same job input document as run, computes the
instance classification (task count, total hours, distinct users, average
hours per task), and reports which path the router would pick — without
running either solver. Useful for understanding a routing decision before
committing to a full solve.`,
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

		tasks, _, _, err := in.toDomain()
		if err != nil {
			return fmt.Errorf("invalid job input: %w", err)
		}
		cfg := in.toConfig()

		classification := services.Classify(tasks)
		chooseGreedy := classification.ChooseGreedy(cfg)

		path := "cp_interval"
		if chooseGreedy {
			path = "greedy"
		}

		out := struct {
			TaskCount     int     `json:"task_count"`
			TotalHours    float64 `json:"total_hours"`
			DistinctUsers int     `json:"distinct_users"`
			AvgHours      float64 `json:"avg_hours"`
			Path          string  `json:"path"`
		}{
			TaskCount:     classification.TaskCount,
			TotalHours:    classification.TotalHours,
			DistinctUsers: classification.DistinctUsers,
			AvgHours:      classification.AvgHours,
			Path:          path,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
