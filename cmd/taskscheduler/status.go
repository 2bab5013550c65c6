package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current task status counts and scheduler state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := a.manager.Initialize(ctx, a.schedulerConfig()); err != nil {
		return err
	}

	metrics, err := a.manager.GetMetrics(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"state":            a.manager.State(),
		"isRunning":        metrics.IsRunning,
		"totalTasks":       metrics.TotalTasks,
		"taskStatusCounts": metrics.TaskStatusCounts,
		"lastTickAt":       metrics.LastTickAt,
		"lastTickMs":       metrics.LastTickDurationMs,
		"backend":          a.cfg.Storage.Backend,
	})
}
