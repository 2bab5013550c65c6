package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Initialize the registry and run the scheduler's polling loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScheduler(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runScheduler(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.manager.Initialize(ctx, a.schedulerConfig()); err != nil {
		return err
	}
	if !a.manager.IsSchedulerRunning() {
		if err := a.manager.StartScheduler(); err != nil {
			return err
		}
	}
	a.logger.Info("scheduler running", map[string]any{"backend": a.cfg.Storage.Backend})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutting down", nil)
	return a.manager.StopScheduler()
}
