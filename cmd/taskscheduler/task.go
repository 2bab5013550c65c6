package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/apimgr/tasksched/src/model"
	"github.com/apimgr/tasksched/src/registry"
)

var (
	taskStatus   string
	taskOutput   string
	taskName     string
	taskPriority int
	taskWhen     string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and create scheduled tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskList(cmd)
	},
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a PENDING task, due immediately unless --scheduled-time is set",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskCreate(cmd)
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "filter by status: PENDING, RUNNING, COMPLETED, FAILED, CANCELLED")
	taskListCmd.Flags().StringVar(&taskOutput, "output", "table", "output format: json, table")
	taskCreateCmd.Flags().StringVar(&taskName, "name", "", "task name (required)")
	taskCreateCmd.Flags().IntVar(&taskPriority, "priority", model.DefaultPriority, "task priority, 0-10")
	taskCreateCmd.Flags().StringVar(&taskWhen, "scheduled-time", "", "when the task is due: RFC3339, or an offset like 30m/2h/1d (default: now)")

	taskCmd.AddCommand(taskListCmd, taskCreateCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskList(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := a.manager.Initialize(ctx, a.schedulerConfig()); err != nil {
		return err
	}

	filter := model.Filter{}
	if taskStatus != "" {
		filter.Status = []model.Status{model.Status(taskStatus)}
	}
	tasks, err := a.manager.FindTasks(ctx, filter)
	if err != nil {
		return err
	}

	if taskOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSCHEDULE\tPRIORITY")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.ID, t.Name, t.Status, t.ScheduleType, t.Priority)
	}
	return w.Flush()
}

func runTaskCreate(cmd *cobra.Command) error {
	if taskName == "" {
		return fmt.Errorf("--name is required")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := a.manager.Initialize(ctx, a.schedulerConfig()); err != nil {
		return err
	}

	scheduled := time.Now()
	if taskWhen != "" {
		scheduled = registry.NormalizeScheduledTime(taskWhen, scheduled)
	}
	created, err := a.manager.CreateTask(ctx, &model.Task{
		Name:          taskName,
		Priority:      taskPriority,
		ScheduleType:  model.ScheduleExplicit,
		ScheduledTime: &scheduled,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created task %s\n", created.ID)
	return nil
}
