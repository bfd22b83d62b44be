package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

var tasksLimit int

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recent tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			tasks, err := a.db.ListTasks(cmd.Context(), tasksLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(tasks)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Created", "Domain", "Status", "Description"})
			for _, t := range tasks {
				tw.AppendRow(table.Row{t.ID, t.CreatedAt.Local().Format("01-02 15:04"), t.Domain, t.Status, truncate(t.Description, 60)})
			}
			tw.Render()
			return nil
		})
	},
}

type taskDetail struct {
	Task   models.Task        `json:"task"`
	Slices []models.TaskSlice `json:"slices"`
	Report *models.QAReport   `json:"report,omitempty"`
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task's slices and quality report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			task, err := a.db.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			slices, err := a.db.SlicesForTask(ctx, task.ID)
			if err != nil {
				return err
			}
			d := taskDetail{Task: task, Slices: slices}
			report, err := a.db.GetReport(ctx, task.ID)
			switch {
			case err == nil:
				d.Report = &report
			case !errors.Is(err, errs.ErrNotFound):
				return err
			}
			if jsonOutput {
				return printJSON(d)
			}

			color.New(color.Bold).Printf("Task %s", task.ID)
			fmt.Printf("  domain=%s  status=%s\n%s\n\n", task.Domain, task.Status, task.Description)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Worker", "Target", "Envelope", "Status", "Error"})
			for _, s := range slices {
				tw.AppendRow(table.Row{s.WorkerOrdinal, s.WorkerID, s.Target, fmt.Sprintf("v%d", s.Constraints.Version), sliceStatus(s.Status), truncate(s.Error, 50)})
			}
			tw.Render()
			if d.Report != nil {
				fmt.Printf("\nQuality %s %.3f\n", qaStatus(report.Status), report.QualityScore)
				for _, r := range report.Recommendations {
					fmt.Printf("  - %s\n", r)
				}
			}
			return nil
		})
	},
}

var purgeOlderThan time.Duration

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete finished tasks older than a cutoff",
	Long: `Purge removes tasks, slices and reports older than --older-than.
Agent records, violation history, proposals and escalations are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			n, err := a.db.PurgeTasks(cmd.Context(), purgeOlderThan)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]int64{"purged": n})
			}
			fmt.Printf("Purged %d tasks older than %s\n", n, purgeOlderThan)
			return nil
		})
	},
}

func init() {
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 20, "maximum tasks to list")
	tasksCmd.AddCommand(tasksShowCmd)
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 30*24*time.Hour, "age cutoff")
}
