package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/orchestrator"
	"github.com/ShayCichocki/colony/internal/tui"
	"github.com/ShayCichocki/colony/pkg/models"
)

var (
	runDomain  string
	runVerbose bool
	runTUI     bool
)

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "Run one task through the colony",
	Long: `Run classifies the task (unless --domain is given), slices it seven ways,
executes the slices on the domain's worker pool, then validates, merges and
scores the result.

Exit status is non-zero when the task needs the commander; see
'colony escalations list'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()
			if err := a.startEngine(ctx, true); err != nil {
				return err
			}

			desc := strings.Join(args, " ")
			var (
				res *orchestrator.Result
				err error
			)
			if runTUI && !jsonOutput {
				opts := tui.Options{Description: desc, Agents: a.engine.Registry().All}
				res, err = tui.Run(ctx, opts, a.events.Events(), func(ctx context.Context) (*orchestrator.Result, error) {
					defer a.events.Close()
					return a.engine.Run(ctx, desc, runDomain)
				})
			} else {
				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					for ev := range a.events.Events() {
						if runVerbose && !jsonOutput {
							printEvent(ev)
						}
					}
				}()
				res, err = a.engine.Run(ctx, desc, runDomain)
				a.events.Close()
				wg.Wait()
			}

			if res == nil {
				return err
			}
			if jsonOutput {
				if perr := printJSON(res); perr != nil {
					return perr
				}
				return err
			}
			printResult(res)
			if errors.Is(err, errs.ErrEscalationRequired) {
				color.Yellow("\nEscalated to the commander: %s", res.Escalation.Detail)
				fmt.Printf("Resolve with: colony escalations resolve %s --action <approve|reject|redispatch|human_input>\n", res.Escalation.ID)
			}
			return err
		})
	},
}

func init() {
	runCmd.Flags().StringVar(&runDomain, "domain", "", "domain to run in (default: classify)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "stream pipeline events")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show a live dashboard while the task runs")
}

func printEvent(ev orchestrator.Event) {
	line := fmt.Sprintf("%s %-18s", ev.Timestamp.Format("15:04:05.000"), ev.Type)
	if ev.Ordinal > 0 {
		line += fmt.Sprintf(" slice %d", ev.Ordinal)
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	switch {
	case ev.Error != nil:
		color.Red("%s: %v", line, ev.Error)
	case ev.Type == orchestrator.EventAgentRevoked || ev.Type == orchestrator.EventTaskEscalated:
		color.Yellow("%s", line)
	default:
		fmt.Println(line)
	}
}

func printResult(res *orchestrator.Result) {
	bold := color.New(color.Bold)
	bold.Printf("Task %s", res.Task.ID)
	fmt.Printf("  domain=%s  status=%s\n\n", res.Task.Domain, res.Task.Status)

	violations := make(map[int]int)
	for _, v := range res.Validations {
		violations[v.WorkerOrdinal] = len(v.Violations)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Worker", "Target", "Status", "Violations", "Error"})
	for _, s := range res.Slices {
		tw.AppendRow(table.Row{s.WorkerOrdinal, s.WorkerID, s.Target, sliceStatus(s.Status), violations[s.WorkerOrdinal], truncate(s.Error, 60)})
	}
	tw.Render()

	r := res.Report
	fmt.Println()
	bold.Print("Quality ")
	fmt.Printf("%s %.3f  (completion %.2f, violation rate %.2f, confidence %.2f)\n",
		qaStatus(r.Status), r.QualityScore, r.CompletionRatio, r.ViolationRate, r.AvgConfidence)
	for _, issue := range r.Issues {
		fmt.Printf("  - %s\n", issue)
	}
	if n := len(res.Merged.Conflicts); n > 0 {
		color.Yellow("%d conflicting artifacts retained for review", n)
	}
	for _, p := range res.Proposals {
		fmt.Printf("Proposal %s: %s %s %q -> %q (%s)\n", p.ID, p.Scope, p.Change.Kind, p.Change.OldRule, p.Change.NewRule, p.Status)
	}
}

func sliceStatus(s models.SliceStatus) string {
	switch s {
	case models.SliceStatusCompleted:
		return color.GreenString(string(s))
	case models.SliceStatusTimedOut:
		return color.YellowString(string(s))
	case models.SliceStatusFailed:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func qaStatus(s models.QAStatus) string {
	switch s {
	case models.QAPassed:
		return color.GreenString(string(s))
	case models.QAPartial:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
