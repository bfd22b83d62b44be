package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/colony/internal/alert"
	"github.com/ShayCichocki/colony/pkg/models"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List persisted agents and their standing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			agents, err := a.db.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(agents)
			}
			if len(agents) == 0 {
				fmt.Println("No agents recorded yet. Run a task or start 'colony serve'.")
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Role", "Domain", "State", "Violations", "Revoked"})
			for _, ag := range agents {
				revoked := ""
				if ag.RevokedAt != nil {
					revoked = ag.RevokedAt.Local().Format("2006-01-02 15:04")
				}
				tw.AppendRow(table.Row{ag.ID, ag.Role, ag.Domain, agentState(ag.State), ag.ViolationCount, revoked})
			}
			tw.Render()
			return nil
		})
	},
}

func agentState(s models.AgentState) string {
	switch s {
	case models.AgentStateRevoked:
		return color.RedString(string(s))
	case models.AgentStateActive:
		return string(s)
	default:
		return color.YellowString(string(s))
	}
}

var (
	violationsAgent string
	violationsLimit int
)

var violationsCmd = &cobra.Command{
	Use:   "violations",
	Short: "Show the violation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			entries, err := a.db.ListViolations(cmd.Context(), violationsAgent, violationsLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(entries)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Time", "Sender", "Recipient", "Count", "Reason"})
			for _, e := range entries {
				tw.AppendRow(table.Row{e.Timestamp.Local().Format("01-02 15:04:05"), e.Sender, e.Recipient, e.ViolationCount, truncate(e.Reason, 70)})
			}
			tw.AppendFooter(table.Row{"", "", "Total", len(entries), ""})
			tw.Render()
			return nil
		})
	},
}

var alertsFollow bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List human alerts, optionally following new ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := cfg.AlertsDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		existing, err := alert.List(dir)
		if err != nil {
			return err
		}
		for _, al := range existing {
			printAlert(al)
		}
		if !alertsFollow {
			if len(existing) == 0 && !jsonOutput {
				fmt.Println("No alerts.")
			}
			return nil
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return alert.Follow(ctx, dir, printAlert)
	},
}

func printAlert(al models.HumanAlert) {
	if jsonOutput {
		_ = printJSON(al)
		return
	}
	head := fmt.Sprintf("[%s] %s %s", al.Timestamp.Local().Format("2006-01-02 15:04:05"), al.Severity, al.Kind)
	if al.Severity == models.SeverityCritical {
		color.Red("%s", head)
	} else {
		color.Yellow("%s", head)
	}
	fmt.Printf("  %s\n", al.Message)
	for _, step := range al.NextSteps {
		fmt.Printf("  -> %s\n", step)
	}
}

func init() {
	violationsCmd.Flags().StringVar(&violationsAgent, "agent", "", "only this sender")
	violationsCmd.Flags().IntVar(&violationsLimit, "limit", 50, "most recent N entries (0 for all)")
	alertsCmd.Flags().BoolVarP(&alertsFollow, "follow", "f", false, "watch for new alerts")
}
