package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Inspect and resolve rule adjustment proposals",
}

var proposalsStatus string

var proposalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			props, err := a.db.ListProposals(cmd.Context(), models.ProposalStatus(strings.ToUpper(proposalsStatus)))
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(props)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Domain", "Key", "Scope", "Change", "Status", "Evidence"})
			for _, p := range props {
				change := fmt.Sprintf("%s %q -> %q", p.Change.Kind, p.Change.OldRule, p.Change.NewRule)
				tw.AppendRow(table.Row{p.ID, p.Domain, string(p.Key.Type) + ": " + truncate(p.Key.BlockedByRule, 30), p.Scope, truncate(change, 60), p.Status, len(p.Evidence)})
			}
			tw.Render()
			return nil
		})
	},
}

var (
	resolveApprove bool
	resolveReject  bool
	resolveNote    string
)

var proposalsResolveCmd = &cobra.Command{
	Use:   "resolve <proposal-id>",
	Short: "Approve or reject an escalated proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveApprove == resolveReject {
			return errors.New("pass exactly one of --approve or --reject")
		}
		return withApp(func(a *app) error {
			if err := a.startEngine(cmd.Context(), false); err != nil {
				return err
			}
			p, err := a.engine.ResolveProposal(cmd.Context(), args[0], resolveApprove, resolveNote)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(p)
			}
			color.Green("Proposal %s %s", p.ID, p.Status)
			if p.AppliedVersion > 0 {
				fmt.Printf("%s envelope is now v%d\n", p.Domain, p.AppliedVersion)
			}
			return nil
		})
	},
}

var escalationsCmd = &cobra.Command{
	Use:   "escalations",
	Short: "Inspect and resolve commander escalations",
}

var escalationsAll bool

var escalationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalations (pending only unless --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			reqs, err := a.db.ListEscalations(cmd.Context(), !escalationsAll)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(reqs)
			}
			if len(reqs) == 0 {
				fmt.Println("No pending escalations.")
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Created", "Domain", "Task", "Reason", "Detail", "Resolved"})
			for _, r := range reqs {
				tw.AppendRow(table.Row{r.ID, r.CreatedAt.Local().Format("01-02 15:04"), r.Domain, r.TaskID, r.Reason, truncate(r.Detail, 50), r.Resolved})
			}
			tw.Render()
			return nil
		})
	},
}

var (
	escAction    string
	escSlice     int
	escCanDo     []string
	escDropRules []string
)

var escalationsResolveCmd = &cobra.Command{
	Use:   "resolve <escalation-id>",
	Short: "Apply a commander decision",
	Long: `Resolve applies a commander decision to a pending escalation.

  approve | reject    close an escalated rule proposal
  redispatch          re-run one slice with adjusted constraints
                      (--slice N, --can-do, --drop-cannot-do)
  human_input         raise an operator alert and keep the request open`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := models.EscalationResolution{
			Action:       models.EscalationAction(strings.ToLower(escAction)),
			SliceOrdinal: escSlice,
			CanDo:        escCanDo,
			DropCannotDo: escDropRules,
			Note:         resolveNote,
		}
		return withApp(func(a *app) error {
			if err := a.startEngine(cmd.Context(), false); err != nil {
				return err
			}
			req, err := a.engine.ResolveEscalation(cmd.Context(), args[0], res)
			if errors.Is(err, errs.ErrNotFound) && res.Action == models.ActionRedispatch {
				return fmt.Errorf("%w (slices can only be re-dispatched by the process that ran the task)", err)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(req)
			}
			if req.Resolved {
				color.Green("Escalation %s resolved: %s", req.ID, res.Action)
			} else {
				color.Yellow("Escalation %s still pending: operator alerted", req.ID)
			}
			return nil
		})
	},
}

func init() {
	proposalsListCmd.Flags().StringVar(&proposalsStatus, "status", "", "filter by status (AUTO_APPLIED, ESCALATED, APPROVED, REJECTED)")
	proposalsResolveCmd.Flags().BoolVar(&resolveApprove, "approve", false, "apply the proposed change")
	proposalsResolveCmd.Flags().BoolVar(&resolveReject, "reject", false, "leave the envelope unchanged")
	proposalsResolveCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note")
	proposalsCmd.AddCommand(proposalsListCmd, proposalsResolveCmd)

	escalationsListCmd.Flags().BoolVar(&escalationsAll, "all", false, "include resolved escalations")
	escalationsResolveCmd.Flags().StringVar(&escAction, "action", "", "approve, reject, redispatch or human_input")
	escalationsResolveCmd.Flags().IntVar(&escSlice, "slice", 0, "slice ordinal (1-7) to re-dispatch")
	escalationsResolveCmd.Flags().StringSliceVar(&escCanDo, "can-do", nil, "actions to permit for the re-dispatched slice")
	escalationsResolveCmd.Flags().StringSliceVar(&escDropRules, "drop-cannot-do", nil, "rules to lift for the re-dispatched slice")
	escalationsResolveCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note")
	_ = escalationsResolveCmd.MarkFlagRequired("action")
	escalationsCmd.AddCommand(escalationsListCmd, escalationsResolveCmd)
}
