package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "colony",
	Short: "Policy-enforced multi-agent orchestration",
	Long: `Colony splits every task into seven constrained slices, runs them on a
domain's worker pool, and governs all agent communication through a
hierarchy-enforcing message gate.

Core capabilities:
- Gated messaging with warn, warn, revoke accounting per agent
- Versioned constraint envelopes per domain
- Validation, merge and composite quality scoring of slice outputs
- Friction-driven rule adaptation with commander escalation`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: user and project config)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override paths.data_dir")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(violationsCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(escalationsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
