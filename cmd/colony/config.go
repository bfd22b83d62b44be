package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/colony/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging defaults, the user config
(~/.config/colony/config.yaml), a project .colony.yaml and COLONY_*
environment variables. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if jsonOutput {
			masked := *cfg
			masked.Anthropic.APIKey = config.MaskSecret(cfg.Anthropic.APIKey)
			masked.Server.JWTSecret = config.MaskSecret(cfg.Server.JWTSecret)
			return printJSON(masked)
		}
		key, _ := config.GetAPIKey(cfg)
		secret, _ := config.GetJWTSecret(cfg)
		p := cfg.Policy

		fmt.Printf("anthropic.api_key: %s (%s)\n", config.MaskSecret(key), config.GetAPIKeySource(cfg))
		fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
		fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
		fmt.Printf("executor: %s\n", cfg.Executor)
		fmt.Printf("paths.data_dir: %s\n", cfg.Paths.DataDir)
		fmt.Printf("paths.domains_file: %s\n", cfg.Paths.DomainsFile)
		fmt.Printf("server.addr: %s\n", cfg.Server.Addr)
		fmt.Printf("server.base_path: %s\n", cfg.Server.BasePath)
		fmt.Printf("server.jwt_secret: %s\n", config.MaskSecret(secret))
		fmt.Printf("memory.recall_limit: %d\n", cfg.Memory.RecallLimit)
		fmt.Printf("memory.min_quality: %.2f\n", cfg.Memory.MinQuality)
		fmt.Printf("policy.gate.revocation_threshold: %d\n", p.Gate.RevocationThreshold)
		fmt.Printf("policy.execution.slice_timeout: %s\n", p.Execution.SliceTimeout)
		fmt.Printf("policy.execution.max_retries: %d\n", p.Execution.MaxRetries)
		fmt.Printf("policy.quality.pass_threshold: %.2f\n", p.Quality.PassThreshold)
		fmt.Printf("policy.quality.partial_threshold: %.2f\n", p.Quality.PartialThreshold)
		fmt.Printf("policy.adaptation.threshold: %d\n", p.Adaptation.Threshold)
		fmt.Printf("policy.adaptation.window: %s\n", p.Adaptation.Window)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file locations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		if p := config.GetProjectConfigPath(); p != "" {
			fmt.Printf("project: %s\n", p)
		} else {
			fmt.Println("project: (none)")
		}
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
}
