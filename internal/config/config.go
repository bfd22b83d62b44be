// Package config handles configuration loading and management for colony.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/colony/internal/orchestrator/policy"
)

// Config holds all configuration for colony.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Server    ServerConfig    `mapstructure:"server"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	// Executor selects the work executor: "anthropic" or "echo".
	Executor string        `mapstructure:"executor"`
	Policy   policy.Config `mapstructure:"policy"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
}

// PathsConfig holds on-disk locations.
type PathsConfig struct {
	// DataDir holds the ledger database, alerts, and logs.
	DataDir string `mapstructure:"data_dir"`
	// DomainsFile is an optional YAML file of domain definitions.
	DomainsFile string `mapstructure:"domains_file"`
}

// ServerConfig holds mailbox API settings.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	BasePath  string `mapstructure:"base_path"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// MemoryConfig holds recall settings.
type MemoryConfig struct {
	// RecallLimit is the number of memories used to enrich slice context.
	RecallLimit int `mapstructure:"recall_limit"`
	// MinQuality rejects memories scored below this on remember.
	MinQuality float64 `mapstructure:"min_quality"`
}

// DBPath returns the ledger database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, "colony.db")
}

// MemoryDBPath returns the memory store path.
func (c *Config) MemoryDBPath() string {
	return filepath.Join(c.Paths.DataDir, "memory.db")
}

// AlertsDir returns the human alert directory.
func (c *Config) AlertsDir() string {
	return filepath.Join(c.Paths.DataDir, "alerts")
}

// LogPath returns the debug log path.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.DataDir, "logs", "colony-debug.log")
}

// Validate checks cross-field consistency and clamps policy values.
func (c *Config) Validate() error {
	switch c.Executor {
	case "anthropic", "echo":
	default:
		return fmt.Errorf("unknown executor %q", c.Executor)
	}
	if c.Memory.RecallLimit < 0 {
		c.Memory.RecallLimit = 5
	}
	return c.Policy.Validate()
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, COLONY_*)
// 2. Project config (.colony.yaml in current directory or parent)
// 3. User config (~/.config/colony/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Server.JWTSecret = os.ExpandEnv(cfg.Server.JWTSecret)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("COLONY")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("paths.data_dir", "COLONY_DATA_DIR")
	v.BindEnv("server.jwt_secret", "COLONY_JWT_SECRET")
	v.BindEnv("executor", "COLONY_EXECUTOR")
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values. Policy defaults come from policy.Default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.max_tokens", 4096)

	v.SetDefault("paths.data_dir", ".colony")
	v.SetDefault("paths.domains_file", "")

	v.SetDefault("server.addr", "127.0.0.1:8420")
	v.SetDefault("server.base_path", "/v1")
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("memory.recall_limit", 5)
	v.SetDefault("memory.min_quality", 0.3)

	v.SetDefault("executor", "echo")

	p := policy.Default()
	v.SetDefault("policy.gate.revocation_threshold", p.Gate.RevocationThreshold)
	v.SetDefault("policy.gate.edges", []string{})
	v.SetDefault("policy.gate.decision_cache_size", p.Gate.DecisionCacheSize)
	v.SetDefault("policy.execution.slice_timeout", p.Execution.SliceTimeout.String())
	v.SetDefault("policy.execution.max_retries", p.Execution.MaxRetries)
	v.SetDefault("policy.execution.backoff_base", p.Execution.BackoffBase.String())
	v.SetDefault("policy.execution.backoff_max", p.Execution.BackoffMax.String())
	v.SetDefault("policy.quality.completion_weight", p.Quality.CompletionWeight)
	v.SetDefault("policy.quality.compliance_weight", p.Quality.ComplianceWeight)
	v.SetDefault("policy.quality.confidence_weight", p.Quality.ConfidenceWeight)
	v.SetDefault("policy.quality.pass_threshold", p.Quality.PassThreshold)
	v.SetDefault("policy.quality.partial_threshold", p.Quality.PartialThreshold)
	v.SetDefault("policy.quality.violation_hard_cap", p.Quality.ViolationHardCap)
	v.SetDefault("policy.quality.low_quality_alert", p.Quality.LowQualityAlert)
	v.SetDefault("policy.adaptation.threshold", p.Adaptation.Threshold)
	v.SetDefault("policy.adaptation.window", p.Adaptation.Window.String())
	v.SetDefault("policy.events.buffer_size", p.Events.BufferSize)
}

// getUserConfigDir returns the XDG config directory for colony.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "colony")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "colony")
	}
	return filepath.Join(home, ".config", "colony")
}

// findProjectConfig searches for .colony.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".colony.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Paths: PathsConfig{
			DataDir: ".colony",
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:8420",
			BasePath: "/v1",
		},
		Memory: MemoryConfig{
			RecallLimit: 5,
			MinQuality:  0.3,
		},
		Executor: "echo",
		Policy:   *policy.Default(),
	}
}
