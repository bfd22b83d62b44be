package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// ErrNoJWTSecret is returned when the mailbox API has no signing secret.
var ErrNoJWTSecret = errors.New("no mailbox JWT secret configured")

// KeySource represents where a secret was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// resolveSecret prefers the environment variable, then an expanded config value.
func resolveSecret(envVar, configured string) (string, KeySource) {
	if v := os.Getenv(envVar); v != "" {
		return v, KeySourceEnv
	}
	if configured != "" {
		v := os.ExpandEnv(configured)
		if v != "" && !strings.HasPrefix(v, "${") {
			return v, KeySourceConfig
		}
	}
	return "", KeySourceNone
}

// GetAPIKey returns the Anthropic API key.
func GetAPIKey(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Anthropic.APIKey
	}
	key, src := resolveSecret("ANTHROPIC_API_KEY", configured)
	if src == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	var configured string
	if cfg != nil {
		configured = cfg.Anthropic.APIKey
	}
	_, src := resolveSecret("ANTHROPIC_API_KEY", configured)
	return src
}

// GetJWTSecret returns the secret used to sign and verify agent tokens.
func GetJWTSecret(cfg *Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Server.JWTSecret
	}
	secret, src := resolveSecret("COLONY_JWT_SECRET", configured)
	if src == KeySourceNone {
		return "", ErrNoJWTSecret
	}
	return secret, nil
}

// MaskSecret returns a masked version of a secret for display.
func MaskSecret(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
