package config

import (
	"errors"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("env wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
		cfg := Default()
		cfg.Anthropic.APIKey = "sk-ant-config"
		key, err := GetAPIKey(cfg)
		if err != nil || key != "sk-ant-env" {
			t.Errorf("GetAPIKey() = %q, %v; want env key", key, err)
		}
		if src := GetAPIKeySource(cfg); src != KeySourceEnv {
			t.Errorf("GetAPIKeySource() = %q, want %q", src, KeySourceEnv)
		}
	})

	t.Run("config fallback", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := Default()
		cfg.Anthropic.APIKey = "sk-ant-config"
		key, err := GetAPIKey(cfg)
		if err != nil || key != "sk-ant-config" {
			t.Errorf("GetAPIKey() = %q, %v; want config key", key, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		if _, err := GetAPIKey(Default()); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("GetAPIKey() error = %v, want ErrNoAPIKey", err)
		}
	})
}

func TestGetJWTSecret(t *testing.T) {
	t.Setenv("COLONY_JWT_SECRET", "")
	if _, err := GetJWTSecret(Default()); !errors.Is(err, ErrNoJWTSecret) {
		t.Errorf("GetJWTSecret() error = %v, want ErrNoJWTSecret", err)
	}
	t.Setenv("COLONY_JWT_SECRET", "hunter2")
	if s, err := GetJWTSecret(nil); err != nil || s != "hunter2" {
		t.Errorf("GetJWTSecret() = %q, %v", s, err)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-REDACTED", "sk-ant-...mnop"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
