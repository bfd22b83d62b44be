package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/colony/internal/errs"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Execution.SliceTimeout != 120*time.Second {
		t.Errorf("SliceTimeout = %v, want 120s", cfg.Execution.SliceTimeout)
	}
	if cfg.Adaptation.Threshold != 25 {
		t.Errorf("Adaptation.Threshold = %d, want 25", cfg.Adaptation.Threshold)
	}
	if cfg.Gate.RevocationThreshold != 3 {
		t.Errorf("RevocationThreshold = %d, want 3", cfg.Gate.RevocationThreshold)
	}
}

func TestValidate_ClampsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Gate.RevocationThreshold = 0
	cfg.Execution.SliceTimeout = 0
	cfg.Execution.BackoffMax = time.Millisecond
	cfg.Quality.PartialThreshold = 0.95
	cfg.Adaptation.Threshold = -1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Gate.RevocationThreshold != 3 {
		t.Errorf("RevocationThreshold = %d, want 3", cfg.Gate.RevocationThreshold)
	}
	if cfg.Execution.SliceTimeout != 120*time.Second {
		t.Errorf("SliceTimeout = %v, want 120s", cfg.Execution.SliceTimeout)
	}
	if cfg.Execution.BackoffMax != cfg.Execution.BackoffBase {
		t.Errorf("BackoffMax = %v, want clamped to BackoffBase", cfg.Execution.BackoffMax)
	}
	if cfg.Quality.PartialThreshold != 0.5 {
		t.Errorf("PartialThreshold = %v, want 0.5", cfg.Quality.PartialThreshold)
	}
	if cfg.Adaptation.Threshold != 25 {
		t.Errorf("Adaptation.Threshold = %d, want 25", cfg.Adaptation.Threshold)
	}
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		q       QualityPolicy
		wantErr bool
	}{
		{"defaults", QualityPolicy{CompletionWeight: 0.4, ComplianceWeight: 0.3, ConfidenceWeight: 0.3}, false},
		{"all completion", QualityPolicy{CompletionWeight: 1}, false},
		{"sum too high", QualityPolicy{CompletionWeight: 0.5, ComplianceWeight: 0.5, ConfidenceWeight: 0.5}, true},
		{"negative", QualityPolicy{CompletionWeight: 1.2, ComplianceWeight: -0.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.ValidateWeights()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateWeights() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errs.ErrConfigInvalid) {
				t.Errorf("error %v does not wrap ErrConfigInvalid", err)
			}
		})
	}
}
