package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"collaborator down", ErrCollaboratorUnavailable, true},
		{"wrapped collaborator down", fmt.Errorf("executor: %w", ErrCollaboratorUnavailable), true},
		{"policy violation", ErrPolicyViolation, false},
		{"revoked", fmt.Errorf("send: %w", ErrAgentRevoked), false},
		{"revoked and unavailable", fmt.Errorf("%w: %w", ErrAgentRevoked, ErrCollaboratorUnavailable), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
