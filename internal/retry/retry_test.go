package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ShayCichocki/colony/internal/errs"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestBackoff_Do(t *testing.T) {
	b := Backoff{MaxRetries: 3, Base: time.Millisecond, Max: 2 * time.Millisecond}
	transient := fmt.Errorf("executor down: %w", errs.ErrCollaboratorUnavailable)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := b.Do(context.Background(), func(int) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do() = %v, want nil", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := b.Do(context.Background(), func(int) error {
			calls++
			return transient
		})
		if !errors.Is(err, errs.ErrCollaboratorUnavailable) {
			t.Errorf("Do() = %v, want ErrCollaboratorUnavailable", err)
		}
		if calls != 4 {
			t.Errorf("calls = %d, want 4", calls)
		}
	})

	t.Run("policy violations are never retried", func(t *testing.T) {
		calls := 0
		err := b.Do(context.Background(), func(int) error {
			calls++
			return fmt.Errorf("%w: %w", errs.ErrPolicyViolation, errs.ErrCollaboratorUnavailable)
		})
		if !errors.Is(err, errs.ErrPolicyViolation) {
			t.Errorf("Do() = %v, want ErrPolicyViolation", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("context cancellation stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := Backoff{MaxRetries: 5, Base: time.Hour}
		calls := 0
		err := slow.Do(ctx, func(int) error {
			calls++
			cancel()
			return transient
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
