// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/ShayCichocki/colony/internal/errs"
)

// Backoff describes a bounded exponential retry schedule.
type Backoff struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Base is the first delay; each retry doubles it.
	Base time.Duration
	// Max caps a single delay.
	Max time.Duration
}

// Delay returns the wait before retry n (1-indexed).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 || b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < n; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// retries run out, or ctx is done. The returned error is fn's last error,
// or ctx.Err() if the context ended while waiting.
func (b Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !errs.Retryable(err) || attempt >= b.MaxRetries {
			return err
		}

		timer := time.NewTimer(b.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
