package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// RetryPolicy retries a check that may fail transiently
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns the policy used when a runbook sets none
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: constants.DefaultRetryAttempts, Delay: constants.DefaultRetryDelay}
}

// Do calls fn until it succeeds, the attempts are exhausted or ctx is done.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		logging.Debug("tools", "retrying", "attempt", attempt, "of", attempts, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(p.Delay):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
