package render

import (
	"context"
	"fmt"
	"time"
)

// DefaultPollInterval is how often Poll re-evaluates its condition.
const DefaultPollInterval = 100 * time.Millisecond

// Poll evaluates cond until it holds, the timeout elapses or ctx is done.
// The condition is always evaluated at least once, so a zero timeout
// checks the current state without waiting. A condition error stops the
// wait and is returned as-is.
func Poll(ctx context.Context, cond Condition, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
