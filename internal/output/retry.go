package output

import (
	"context"
	"fmt"
	"time"
)

const (
	queueAttempts      = 3
	queueBackoffMin    = 1 * time.Second
	queueBackoffMax    = 10 * time.Second
	defaultRESTTimeout = 10 * time.Second
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queueBackoff is the wait before the given attempt (2, 3, ...): 1s, 2s, 4s, ... capped at 10s.
func queueBackoff(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	shift := attempt - 2
	if shift > 4 {
		return queueBackoffMax
	}
	d := queueBackoffMin << uint(shift)
	if d > queueBackoffMax {
		d = queueBackoffMax
	}
	return d
}

// retry calls fn up to attempts times and returns how many calls were made.
func retry(ctx context.Context, attempts int, sleep Sleeper, fn func(attempt int) error) (int, error) {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if serr := sleep(ctx, queueBackoff(attempt)); serr != nil {
				return attempt - 1, fmt.Errorf("%w (retry aborted: %v)", err, serr)
			}
		}
		if err = fn(attempt); err == nil {
			return attempt, nil
		}
	}
	return attempts, err
}
