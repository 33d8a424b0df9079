package backoff

import (
	"context"
	"time"
)

// Backoff yields exponentially growing delays capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
}

// Next returns the delay for the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return Delay(b.Initial, b.Max, b.attempt)
}

// Reset starts the sequence over after a success.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of delays handed out since the last reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Delay returns initial doubled attempt-1 times, capped at max.
func Delay(initial, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 || initial <= 0 {
		return 0
	}
	wait := initial
	for i := 1; i < attempt; i++ {
		wait *= 2
		if max > 0 && wait >= max {
			return max
		}
	}
	if max > 0 && wait > max {
		return max
	}
	return wait
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
