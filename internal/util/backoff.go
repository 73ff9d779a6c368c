package util

import (
	"context"
	"strconv"
	"time"
)

// Backoff yields exponentially growing delays capped at a maximum. It is meant
// for a single retry loop and is not safe for concurrent use.
type Backoff struct {
	next    time.Duration
	initial time.Duration
	max     time.Duration
}

// NewBackoff returns a Backoff that starts at initial and doubles up to maxDelay.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{next: initial, initial: initial, max: maxDelay}
}

// Next returns the current delay and advances to the next value.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.max)
	return d
}

// Reset sets the backoff back to the initial delay.
func (b *Backoff) Reset() {
	b.next = b.initial
}

// Wait sleeps for Delay(retryAfter). It returns the context's cause when ctx
// ends first.
func (b *Backoff) Wait(ctx context.Context, retryAfter string) error {
	t := time.NewTimer(b.Delay(retryAfter))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Delay returns how long to wait before retrying after a response with the
// given Retry-After value (integer seconds). It falls back to the backoff.
func (b *Backoff) Delay(retryAfter string) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return min(time.Duration(seconds)*time.Second, b.max)
	}
	return b.Next()
}

