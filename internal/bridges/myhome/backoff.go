package myhome

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default reconnect policy.
const (
	defaultInitialDelay = 5 * time.Second
	defaultMaxDelay     = 2 * time.Minute
	defaultMultiplier   = 1.5
	defaultJitter       = 0.25
)

// Backoff is the reconnect policy shared by the listener and the workers.
// The zero value uses the defaults: 5s initial, x1.5, 2 minute cap, 25% jitter.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter adds up to this fraction of the delay. Negative disables jitter.
	Jitter float64

	current time.Duration
}

func (b *Backoff) withDefaults() {
	if b.InitialDelay <= 0 {
		b.InitialDelay = defaultInitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = defaultMaxDelay
	}
	if b.MaxDelay < b.InitialDelay {
		b.MaxDelay = b.InitialDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = defaultMultiplier
	}
	if b.Jitter == 0 {
		b.Jitter = defaultJitter
	}
}

// Next returns the delay before the next attempt and advances the policy.
func (b *Backoff) Next() time.Duration {
	b.withDefaults()

	if b.current == 0 {
		b.current = b.InitialDelay
	}
	delay := b.current

	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.MaxDelay || next <= 0 {
		next = b.MaxDelay
	}
	b.current = next

	if b.Jitter > 0 {
		delay += time.Duration(rand.Float64() * b.Jitter * float64(delay)) //nolint:gosec // jitter needs no crypto randomness
	}
	return delay
}

// Reset restarts the policy at InitialDelay. Called after a successful connect.
func (b *Backoff) Reset() {
	b.current = 0
}

// sleepCtx waits for d or until ctx is done, reporting whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
