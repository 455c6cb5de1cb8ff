package myhome

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2, Jitter: -1}

	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 3*time.Second, b.Next())
	assert.Equal(t, 3*time.Second, b.Next())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	d := b.Next()
	assert.GreaterOrEqual(t, d, defaultInitialDelay)
	assert.LessOrEqual(t, d, defaultInitialDelay+time.Duration(defaultJitter*float64(defaultInitialDelay)))
	assert.Equal(t, defaultMaxDelay, b.MaxDelay)
	assert.InDelta(t, defaultMultiplier, b.Multiplier, 0.0001)
}

func TestBackoffJitterBounded(t *testing.T) {
	for range 100 {
		b := Backoff{InitialDelay: 100 * time.Millisecond, Jitter: 0.25}
		d := b.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, sleepCtx(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
}
