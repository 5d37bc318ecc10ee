package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("portfolio"))
	assert.True(t, l.Allow("portfolio"))
	assert.False(t, l.Allow("portfolio"))
	assert.True(t, l.Allow("orders"), "buckets are per key")

	now = now.Add(500 * time.Millisecond)
	assert.False(t, l.Allow("portfolio"))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("portfolio"))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("portfolio"))
	assert.True(t, l.Allow("portfolio"))
	assert.False(t, l.Allow("portfolio"), "refill is capped at capacity")
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(1, 0.001)
	waited, err := l.Wait(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, waited)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waited, err = l.Wait(ctx, "k")
	assert.True(t, waited)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := New(1, 50)
	_, _ = l.Wait(context.Background(), "k")

	start := time.Now()
	waited, err := l.Wait(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, waited)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
