package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S6 — rate-limit headers scenario (property 7): within a 60s window, at
// most `limit` calls succeed for a key; the (limit+1)th is rejected with
// Remaining 0 and a ResetAt within the window.
func TestSlidingWindowLimiter_EnforcesLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := NewSlidingWindowLimiter(clock)

	for i := 0; i < 100; i++ {
		d, err := l.Allow("tenant:acme", 100, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d should be allowed", i)
	}

	d, err := l.Allow("tenant:acme", 100, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
	require.True(t, d.ResetAt.Sub(now) <= time.Minute)
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := NewSlidingWindowLimiter(clock)

	for i := 0; i < 5; i++ {
		_, err := l.Allow("k", 5, time.Minute)
		require.NoError(t, err)
	}
	d, err := l.Allow("k", 5, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	now = now.Add(61 * time.Second)
	d, err = l.Allow("k", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestSlidingWindowLimiter_SetLimitOverride(t *testing.T) {
	l := NewSlidingWindowLimiter(nil)
	require.NoError(t, l.SetLimit("special", 2, time.Minute))

	d, err := l.Allow("special", 100, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = l.Allow("special", 100, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = l.Allow("special", 100, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed, "override limit of 2 should reject the 3rd call")
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	l := NewSlidingWindowLimiter(nil)
	for i := 0; i < 3; i++ {
		_, err := l.Allow("k", 3, time.Minute)
		require.NoError(t, err)
	}
	d, _ := l.Allow("k", 3, time.Minute)
	require.False(t, d.Allowed)

	require.NoError(t, l.Reset("k"))
	d, err := l.Allow("k", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
