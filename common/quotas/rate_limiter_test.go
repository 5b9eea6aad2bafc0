package quotas

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowRespectsBurst(t *testing.T) {
	limiter := NewRateLimiter(1, 2)

	require.True(t, limiter.Allow())
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())
}

func TestRateLimiterSetRPS(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.SetRPS(100)
	require.Equal(t, float64(100), limiter.Rate())
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, limiter.Wait(ctx))
}

func TestDynamicRateLimiterUsesRateFn(t *testing.T) {
	limiter := NewDynamicRateLimiter(
		func() float64 { return 50 },
		func() int { return 100 },
		time.Minute,
	)

	require.Equal(t, float64(50), limiter.Rate())
	require.Equal(t, 100, limiter.Burst())
	require.True(t, limiter.Allow())
}
