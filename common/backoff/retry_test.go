package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/common/clock"
)

func TestThrottleRetrySuccessAfterFailures(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}

	policy := NewExponentialRetryPolicy(time.Millisecond).
		WithMaximumInterval(2 * time.Millisecond).
		WithExpirationInterval(time.Minute)

	err := ThrottleRetry(op, policy, nil)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestThrottleRetryNonRetryableError(t *testing.T) {
	terminal := errors.New("terminal")
	attempts := 0
	op := func() error {
		attempts++
		return terminal
	}

	policy := NewExponentialRetryPolicy(time.Millisecond).
		WithExpirationInterval(time.Minute)

	err := ThrottleRetry(op, policy, func(err error) bool { return !errors.Is(err, terminal) })
	require.ErrorIs(t, err, terminal)
	require.Equal(t, 1, attempts)
}

func TestThrottleRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ThrottleRetryContext(ctx, func(context.Context) error { return errors.New("never") },
		NewExponentialRetryPolicy(time.Millisecond), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExponentialRetryPolicyMaximumAttempts(t *testing.T) {
	policy := NewExponentialRetryPolicy(time.Second).
		WithMaximumAttempts(2).
		WithExpirationInterval(NoInterval)

	require.NotEqual(t, done, policy.ComputeNextDelay(0, 1))
	require.Equal(t, done, policy.ComputeNextDelay(0, 2))
}

func TestExponentialRetryPolicyExpiration(t *testing.T) {
	policy := NewExponentialRetryPolicy(time.Second).
		WithExpirationInterval(time.Minute)

	require.Equal(t, done, policy.ComputeNextDelay(2*time.Minute, 1))
}

func TestRetrierResetsAttemptCount(t *testing.T) {
	ts := clock.NewEventTimeSource()
	policy := NewExponentialRetryPolicy(time.Second).
		WithMaximumAttempts(2).
		WithExpirationInterval(NoInterval)

	r := NewRetrier(policy, ts)
	require.NotEqual(t, done, r.NextBackOff())
	require.Equal(t, done, r.NextBackOff())

	r.Reset()
	require.NotEqual(t, done, r.NextBackOff())
}

func TestJitDurationBounds(t *testing.T) {
	duration := time.Second
	coefficient := 0.2

	for i := 0; i < 100; i++ {
		jittered := JitDuration(duration, coefficient)
		require.GreaterOrEqual(t, jittered, 800*time.Millisecond)
		require.Less(t, jittered, 1200*time.Millisecond)
	}
}
