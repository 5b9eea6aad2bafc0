package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/types"
)

func TestNextRetryDelayExponentialBackoff(t *testing.T) {
	policy := &types.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    10 * time.Second,
	}

	for _, tc := range []struct {
		attempt int32
		delay   time.Duration
	}{
		{attempt: 1, delay: time.Second},
		{attempt: 2, delay: 2 * time.Second},
		{attempt: 3, delay: 4 * time.Second},
		{attempt: 4, delay: 8 * time.Second},
		{attempt: 5, delay: 10 * time.Second},
		{attempt: 20, delay: 10 * time.Second},
	} {
		delay, state := NextRetryDelay(policy, tc.attempt, nil)
		assert.Equal(t, enums.RetryStateInProgress, state, "attempt %d", tc.attempt)
		assert.Equal(t, tc.delay, delay, "attempt %d", tc.attempt)
	}
}

func TestNextRetryDelayNoPolicy(t *testing.T) {
	_, state := NextRetryDelay(nil, 1, nil)
	assert.Equal(t, enums.RetryStateRetryPolicyNotSet, state)
}

func TestNextRetryDelayMaximumAttempts(t *testing.T) {
	policy := &types.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumAttempts:    3,
	}

	_, state := NextRetryDelay(policy, 2, nil)
	assert.Equal(t, enums.RetryStateInProgress, state)

	_, state = NextRetryDelay(policy, 3, nil)
	assert.Equal(t, enums.RetryStateMaximumAttemptsReached, state)
}

func TestNextRetryDelayNonRetryableFailure(t *testing.T) {
	policy := &types.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		NonRetryableErrorTypes: []string{"InvalidOrder"},
	}

	_, state := NextRetryDelay(policy, 1, &types.Failure{Type: "InvalidOrder"})
	assert.Equal(t, enums.RetryStateNonRetryableFailure, state)

	_, state = NextRetryDelay(policy, 1, &types.Failure{Type: "Transient"})
	assert.Equal(t, enums.RetryStateInProgress, state)
}

func TestNextRetryDelayOverflowFallsBackToCap(t *testing.T) {
	policy := &types.RetryPolicy{
		InitialInterval:    time.Hour,
		BackoffCoefficient: 10.0,
		MaximumInterval:    24 * time.Hour,
	}

	delay, state := NextRetryDelay(policy, 100, nil)
	assert.Equal(t, enums.RetryStateInProgress, state)
	assert.Equal(t, 24*time.Hour, delay)
}

func TestValidateCronSchedule(t *testing.T) {
	assert.NoError(t, ValidateCronSchedule(""))
	assert.NoError(t, ValidateCronSchedule("*/5 * * * *"))
	assert.NoError(t, ValidateCronSchedule("@daily"))
	assert.Error(t, ValidateCronSchedule("not a schedule"))
	assert.Error(t, ValidateCronSchedule("* * *"))
}

func TestNextCronBackoff(t *testing.T) {
	closeTime := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	backoff, err := NextCronBackoff("0 13 * * *", closeTime)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, backoff)

	backoff, err = NextCronBackoff("", closeTime)
	require.NoError(t, err)
	assert.Zero(t, backoff)

	// A run closing exactly on the boundary still waits for the next slot.
	backoff, err = NextCronBackoff("* * * * *", time.Date(2024, 3, 1, 12, 30, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Second, backoff)

	_, err = NextCronBackoff("bogus", closeTime)
	assert.Error(t, err)
}

func TestActivityRetryPolicyFromConfig(t *testing.T) {
	policy := ActivityRetryPolicyFromConfig(map[string]interface{}{
		"InitialIntervalInSeconds": 2,
		"BackoffCoefficient":       1.5,
		"MaximumIntervalInSeconds": 60,
		"MaximumAttempts":          5,
	})
	assert.Equal(t, 2*time.Second, policy.InitialInterval)
	assert.Equal(t, 1.5, policy.BackoffCoefficient)
	assert.Equal(t, time.Minute, policy.MaximumInterval)
	assert.Equal(t, int32(5), policy.MaximumAttempts)

	// Unset or malformed entries keep the defaults.
	policy = ActivityRetryPolicyFromConfig(map[string]interface{}{
		"InitialIntervalInSeconds": "soon",
	})
	assert.Equal(t, time.Second, policy.InitialInterval)
	assert.Equal(t, 2.0, policy.BackoffCoefficient)
	assert.Equal(t, 100*time.Second, policy.MaximumInterval)
	assert.Zero(t, policy.MaximumAttempts)
}
