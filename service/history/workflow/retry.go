package workflow

import (
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/common/serviceerror"
)

// NextRetryDelay computes the backoff before retry attempt+1 under the given
// policy. The second return is RetryStateInProgress when a retry should
// happen, or the terminal retry state when the policy is exhausted.
func NextRetryDelay(
	policy *types.RetryPolicy,
	attempt int32,
	failure *types.Failure,
) (time.Duration, enums.RetryState) {
	if policy == nil {
		return 0, enums.RetryStateRetryPolicyNotSet
	}
	if failure != nil {
		for _, errorType := range policy.NonRetryableErrorTypes {
			if failure.Type == errorType {
				return 0, enums.RetryStateNonRetryableFailure
			}
		}
	}
	if policy.MaximumAttempts > 0 && attempt >= policy.MaximumAttempts {
		return 0, enums.RetryStateMaximumAttemptsReached
	}

	backoffCoefficient := policy.BackoffCoefficient
	if backoffCoefficient < 1 {
		backoffCoefficient = 1
	}
	delay := time.Duration(float64(policy.InitialInterval) * math.Pow(backoffCoefficient, float64(attempt-1)))
	if delay <= 0 {
		// Overflow or zero initial interval; fall back to the cap.
		delay = policy.MaximumInterval
	}
	if policy.MaximumInterval > 0 && delay > policy.MaximumInterval {
		delay = policy.MaximumInterval
	}
	if delay <= 0 {
		return 0, enums.RetryStateRetryPolicyNotSet
	}
	return delay, enums.RetryStateInProgress
}

// ValidateCronSchedule rejects schedules the cron parser cannot understand.
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return serviceerror.NewInvalidArgumentf("invalid cron schedule %q: %v", schedule, err)
	}
	return nil
}

// NextCronBackoff returns the delay from closeTime until the schedule's next
// run. A zero duration means no cron schedule is set.
func NextCronBackoff(schedule string, closeTime time.Time) (time.Duration, error) {
	if schedule == "" {
		return 0, nil
	}
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return 0, serviceerror.NewInvalidArgumentf("invalid cron schedule %q: %v", schedule, err)
	}
	next := parsed.Next(closeTime)
	if next.IsZero() {
		return 0, nil
	}
	backoff := next.Sub(closeTime)
	if backoff < time.Second {
		backoff = time.Second
	}
	return backoff, nil
}

// ActivityRetryPolicyFromConfig materializes the dynamic-config default
// activity retry policy.
func ActivityRetryPolicyFromConfig(values map[string]interface{}) *types.RetryPolicy {
	policy := &types.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    100 * time.Second,
		MaximumAttempts:    0,
	}
	if v, ok := asInt(values["InitialIntervalInSeconds"]); ok && v > 0 {
		policy.InitialInterval = time.Duration(v) * time.Second
	}
	if v, ok := values["BackoffCoefficient"].(float64); ok && v >= 1 {
		policy.BackoffCoefficient = v
	}
	if v, ok := asInt(values["MaximumIntervalInSeconds"]); ok && v > 0 {
		policy.MaximumInterval = time.Duration(v) * time.Second
	}
	if v, ok := asInt(values["MaximumAttempts"]); ok && v >= 0 {
		policy.MaximumAttempts = int32(v)
	}
	return policy
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
