package backoff

import (
	"context"
	"time"

	"github.com/strandhq/strand/common/clock"
)

type (
	// Operation to retry.
	Operation func() error

	// OperationCtx is an Operation that accepts a context.
	OperationCtx func(context.Context) error

	// IsRetryable handler can be used to exclude certain errors during retry.
	IsRetryable func(error) bool
)

// ThrottleRetry retries the given operation using the given policy, pausing
// between attempts. Non-retryable errors stop the loop immediately.
func ThrottleRetry(operation Operation, policy RetryPolicy, isRetryable IsRetryable) error {
	ctxOp := func(context.Context) error { return operation() }
	return ThrottleRetryContext(context.Background(), ctxOp, policy, isRetryable)
}

// ThrottleRetryContext is ThrottleRetry with a context. The context deadline
// bounds the total retry time; ctx.Err() is returned if it expires first.
func ThrottleRetryContext(
	ctx context.Context,
	operation OperationCtx,
	policy RetryPolicy,
	isRetryable IsRetryable,
) error {
	var err error
	var next time.Duration

	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	r := NewRetrier(policy, clock.NewRealTimeSource())
	for ctx.Err() == nil {
		if err = operation(ctx); err == nil {
			return nil
		}

		if next = r.NextBackOff(); next == done {
			return err
		}

		if !isRetryable(err) {
			return err
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
