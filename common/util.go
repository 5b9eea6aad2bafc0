package common

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgryski/go-farm"

	"github.com/strandhq/strand/common/backoff"
	"github.com/strandhq/strand/common/serviceerror"
)

const (
	persistenceClientRetryInitialInterval = 50 * time.Millisecond
	persistenceClientRetryMaxInterval     = 3 * time.Second
	persistenceClientRetryMaxAttempts     = 5

	frontendClientRetryInitialInterval = 200 * time.Millisecond
	frontendClientRetryMaxInterval     = 5 * time.Second
	frontendClientRetryMaxAttempts     = 3
)

// AwaitWaitGroup waits on the given wait group with a timeout. It returns
// true if the wait group was drained before the timeout fired.
func AwaitWaitGroup(wg *sync.WaitGroup, timeout time.Duration) bool {
	doneC := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneC)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-doneC:
		return true
	case <-timer.C:
		return false
	}
}

// CreatePersistenceClientRetryPolicy creates the retry policy for transient
// persistence errors.
func CreatePersistenceClientRetryPolicy() backoff.RetryPolicy {
	return backoff.NewExponentialRetryPolicy(persistenceClientRetryInitialInterval).
		WithMaximumInterval(persistenceClientRetryMaxInterval).
		WithMaximumAttempts(persistenceClientRetryMaxAttempts)
}

// CreateFrontendClientRetryPolicy creates the retry policy used by clients
// calling the frontend.
func CreateFrontendClientRetryPolicy() backoff.RetryPolicy {
	return backoff.NewExponentialRetryPolicy(frontendClientRetryInitialInterval).
		WithMaximumInterval(frontendClientRetryMaxInterval).
		WithMaximumAttempts(frontendClientRetryMaxAttempts)
}

// WorkflowIDToHistoryShard maps a workflow execution to its owning history
// shard. Shard ids are 1-based.
func WorkflowIDToHistoryShard(namespaceID string, workflowID string, numberOfShards int32) int32 {
	idBytes := []byte(namespaceID + "_" + workflowID)
	return int32(farm.Fingerprint32(idBytes)%uint32(numberOfShards)) + 1
}

// IsServiceTransientError checks if the error is retryable from the caller's
// point of view.
func IsServiceTransientError(err error) bool {
	var unavailable *serviceerror.Unavailable
	var resourceExhausted *serviceerror.ResourceExhausted
	var shardOwnershipLost *serviceerror.ShardOwnershipLost
	switch {
	case errors.As(err, &unavailable),
		errors.As(err, &resourceExhausted),
		errors.As(err, &shardOwnershipLost):
		return true
	default:
		return false
	}
}

// IsContextDeadlineExceededErr checks if the error is a context deadline error.
func IsContextDeadlineExceededErr(err error) bool {
	var deadlineExceeded *serviceerror.DeadlineExceeded
	return errors.Is(err, context.DeadlineExceeded) || errors.As(err, &deadlineExceeded)
}

// IsContextCanceledErr checks if the error is a context cancellation error.
func IsContextCanceledErr(err error) bool {
	var canceled *serviceerror.Canceled
	return errors.Is(err, context.Canceled) || errors.As(err, &canceled)
}

// MinInt64 returns the smaller of two int64 values.
func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// MaxInt64 returns the larger of two int64 values.
func MaxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
