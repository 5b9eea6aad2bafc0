package types

import (
	"time"
)

type (
	// Payload is an opaque client-supplied blob. The server never inspects it.
	Payload []byte

	// WorkflowExecution identifies a single run of a workflow.
	WorkflowExecution struct {
		WorkflowID string `json:"workflowId"`
		RunID      string `json:"runId"`
	}

	// WorkflowType names the workflow definition registered by worker code.
	WorkflowType struct {
		Name string `json:"name"`
	}

	// ActivityType names the activity definition registered by worker code.
	ActivityType struct {
		Name string `json:"name"`
	}

	// TaskQueue names the queue a task is dispatched through.
	TaskQueue struct {
		Name string `json:"name"`
	}

	// RetryPolicy is the policy envelope for retrying a failing activity. The
	// server enforces the envelope; what to do once it is exhausted is up to
	// the workflow code.
	RetryPolicy struct {
		// InitialInterval is the backoff before the first retry.
		InitialInterval time.Duration `json:"initialInterval"`
		// BackoffCoefficient multiplies the interval after each attempt. Must
		// be at least 1.
		BackoffCoefficient float64 `json:"backoffCoefficient"`
		// MaximumInterval caps the backoff. Zero means no cap.
		MaximumInterval time.Duration `json:"maximumInterval"`
		// MaximumAttempts caps total attempts, including the first. Zero
		// means unlimited.
		MaximumAttempts int32 `json:"maximumAttempts"`
		// NonRetryableErrorTypes stops retries when the failure type matches.
		NonRetryableErrorTypes []string `json:"nonRetryableErrorTypes,omitempty"`
	}

	// Failure describes why a task or workflow failed.
	Failure struct {
		Message string `json:"message"`
		// Type is matched against RetryPolicy.NonRetryableErrorTypes.
		Type    string  `json:"type,omitempty"`
		Details Payload `json:"details,omitempty"`
	}
)

// Validate checks the retry policy bounds.
func (p *RetryPolicy) Validate() error {
	if p == nil {
		return nil
	}
	if p.InitialInterval < 0 {
		return errNegativeInitialInterval
	}
	if p.BackoffCoefficient < 1 {
		return errBackoffCoefficientTooSmall
	}
	if p.MaximumInterval < 0 {
		return errNegativeMaximumInterval
	}
	if p.MaximumInterval > 0 && p.MaximumInterval < p.InitialInterval {
		return errMaximumIntervalTooSmall
	}
	if p.MaximumAttempts < 0 {
		return errNegativeMaximumAttempts
	}
	return nil
}
