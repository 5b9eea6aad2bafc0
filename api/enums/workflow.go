package enums

type (
	// WorkflowExecutionStatus is the current status of a workflow execution.
	WorkflowExecutionStatus int32

	// TimeoutType names which timeout fired.
	TimeoutType int32

	// RetryState explains why no further retries of an activity or workflow
	// will happen.
	RetryState int32

	// ContinueAsNewInitiator records what triggered a continue-as-new run.
	ContinueAsNewInitiator int32
)

const (
	WorkflowExecutionStatusUnspecified WorkflowExecutionStatus = iota
	WorkflowExecutionStatusRunning
	WorkflowExecutionStatusCompleted
	WorkflowExecutionStatusFailed
	WorkflowExecutionStatusCanceled
	WorkflowExecutionStatusTerminated
	WorkflowExecutionStatusContinuedAsNew
	WorkflowExecutionStatusTimedOut
)

const (
	TimeoutTypeUnspecified TimeoutType = iota
	TimeoutTypeStartToClose
	TimeoutTypeScheduleToStart
	TimeoutTypeScheduleToClose
	TimeoutTypeHeartbeat
)

const (
	RetryStateUnspecified RetryState = iota
	RetryStateInProgress
	RetryStateNonRetryableFailure
	RetryStateTimeout
	RetryStateMaximumAttemptsReached
	RetryStateRetryPolicyNotSet
	RetryStateCancelRequested
)

const (
	ContinueAsNewInitiatorUnspecified ContinueAsNewInitiator = iota
	ContinueAsNewInitiatorWorkflow
	ContinueAsNewInitiatorRetry
	ContinueAsNewInitiatorCronSchedule
)

var workflowExecutionStatusNames = map[WorkflowExecutionStatus]string{
	WorkflowExecutionStatusUnspecified:    "Unspecified",
	WorkflowExecutionStatusRunning:        "Running",
	WorkflowExecutionStatusCompleted:      "Completed",
	WorkflowExecutionStatusFailed:         "Failed",
	WorkflowExecutionStatusCanceled:       "Canceled",
	WorkflowExecutionStatusTerminated:     "Terminated",
	WorkflowExecutionStatusContinuedAsNew: "ContinuedAsNew",
	WorkflowExecutionStatusTimedOut:       "TimedOut",
}

func (s WorkflowExecutionStatus) String() string {
	if name, ok := workflowExecutionStatusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal returns true once the execution can never transition again.
func (s WorkflowExecutionStatus) IsTerminal() bool {
	return s != WorkflowExecutionStatusUnspecified && s != WorkflowExecutionStatusRunning
}

var timeoutTypeNames = map[TimeoutType]string{
	TimeoutTypeUnspecified:     "Unspecified",
	TimeoutTypeStartToClose:    "StartToClose",
	TimeoutTypeScheduleToStart: "ScheduleToStart",
	TimeoutTypeScheduleToClose: "ScheduleToClose",
	TimeoutTypeHeartbeat:       "Heartbeat",
}

func (t TimeoutType) String() string {
	if name, ok := timeoutTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

var retryStateNames = map[RetryState]string{
	RetryStateUnspecified:            "Unspecified",
	RetryStateInProgress:             "InProgress",
	RetryStateNonRetryableFailure:    "NonRetryableFailure",
	RetryStateTimeout:                "Timeout",
	RetryStateMaximumAttemptsReached: "MaximumAttemptsReached",
	RetryStateRetryPolicyNotSet:      "RetryPolicyNotSet",
	RetryStateCancelRequested:        "CancelRequested",
}

func (r RetryState) String() string {
	if name, ok := retryStateNames[r]; ok {
		return name
	}
	return "Unknown"
}
