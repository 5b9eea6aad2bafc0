package command

import (
	"time"

	"github.com/strandhq/strand/api/types"
)

// CommandType tags the variant of a worker command.
type CommandType int32

const (
	CommandTypeUnspecified CommandType = iota
	CommandTypeScheduleActivityTask
	CommandTypeStartTimer
	CommandTypeCancelTimer
	CommandTypeCompleteWorkflowExecution
	CommandTypeFailWorkflowExecution
	CommandTypeCancelWorkflowExecution
	CommandTypeContinueAsNewWorkflowExecution
)

var commandTypeNames = map[CommandType]string{
	CommandTypeUnspecified:                    "Unspecified",
	CommandTypeScheduleActivityTask:           "ScheduleActivityTask",
	CommandTypeStartTimer:                     "StartTimer",
	CommandTypeCancelTimer:                    "CancelTimer",
	CommandTypeCompleteWorkflowExecution:      "CompleteWorkflowExecution",
	CommandTypeFailWorkflowExecution:          "FailWorkflowExecution",
	CommandTypeCancelWorkflowExecution:        "CancelWorkflowExecution",
	CommandTypeContinueAsNewWorkflowExecution: "ContinueAsNewWorkflowExecution",
}

func (c CommandType) String() string {
	if name, ok := commandTypeNames[c]; ok {
		return name
	}
	return "Unknown"
}

type (
	// Command is one instruction returned by a worker when completing a
	// workflow task. Exactly one attributes field is set, matching
	// CommandType.
	Command struct {
		CommandType CommandType `json:"commandType"`

		ScheduleActivityTaskCommandAttributes           *ScheduleActivityTaskCommandAttributes           `json:"scheduleActivityTaskCommandAttributes,omitempty"`
		StartTimerCommandAttributes                     *StartTimerCommandAttributes                     `json:"startTimerCommandAttributes,omitempty"`
		CancelTimerCommandAttributes                    *CancelTimerCommandAttributes                    `json:"cancelTimerCommandAttributes,omitempty"`
		CompleteWorkflowExecutionCommandAttributes      *CompleteWorkflowExecutionCommandAttributes      `json:"completeWorkflowExecutionCommandAttributes,omitempty"`
		FailWorkflowExecutionCommandAttributes          *FailWorkflowExecutionCommandAttributes          `json:"failWorkflowExecutionCommandAttributes,omitempty"`
		CancelWorkflowExecutionCommandAttributes        *CancelWorkflowExecutionCommandAttributes        `json:"cancelWorkflowExecutionCommandAttributes,omitempty"`
		ContinueAsNewWorkflowExecutionCommandAttributes *ContinueAsNewWorkflowExecutionCommandAttributes `json:"continueAsNewWorkflowExecutionCommandAttributes,omitempty"`
	}

	ScheduleActivityTaskCommandAttributes struct {
		ActivityID             string             `json:"activityId"`
		ActivityType           types.ActivityType `json:"activityType"`
		TaskQueue              types.TaskQueue    `json:"taskQueue"`
		Input                  types.Payload      `json:"input,omitempty"`
		ScheduleToCloseTimeout time.Duration      `json:"scheduleToCloseTimeout,omitempty"`
		ScheduleToStartTimeout time.Duration      `json:"scheduleToStartTimeout,omitempty"`
		StartToCloseTimeout    time.Duration      `json:"startToCloseTimeout,omitempty"`
		HeartbeatTimeout       time.Duration      `json:"heartbeatTimeout,omitempty"`
		RetryPolicy            *types.RetryPolicy `json:"retryPolicy,omitempty"`
	}

	StartTimerCommandAttributes struct {
		TimerID            string        `json:"timerId"`
		StartToFireTimeout time.Duration `json:"startToFireTimeout"`
	}

	CancelTimerCommandAttributes struct {
		TimerID string `json:"timerId"`
	}

	CompleteWorkflowExecutionCommandAttributes struct {
		Result types.Payload `json:"result,omitempty"`
	}

	FailWorkflowExecutionCommandAttributes struct {
		Failure types.Failure `json:"failure"`
	}

	CancelWorkflowExecutionCommandAttributes struct {
		Details types.Payload `json:"details,omitempty"`
	}

	ContinueAsNewWorkflowExecutionCommandAttributes struct {
		WorkflowType        types.WorkflowType `json:"workflowType"`
		TaskQueue           types.TaskQueue    `json:"taskQueue"`
		Input               types.Payload      `json:"input,omitempty"`
		WorkflowRunTimeout  time.Duration      `json:"workflowRunTimeout,omitempty"`
		WorkflowTaskTimeout time.Duration      `json:"workflowTaskTimeout,omitempty"`
	}
)
