package history

import (
	"time"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/types"
)

type (
	// HistoryEvent is one immutable entry in a run's event log. EventID is
	// dense and ascending within a run. Exactly one attributes field is set,
	// matching EventType.
	HistoryEvent struct {
		EventID   int64           `json:"eventId"`
		EventTime time.Time       `json:"eventTime"`
		EventType enums.EventType `json:"eventType"`
		// TaskID is the shard-scoped id allocated when the event was
		// appended. Ascending within a shard.
		TaskID int64 `json:"taskId"`

		WorkflowExecutionStartedEventAttributes         *WorkflowExecutionStartedEventAttributes         `json:"workflowExecutionStartedEventAttributes,omitempty"`
		WorkflowExecutionCompletedEventAttributes       *WorkflowExecutionCompletedEventAttributes       `json:"workflowExecutionCompletedEventAttributes,omitempty"`
		WorkflowExecutionFailedEventAttributes          *WorkflowExecutionFailedEventAttributes          `json:"workflowExecutionFailedEventAttributes,omitempty"`
		WorkflowExecutionTimedOutEventAttributes        *WorkflowExecutionTimedOutEventAttributes        `json:"workflowExecutionTimedOutEventAttributes,omitempty"`
		WorkflowExecutionCanceledEventAttributes        *WorkflowExecutionCanceledEventAttributes        `json:"workflowExecutionCanceledEventAttributes,omitempty"`
		WorkflowExecutionTerminatedEventAttributes      *WorkflowExecutionTerminatedEventAttributes      `json:"workflowExecutionTerminatedEventAttributes,omitempty"`
		WorkflowExecutionContinuedAsNewEventAttributes  *WorkflowExecutionContinuedAsNewEventAttributes  `json:"workflowExecutionContinuedAsNewEventAttributes,omitempty"`
		WorkflowExecutionCancelRequestedEventAttributes *WorkflowExecutionCancelRequestedEventAttributes `json:"workflowExecutionCancelRequestedEventAttributes,omitempty"`
		WorkflowExecutionSignaledEventAttributes        *WorkflowExecutionSignaledEventAttributes        `json:"workflowExecutionSignaledEventAttributes,omitempty"`
		WorkflowTaskScheduledEventAttributes            *WorkflowTaskScheduledEventAttributes            `json:"workflowTaskScheduledEventAttributes,omitempty"`
		WorkflowTaskStartedEventAttributes              *WorkflowTaskStartedEventAttributes              `json:"workflowTaskStartedEventAttributes,omitempty"`
		WorkflowTaskCompletedEventAttributes            *WorkflowTaskCompletedEventAttributes            `json:"workflowTaskCompletedEventAttributes,omitempty"`
		WorkflowTaskFailedEventAttributes               *WorkflowTaskFailedEventAttributes               `json:"workflowTaskFailedEventAttributes,omitempty"`
		WorkflowTaskTimedOutEventAttributes             *WorkflowTaskTimedOutEventAttributes             `json:"workflowTaskTimedOutEventAttributes,omitempty"`
		ActivityTaskScheduledEventAttributes            *ActivityTaskScheduledEventAttributes            `json:"activityTaskScheduledEventAttributes,omitempty"`
		ActivityTaskStartedEventAttributes              *ActivityTaskStartedEventAttributes              `json:"activityTaskStartedEventAttributes,omitempty"`
		ActivityTaskCompletedEventAttributes            *ActivityTaskCompletedEventAttributes            `json:"activityTaskCompletedEventAttributes,omitempty"`
		ActivityTaskFailedEventAttributes               *ActivityTaskFailedEventAttributes               `json:"activityTaskFailedEventAttributes,omitempty"`
		ActivityTaskTimedOutEventAttributes             *ActivityTaskTimedOutEventAttributes             `json:"activityTaskTimedOutEventAttributes,omitempty"`
		TimerStartedEventAttributes                     *TimerStartedEventAttributes                     `json:"timerStartedEventAttributes,omitempty"`
		TimerFiredEventAttributes                       *TimerFiredEventAttributes                       `json:"timerFiredEventAttributes,omitempty"`
		TimerCanceledEventAttributes                    *TimerCanceledEventAttributes                    `json:"timerCanceledEventAttributes,omitempty"`
	}

	WorkflowExecutionStartedEventAttributes struct {
		WorkflowType        types.WorkflowType `json:"workflowType"`
		TaskQueue           types.TaskQueue    `json:"taskQueue"`
		Input               types.Payload      `json:"input,omitempty"`
		WorkflowRunTimeout  time.Duration      `json:"workflowRunTimeout"`
		WorkflowTaskTimeout time.Duration      `json:"workflowTaskTimeout"`
		CronSchedule        string             `json:"cronSchedule,omitempty"`
		Identity            string             `json:"identity,omitempty"`
		// Attempt counts runs in a retry/cron chain, starting at 1.
		Attempt int32 `json:"attempt"`
		// FirstExecutionRunID is the run id of the first run in the chain.
		FirstExecutionRunID string `json:"firstExecutionRunId"`
		// ContinuedExecutionRunID is the immediately previous run, if any.
		ContinuedExecutionRunID string `json:"continuedExecutionRunId,omitempty"`
		// FirstWorkflowTaskBackoff delays the first workflow task, used by
		// cron schedules.
		FirstWorkflowTaskBackoff time.Duration `json:"firstWorkflowTaskBackoff,omitempty"`
	}

	WorkflowExecutionCompletedEventAttributes struct {
		Result                       types.Payload `json:"result,omitempty"`
		WorkflowTaskCompletedEventID int64         `json:"workflowTaskCompletedEventId"`
	}

	WorkflowExecutionFailedEventAttributes struct {
		Failure                      types.Failure    `json:"failure"`
		RetryState                   enums.RetryState `json:"retryState"`
		WorkflowTaskCompletedEventID int64            `json:"workflowTaskCompletedEventId"`
	}

	WorkflowExecutionTimedOutEventAttributes struct {
		RetryState enums.RetryState `json:"retryState"`
	}

	WorkflowExecutionCanceledEventAttributes struct {
		Details                      types.Payload `json:"details,omitempty"`
		WorkflowTaskCompletedEventID int64         `json:"workflowTaskCompletedEventId"`
	}

	WorkflowExecutionTerminatedEventAttributes struct {
		Reason   string        `json:"reason,omitempty"`
		Details  types.Payload `json:"details,omitempty"`
		Identity string        `json:"identity,omitempty"`
	}

	WorkflowExecutionContinuedAsNewEventAttributes struct {
		NewExecutionRunID            string                       `json:"newExecutionRunId"`
		WorkflowType                 types.WorkflowType           `json:"workflowType"`
		TaskQueue                    types.TaskQueue              `json:"taskQueue"`
		Input                        types.Payload                `json:"input,omitempty"`
		WorkflowRunTimeout           time.Duration                `json:"workflowRunTimeout"`
		WorkflowTaskTimeout          time.Duration                `json:"workflowTaskTimeout"`
		WorkflowTaskCompletedEventID int64                        `json:"workflowTaskCompletedEventId"`
		Initiator                    enums.ContinueAsNewInitiator `json:"initiator"`
		BackoffStartInterval         time.Duration                `json:"backoffStartInterval,omitempty"`
	}

	WorkflowExecutionCancelRequestedEventAttributes struct {
		Cause    string `json:"cause,omitempty"`
		Identity string `json:"identity,omitempty"`
	}

	WorkflowExecutionSignaledEventAttributes struct {
		SignalName string        `json:"signalName"`
		Input      types.Payload `json:"input,omitempty"`
		Identity   string        `json:"identity,omitempty"`
	}

	WorkflowTaskScheduledEventAttributes struct {
		TaskQueue           types.TaskQueue `json:"taskQueue"`
		StartToCloseTimeout time.Duration   `json:"startToCloseTimeout"`
		Attempt             int32           `json:"attempt"`
	}

	WorkflowTaskStartedEventAttributes struct {
		ScheduledEventID int64  `json:"scheduledEventId"`
		Identity         string `json:"identity,omitempty"`
		RequestID        string `json:"requestId"`
	}

	WorkflowTaskCompletedEventAttributes struct {
		ScheduledEventID int64  `json:"scheduledEventId"`
		StartedEventID   int64  `json:"startedEventId"`
		Identity         string `json:"identity,omitempty"`
	}

	WorkflowTaskFailedEventAttributes struct {
		ScheduledEventID int64         `json:"scheduledEventId"`
		StartedEventID   int64         `json:"startedEventId"`
		Cause            string        `json:"cause,omitempty"`
		Failure          types.Failure `json:"failure"`
	}

	WorkflowTaskTimedOutEventAttributes struct {
		ScheduledEventID int64             `json:"scheduledEventId"`
		StartedEventID   int64             `json:"startedEventId"`
		TimeoutType      enums.TimeoutType `json:"timeoutType"`
	}

	ActivityTaskScheduledEventAttributes struct {
		ActivityID             string             `json:"activityId"`
		ActivityType           types.ActivityType `json:"activityType"`
		TaskQueue              types.TaskQueue    `json:"taskQueue"`
		Input                  types.Payload      `json:"input,omitempty"`
		ScheduleToCloseTimeout time.Duration      `json:"scheduleToCloseTimeout,omitempty"`
		ScheduleToStartTimeout time.Duration      `json:"scheduleToStartTimeout,omitempty"`
		StartToCloseTimeout    time.Duration      `json:"startToCloseTimeout,omitempty"`
		HeartbeatTimeout       time.Duration      `json:"heartbeatTimeout,omitempty"`
		RetryPolicy            *types.RetryPolicy `json:"retryPolicy,omitempty"`
		// WorkflowTaskCompletedEventID is the workflow task whose commands
		// scheduled this activity.
		WorkflowTaskCompletedEventID int64 `json:"workflowTaskCompletedEventId"`
	}

	ActivityTaskStartedEventAttributes struct {
		ScheduledEventID int64  `json:"scheduledEventId"`
		Identity         string `json:"identity,omitempty"`
		RequestID        string `json:"requestId"`
		Attempt          int32  `json:"attempt"`
	}

	ActivityTaskCompletedEventAttributes struct {
		ScheduledEventID int64         `json:"scheduledEventId"`
		StartedEventID   int64         `json:"startedEventId"`
		Result           types.Payload `json:"result,omitempty"`
		Identity         string        `json:"identity,omitempty"`
	}

	ActivityTaskFailedEventAttributes struct {
		ScheduledEventID int64            `json:"scheduledEventId"`
		StartedEventID   int64            `json:"startedEventId"`
		Failure          types.Failure    `json:"failure"`
		RetryState       enums.RetryState `json:"retryState"`
		Identity         string           `json:"identity,omitempty"`
	}

	ActivityTaskTimedOutEventAttributes struct {
		ScheduledEventID int64             `json:"scheduledEventId"`
		StartedEventID   int64             `json:"startedEventId"`
		TimeoutType      enums.TimeoutType `json:"timeoutType"`
		RetryState       enums.RetryState  `json:"retryState"`
	}

	TimerStartedEventAttributes struct {
		TimerID            string        `json:"timerId"`
		StartToFireTimeout time.Duration `json:"startToFireTimeout"`
		// WorkflowTaskCompletedEventID is the workflow task whose commands
		// started this timer.
		WorkflowTaskCompletedEventID int64 `json:"workflowTaskCompletedEventId"`
	}

	TimerFiredEventAttributes struct {
		TimerID        string `json:"timerId"`
		StartedEventID int64  `json:"startedEventId"`
	}

	TimerCanceledEventAttributes struct {
		TimerID                      string `json:"timerId"`
		StartedEventID               int64  `json:"startedEventId"`
		WorkflowTaskCompletedEventID int64  `json:"workflowTaskCompletedEventId"`
	}
)
