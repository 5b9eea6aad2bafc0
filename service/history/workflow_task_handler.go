package history

import (
	"context"

	"github.com/google/uuid"

	"github.com/strandhq/strand/api/command"
	"github.com/strandhq/strand/api/enums"
	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/common/tasktoken"
	"github.com/strandhq/strand/service/history/workflow"
)

// RecordWorkflowTaskStartedResponse carries what the frontend needs to hand a
// workflow task to its poller.
type RecordWorkflowTaskStartedResponse struct {
	WorkflowType types.WorkflowType
	// PreviousStartedEventID is where the worker's view of history ended
	// after its last completed workflow task.
	PreviousStartedEventID int64
	ScheduledEventID       int64
	StartedEventID         int64
	Attempt                int32
	NextEventID            int64
}

// RecordWorkflowTaskStarted transitions the pending workflow task to started.
// A NotFound means the matching task was stale and should be acked away.
func (e *Engine) RecordWorkflowTaskStarted(
	ctx context.Context,
	task *persistence.TaskInfo,
	requestID string,
	identity string,
) (*RecordWorkflowTaskStartedResponse, error) {
	var response *RecordWorkflowTaskStartedResponse
	err := e.updateWorkflow(ctx, task.NamespaceID, task.WorkflowID, task.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return serviceerror.NewNotFound("workflow execution already completed")
		}
		wt := ms.GetPendingWorkflowTask()
		if wt == nil || wt.ScheduledEventID != task.ScheduledEventID {
			return serviceerror.NewNotFound("workflow task not found")
		}
		if wt.StartedEventID != common.EmptyEventID {
			return serviceerror.NewNotFound("workflow task already started")
		}

		event := builder.AddWorkflowTaskStartedEvent(wt.ScheduledEventID, identity, requestID)
		response = &RecordWorkflowTaskStartedResponse{
			WorkflowType:           ms.GetExecutionInfo().WorkflowType,
			PreviousStartedEventID: ms.GetLastWorkflowTaskStartedEventID(),
			ScheduledEventID:       wt.ScheduledEventID,
			StartedEventID:         event.EventID,
			Attempt:                wt.Attempt,
			NextEventID:            event.EventID + 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// RespondWorkflowTaskCompleted applies the worker's commands as one event
// batch behind the workflow task completion.
func (e *Engine) RespondWorkflowTaskCompleted(
	ctx context.Context,
	token *tasktoken.Token,
	request *workflowservice.RespondWorkflowTaskCompletedRequest,
) error {
	return e.updateWorkflow(ctx, token.NamespaceID, token.WorkflowID, token.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		wt, err := e.validateWorkflowTaskToken(ms, token)
		if err != nil {
			return err
		}

		// Events appended after the task started are unseen by the worker and
		// need a follow-up task.
		hasUnhandledEvents := ms.GetLastEventVersion() > wt.StartedEventID

		completed := builder.AddWorkflowTaskCompletedEvent(wt.ScheduledEventID, wt.StartedEventID, request.Identity)
		closed, err := e.applyCommands(ms, builder, completed.EventID, request.Commands)
		if err != nil {
			return err
		}
		if !closed && hasUnhandledEvents {
			info := ms.GetExecutionInfo()
			builder.AddWorkflowTaskScheduledEvent(info.TaskQueue, info.WorkflowTaskTimeout, 1)
		}
		return nil
	})
}

// RespondWorkflowTaskFailed records the failure and schedules a retry of the
// workflow task.
func (e *Engine) RespondWorkflowTaskFailed(
	ctx context.Context,
	token *tasktoken.Token,
	request *workflowservice.RespondWorkflowTaskFailedRequest,
) error {
	return e.updateWorkflow(ctx, token.NamespaceID, token.WorkflowID, token.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		wt, err := e.validateWorkflowTaskToken(ms, token)
		if err != nil {
			return err
		}
		builder.AddWorkflowTaskFailedEvent(wt.ScheduledEventID, wt.StartedEventID, request.Cause, request.Failure)
		info := ms.GetExecutionInfo()
		builder.AddWorkflowTaskScheduledEvent(info.TaskQueue, info.WorkflowTaskTimeout, wt.Attempt+1)
		return nil
	})
}

func (e *Engine) validateWorkflowTaskToken(
	ms *workflow.MutableState,
	token *tasktoken.Token,
) (*workflow.WorkflowTaskInfo, error) {
	wt := ms.GetPendingWorkflowTask()
	if !ms.IsWorkflowRunning() ||
		wt == nil ||
		wt.ScheduledEventID != token.ScheduledEventID ||
		wt.StartedEventID != token.StartedEventID ||
		wt.Attempt != token.Attempt {
		return nil, serviceerror.NewNotFound("workflow task not found or already completed")
	}
	return wt, nil
}

// applyCommands translates worker commands into history events. Returns
// whether a command closed the workflow.
func (e *Engine) applyCommands(
	ms *workflow.MutableState,
	builder *workflow.HistoryBuilder,
	completedEventID int64,
	commands []*command.Command,
) (bool, error) {
	closed := false
	// Ids minted earlier in this batch; the state machine only sees them
	// after the append.
	newActivityIDs := make(map[string]struct{})
	newTimerIDs := make(map[string]struct{})
	canceledTimerIDs := make(map[string]struct{})

	for _, cmd := range commands {
		if closed {
			return false, serviceerror.NewInvalidArgumentf(
				"command %v follows a workflow-closing command", cmd.CommandType)
		}
		switch cmd.CommandType {
		case command.CommandTypeScheduleActivityTask:
			attrs := cmd.ScheduleActivityTaskCommandAttributes
			if err := e.validateScheduleActivity(ms, attrs, newActivityIDs); err != nil {
				return false, err
			}
			retryPolicy := attrs.RetryPolicy
			if retryPolicy == nil {
				retryPolicy = workflow.ActivityRetryPolicyFromConfig(e.config.DefaultActivityRetryPolicy())
			}
			taskQueue := attrs.TaskQueue
			if taskQueue.Name == "" {
				taskQueue = ms.GetExecutionInfo().TaskQueue
			}
			builder.AddActivityTaskScheduledEvent(&apihistory.ActivityTaskScheduledEventAttributes{
				ActivityID:                   attrs.ActivityID,
				ActivityType:                 attrs.ActivityType,
				TaskQueue:                    taskQueue,
				Input:                        attrs.Input,
				ScheduleToCloseTimeout:       attrs.ScheduleToCloseTimeout,
				ScheduleToStartTimeout:       attrs.ScheduleToStartTimeout,
				StartToCloseTimeout:          attrs.StartToCloseTimeout,
				HeartbeatTimeout:             attrs.HeartbeatTimeout,
				RetryPolicy:                  retryPolicy,
				WorkflowTaskCompletedEventID: completedEventID,
			})
			newActivityIDs[attrs.ActivityID] = struct{}{}

		case command.CommandTypeStartTimer:
			attrs := cmd.StartTimerCommandAttributes
			if attrs == nil || attrs.TimerID == "" {
				return false, serviceerror.NewInvalidArgument("StartTimer requires a timer id")
			}
			if attrs.StartToFireTimeout <= 0 {
				return false, serviceerror.NewInvalidArgumentf(
					"timer %q requires a positive start-to-fire timeout", attrs.TimerID)
			}
			_, pending := ms.GetTimer(attrs.TimerID)
			if _, minted := newTimerIDs[attrs.TimerID]; pending || minted {
				return false, serviceerror.NewInvalidArgumentf("timer id %q is already in use", attrs.TimerID)
			}
			builder.AddTimerStartedEvent(attrs.TimerID, attrs.StartToFireTimeout, completedEventID)
			newTimerIDs[attrs.TimerID] = struct{}{}

		case command.CommandTypeCancelTimer:
			attrs := cmd.CancelTimerCommandAttributes
			if attrs == nil || attrs.TimerID == "" {
				return false, serviceerror.NewInvalidArgument("CancelTimer requires a timer id")
			}
			ti, ok := ms.GetTimer(attrs.TimerID)
			if _, canceled := canceledTimerIDs[attrs.TimerID]; !ok || canceled {
				return false, serviceerror.NewInvalidArgumentf("unknown timer id %q", attrs.TimerID)
			}
			builder.AddTimerCanceledEvent(attrs.TimerID, ti.StartedEventID, completedEventID)
			canceledTimerIDs[attrs.TimerID] = struct{}{}

		case command.CommandTypeCompleteWorkflowExecution:
			attrs := cmd.CompleteWorkflowExecutionCommandAttributes
			if attrs == nil {
				return false, serviceerror.NewInvalidArgument("CompleteWorkflowExecution attributes missing")
			}
			builder.AddWorkflowExecutionCompletedEvent(attrs.Result, completedEventID)
			closed = true

		case command.CommandTypeFailWorkflowExecution:
			attrs := cmd.FailWorkflowExecutionCommandAttributes
			if attrs == nil {
				return false, serviceerror.NewInvalidArgument("FailWorkflowExecution attributes missing")
			}
			builder.AddWorkflowExecutionFailedEvent(attrs.Failure, enums.RetryStateRetryPolicyNotSet, completedEventID)
			closed = true

		case command.CommandTypeCancelWorkflowExecution:
			attrs := cmd.CancelWorkflowExecutionCommandAttributes
			if attrs == nil {
				return false, serviceerror.NewInvalidArgument("CancelWorkflowExecution attributes missing")
			}
			builder.AddWorkflowExecutionCanceledEvent(attrs.Details, completedEventID)
			closed = true

		case command.CommandTypeContinueAsNewWorkflowExecution:
			attrs := cmd.ContinueAsNewWorkflowExecutionCommandAttributes
			if attrs == nil {
				return false, serviceerror.NewInvalidArgument("ContinueAsNewWorkflowExecution attributes missing")
			}
			info := ms.GetExecutionInfo()
			workflowType := attrs.WorkflowType
			if workflowType.Name == "" {
				workflowType = info.WorkflowType
			}
			taskQueue := attrs.TaskQueue
			if taskQueue.Name == "" {
				taskQueue = info.TaskQueue
			}
			runTimeout := attrs.WorkflowRunTimeout
			if runTimeout <= 0 {
				runTimeout = info.WorkflowRunTimeout
			}
			taskTimeout := attrs.WorkflowTaskTimeout
			if taskTimeout <= 0 {
				taskTimeout = info.WorkflowTaskTimeout
			}
			builder.AddWorkflowExecutionContinuedAsNewEvent(&apihistory.WorkflowExecutionContinuedAsNewEventAttributes{
				NewExecutionRunID:            uuid.NewString(),
				WorkflowType:                 workflowType,
				TaskQueue:                    taskQueue,
				Input:                        attrs.Input,
				WorkflowRunTimeout:           runTimeout,
				WorkflowTaskTimeout:          taskTimeout,
				WorkflowTaskCompletedEventID: completedEventID,
				Initiator:                    enums.ContinueAsNewInitiatorWorkflow,
			})
			closed = true

		default:
			return false, serviceerror.NewInvalidArgumentf("unknown command type %v", cmd.CommandType)
		}
	}
	return closed, nil
}

func (e *Engine) validateScheduleActivity(
	ms *workflow.MutableState,
	attrs *command.ScheduleActivityTaskCommandAttributes,
	newActivityIDs map[string]struct{},
) error {
	if attrs == nil {
		return serviceerror.NewInvalidArgument("ScheduleActivityTask attributes missing")
	}
	if attrs.ActivityID == "" {
		return serviceerror.NewInvalidArgument("ScheduleActivityTask requires an activity id")
	}
	if attrs.ActivityType.Name == "" {
		return serviceerror.NewInvalidArgument("ScheduleActivityTask requires an activity type")
	}
	_, pending := ms.GetActivityByID(attrs.ActivityID)
	if _, minted := newActivityIDs[attrs.ActivityID]; pending || minted {
		return serviceerror.NewInvalidArgumentf("activity id %q is already in use", attrs.ActivityID)
	}
	if attrs.ScheduleToCloseTimeout <= 0 && attrs.StartToCloseTimeout <= 0 {
		return serviceerror.NewInvalidArgumentf(
			"activity %q requires a schedule-to-close or start-to-close timeout", attrs.ActivityID)
	}
	if attrs.RetryPolicy != nil {
		if err := attrs.RetryPolicy.Validate(); err != nil {
			return serviceerror.NewInvalidArgumentf("invalid retry policy for activity %q: %v", attrs.ActivityID, err)
		}
	}
	return nil
}

// fireWorkflowTaskTimeout times out a started workflow task and schedules the
// next attempt.
func (e *Engine) fireWorkflowTaskTimeout(ctx context.Context, entry *timerEntry) error {
	return e.updateWorkflow(ctx, entry.namespaceID, entry.workflowID, entry.runID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return nil
		}
		wt := ms.GetPendingWorkflowTask()
		if wt == nil ||
			wt.ScheduledEventID != entry.task.EventID ||
			wt.Attempt != entry.task.Attempt ||
			wt.StartedEventID == common.EmptyEventID {
			return nil
		}
		if wt.StartToCloseTimeout <= 0 ||
			e.timeSource.Now().Before(wt.StartedTime.Add(wt.StartToCloseTimeout)) {
			return nil
		}
		builder.AddWorkflowTaskTimedOutEvent(wt.ScheduledEventID, wt.StartedEventID, enums.TimeoutTypeStartToClose)
		info := ms.GetExecutionInfo()
		builder.AddWorkflowTaskScheduledEvent(info.TaskQueue, info.WorkflowTaskTimeout, wt.Attempt+1)
		return nil
	})
}

// ReportTaskDispatchFailed is the dead-letter hook: matching calls it when a
// task burned through its delivery attempts. The failure lands in the owning
// run's history so the workflow is not silently stuck.
func (e *Engine) ReportTaskDispatchFailed(ctx context.Context, task *persistence.TaskInfo) error {
	return e.updateWorkflow(ctx, task.NamespaceID, task.WorkflowID, task.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return nil
		}
		failure := types.Failure{
			Message: "task exhausted its delivery attempts",
			Type:    "DispatchFailure",
		}
		switch task.TaskType {
		case enums.TaskTypeWorkflow:
			wt := ms.GetPendingWorkflowTask()
			if wt == nil ||
				wt.ScheduledEventID != task.ScheduledEventID ||
				wt.StartedEventID != common.EmptyEventID {
				return nil
			}
			// No reschedule: delivery itself is broken and the task sits in
			// the DLQ for an operator.
			builder.AddWorkflowTaskFailedEvent(wt.ScheduledEventID, common.EmptyEventID, "task dispatch failed", failure)

		case enums.TaskTypeActivity:
			ai, ok := ms.GetActivityByScheduledEventID(task.ScheduledEventID)
			if !ok || ai.StartedEventID != common.EmptyEventID {
				return nil
			}
			builder.AddActivityTaskFailedEvent(
				ai.ScheduledEventID,
				common.EmptyEventID,
				failure,
				enums.RetryStateNonRetryableFailure,
				"",
			)
			e.scheduleWorkflowTaskIfNeeded(ms, builder)
		}
		return nil
	})
}
