package history

import (
	"context"
	"time"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/common/tasktoken"
	"github.com/strandhq/strand/service/history/workflow"
	"github.com/strandhq/strand/service/matching"
)

// RecordActivityTaskStartedResponse carries what the frontend needs to hand
// an activity task to its poller.
type RecordActivityTaskStartedResponse struct {
	WorkflowType        types.WorkflowType
	ActivityID          string
	ActivityType        types.ActivityType
	Input               types.Payload
	ScheduledEventID    int64
	StartedEventID      int64
	Attempt             int32
	ScheduledTime       time.Time
	StartToCloseTimeout time.Duration
	HeartbeatTimeout    time.Duration
}

// RecordActivityTaskStarted transitions a pending activity to started. A
// redelivered or retried task starts the next attempt; a NotFound means the
// matching task was stale and should be acked away.
func (e *Engine) RecordActivityTaskStarted(
	ctx context.Context,
	task *persistence.TaskInfo,
	requestID string,
	identity string,
) (*RecordActivityTaskStartedResponse, error) {
	var response *RecordActivityTaskStartedResponse
	err := e.updateWorkflow(ctx, task.NamespaceID, task.WorkflowID, task.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return serviceerror.NewNotFound("workflow execution already completed")
		}
		ai, ok := ms.GetActivityByScheduledEventID(task.ScheduledEventID)
		if !ok {
			return serviceerror.NewNotFound("activity task not found")
		}

		attempt := ai.Attempt
		if ai.StartedEventID != common.EmptyEventID {
			// A previous attempt was started and never closed; this dispatch
			// begins the next one.
			attempt++
		}
		event := builder.AddActivityTaskStartedEvent(ai.ScheduledEventID, attempt, identity, requestID)
		response = &RecordActivityTaskStartedResponse{
			WorkflowType:        ms.GetExecutionInfo().WorkflowType,
			ActivityID:          ai.ActivityID,
			ActivityType:        ai.ActivityType,
			Input:               ai.Input,
			ScheduledEventID:    ai.ScheduledEventID,
			StartedEventID:      event.EventID,
			Attempt:             attempt,
			ScheduledTime:       ai.ScheduledTime,
			StartToCloseTimeout: ai.StartToCloseTimeout,
			HeartbeatTimeout:    ai.HeartbeatTimeout,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// RespondActivityTaskCompleted records the activity result and wakes the
// workflow.
func (e *Engine) RespondActivityTaskCompleted(
	ctx context.Context,
	token *tasktoken.Token,
	request *workflowservice.RespondActivityTaskCompletedRequest,
) error {
	return e.updateWorkflow(ctx, token.NamespaceID, token.WorkflowID, token.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		ai, err := e.validateActivityToken(ms, token)
		if err != nil {
			return err
		}
		builder.AddActivityTaskCompletedEvent(ai.ScheduledEventID, ai.StartedEventID, request.Result, request.Identity)
		e.scheduleWorkflowTaskIfNeeded(ms, builder)
		return nil
	})
}

// RespondActivityTaskFailed either arms the next retry attempt or, once the
// policy is exhausted, records the failure and wakes the workflow.
func (e *Engine) RespondActivityTaskFailed(
	ctx context.Context,
	token *tasktoken.Token,
	request *workflowservice.RespondActivityTaskFailedRequest,
) error {
	var retryIn time.Duration
	retry := false
	var retryAttempt int32

	err := e.updateWorkflow(ctx, token.NamespaceID, token.WorkflowID, token.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		retry = false
		ai, err := e.validateActivityToken(ms, token)
		if err != nil {
			return err
		}

		delay, state := workflow.NextRetryDelay(ai.RetryPolicy, ai.Attempt, &request.Failure)
		if state == enums.RetryStateInProgress {
			// The failed attempt stays out of history; a retry timer drives
			// the next dispatch.
			ms.RecordActivityFailure(ai.ScheduledEventID, request.Failure)
			retry = true
			retryIn = delay
			retryAttempt = ai.Attempt
			return nil
		}

		if state == enums.RetryStateMaximumAttemptsReached {
			metrics.ActivityRetriesExceededCounter.With(e.metricsHandler).Record(1)
		}
		builder.AddActivityTaskFailedEvent(ai.ScheduledEventID, ai.StartedEventID, request.Failure, state, request.Identity)
		e.scheduleWorkflowTaskIfNeeded(ms, builder)
		return nil
	})
	if err != nil || !retry {
		return err
	}

	e.addActivityTimer(token.NamespaceID, token.WorkflowID, token.RunID, workflow.TimerTask{
		Kind:     workflow.TimerTaskKindActivityRetry,
		FireTime: e.timeSource.Now().Add(retryIn),
		EventID:  token.ScheduledEventID,
		Attempt:  retryAttempt,
	})
	return nil
}

// RecordActivityTaskHeartbeat refreshes the heartbeat deadline and reports
// whether cancellation was requested.
func (e *Engine) RecordActivityTaskHeartbeat(
	ctx context.Context,
	token *tasktoken.Token,
	request *workflowservice.RecordActivityTaskHeartbeatRequest,
) (*workflowservice.RecordActivityTaskHeartbeatResponse, error) {
	cancelRequested := false
	rearm := false
	var deadline time.Time
	var attempt int32

	err := e.updateWorkflow(ctx, token.NamespaceID, token.WorkflowID, token.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		rearm = false
		ai, err := e.validateActivityToken(ms, token)
		if err != nil {
			return err
		}
		now := e.timeSource.Now()
		ms.RecordActivityHeartbeat(ai.ScheduledEventID, now)
		cancelRequested = ms.IsCancelRequested()
		if ai.HeartbeatTimeout > 0 {
			rearm = true
			deadline = now.Add(ai.HeartbeatTimeout)
			attempt = ai.Attempt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rearm {
		e.addActivityTimer(token.NamespaceID, token.WorkflowID, token.RunID, workflow.TimerTask{
			Kind:     workflow.TimerTaskKindActivityHeartbeat,
			FireTime: deadline,
			EventID:  token.ScheduledEventID,
			Attempt:  attempt,
		})
	}
	return &workflowservice.RecordActivityTaskHeartbeatResponse{CancelRequested: cancelRequested}, nil
}

func (e *Engine) validateActivityToken(
	ms *workflow.MutableState,
	token *tasktoken.Token,
) (*workflow.ActivityInfo, error) {
	if !ms.IsWorkflowRunning() {
		return nil, serviceerror.NewNotFound("workflow execution already completed")
	}
	ai, ok := ms.GetActivityByScheduledEventID(token.ScheduledEventID)
	if !ok ||
		ai.StartedEventID == common.EmptyEventID ||
		ai.Attempt != token.Attempt {
		return nil, serviceerror.NewNotFound("activity task not found or already completed")
	}
	return ai, nil
}

func (e *Engine) addActivityTimer(namespaceID, workflowID, runID string, task workflow.TimerTask) {
	shardID := common.WorkflowIDToHistoryShard(namespaceID, workflowID, e.config.NumberOfShards)
	e.timerQueueForShard(shardID).add(&timerEntry{
		namespaceID: namespaceID,
		workflowID:  workflowID,
		runID:       runID,
		task:        task,
	})
}

// fireActivityTimeout handles the four activity timeout kinds, retrying under
// the policy where the timeout kind allows it.
func (e *Engine) fireActivityTimeout(ctx context.Context, shardID int32, entry *timerEntry) error {
	retry := false
	var retryIn time.Duration
	var retryAttempt int32
	var rearmHeartbeat time.Time

	err := e.updateWorkflow(ctx, entry.namespaceID, entry.workflowID, entry.runID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		retry = false
		rearmHeartbeat = time.Time{}
		if !ms.IsWorkflowRunning() {
			return nil
		}
		ai, ok := ms.GetActivityByScheduledEventID(entry.task.EventID)
		if !ok {
			return nil
		}
		now := e.timeSource.Now()

		var timeoutType enums.TimeoutType
		switch entry.task.Kind {
		case workflow.TimerTaskKindActivityScheduleToClose:
			if ai.ScheduleToCloseTimeout <= 0 || now.Before(ai.ScheduledTime.Add(ai.ScheduleToCloseTimeout)) {
				return nil
			}
			// Schedule-to-close spans all attempts; no retry can save it.
			builder.AddActivityTaskTimedOutEvent(
				ai.ScheduledEventID, ai.StartedEventID, enums.TimeoutTypeScheduleToClose, enums.RetryStateTimeout)
			e.scheduleWorkflowTaskIfNeeded(ms, builder)
			return nil

		case workflow.TimerTaskKindActivityScheduleToStart:
			if ai.StartedEventID != common.EmptyEventID {
				return nil
			}
			if ai.ScheduleToStartTimeout <= 0 || now.Before(ai.ScheduledTime.Add(ai.ScheduleToStartTimeout)) {
				return nil
			}
			timeoutType = enums.TimeoutTypeScheduleToStart

		case workflow.TimerTaskKindActivityStartToClose:
			if ai.StartedEventID == common.EmptyEventID || ai.Attempt != entry.task.Attempt {
				return nil
			}
			if ai.StartToCloseTimeout <= 0 || now.Before(ai.StartedTime.Add(ai.StartToCloseTimeout)) {
				return nil
			}
			timeoutType = enums.TimeoutTypeStartToClose

		case workflow.TimerTaskKindActivityHeartbeat:
			if ai.StartedEventID == common.EmptyEventID || ai.Attempt != entry.task.Attempt {
				return nil
			}
			deadline := ai.LastHeartbeatTime.Add(ai.HeartbeatTimeout)
			if now.Before(deadline) {
				// Heartbeats pushed the deadline out; re-arm for it.
				rearmHeartbeat = deadline
				return nil
			}
			timeoutType = enums.TimeoutTypeHeartbeat

		default:
			return nil
		}

		failure := types.Failure{
			Message: "activity " + timeoutType.String() + " timeout",
			Type:    "TimeoutFailure",
		}
		delay, state := workflow.NextRetryDelay(ai.RetryPolicy, ai.Attempt, &failure)
		if state == enums.RetryStateInProgress {
			ms.RecordActivityFailure(ai.ScheduledEventID, failure)
			retry = true
			retryIn = delay
			retryAttempt = ai.Attempt
			return nil
		}
		if state == enums.RetryStateMaximumAttemptsReached {
			metrics.ActivityRetriesExceededCounter.With(e.metricsHandler).Record(1)
		}
		builder.AddActivityTaskTimedOutEvent(ai.ScheduledEventID, ai.StartedEventID, timeoutType, state)
		e.scheduleWorkflowTaskIfNeeded(ms, builder)
		return nil
	})
	if err != nil {
		return err
	}

	if retry {
		e.timerQueueForShard(shardID).add(&timerEntry{
			namespaceID: entry.namespaceID,
			workflowID:  entry.workflowID,
			runID:       entry.runID,
			task: workflow.TimerTask{
				Kind:     workflow.TimerTaskKindActivityRetry,
				FireTime: e.timeSource.Now().Add(retryIn),
				EventID:  entry.task.EventID,
				Attempt:  retryAttempt,
			},
		})
	}
	if !rearmHeartbeat.IsZero() {
		e.timerQueueForShard(shardID).add(&timerEntry{
			namespaceID: entry.namespaceID,
			workflowID:  entry.workflowID,
			runID:       entry.runID,
			task: workflow.TimerTask{
				Kind:     workflow.TimerTaskKindActivityHeartbeat,
				FireTime: rearmHeartbeat,
				EventID:  entry.task.EventID,
				Attempt:  entry.task.Attempt,
			},
		})
	}
	return nil
}

// fireActivityRetry re-enqueues the activity's matching task for the next
// attempt.
func (e *Engine) fireActivityRetry(ctx context.Context, entry *timerEntry) error {
	dispatch := false
	var taskQueue string

	err := e.updateWorkflow(ctx, entry.namespaceID, entry.workflowID, entry.runID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		dispatch = false
		if !ms.IsWorkflowRunning() {
			return nil
		}
		ai, ok := ms.GetActivityByScheduledEventID(entry.task.EventID)
		if !ok || ai.Attempt != entry.task.Attempt {
			return nil
		}
		dispatch = true
		taskQueue = ai.TaskQueue.Name
		return nil
	})
	if err != nil || !dispatch {
		return err
	}

	return e.matchingClient.AddTask(ctx, &matching.AddTaskRequest{
		NamespaceID:      entry.namespaceID,
		TaskQueue:        taskQueue,
		TaskType:         enums.TaskTypeActivity,
		WorkflowID:       entry.workflowID,
		RunID:            entry.runID,
		ScheduledEventID: entry.task.EventID,
	})
}
