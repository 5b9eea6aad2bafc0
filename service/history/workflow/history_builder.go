package workflow

import (
	"time"

	"github.com/strandhq/strand/api/enums"
	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/common/clock"
)

// HistoryBuilder mints the events for one append batch. Event ids continue
// from the state machine's next event id; the batch is applied to the state
// machine and then appended conditionally in one write.
type HistoryBuilder struct {
	timeSource  clock.TimeSource
	nextEventID int64
	batch       []*apihistory.HistoryEvent
}

func NewHistoryBuilder(timeSource clock.TimeSource, nextEventID int64) *HistoryBuilder {
	return &HistoryBuilder{
		timeSource:  timeSource,
		nextEventID: nextEventID,
	}
}

// Batch returns the minted events in order.
func (b *HistoryBuilder) Batch() []*apihistory.HistoryEvent {
	return b.batch
}

func (b *HistoryBuilder) newEvent(eventType enums.EventType) *apihistory.HistoryEvent {
	event := &apihistory.HistoryEvent{
		EventID:   b.nextEventID,
		EventTime: b.timeSource.Now(),
		EventType: eventType,
	}
	b.nextEventID++
	b.batch = append(b.batch, event)
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionStartedEvent(
	attrs *apihistory.WorkflowExecutionStartedEventAttributes,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionStarted)
	event.WorkflowExecutionStartedEventAttributes = attrs
	return event
}

func (b *HistoryBuilder) AddWorkflowTaskScheduledEvent(
	taskQueue types.TaskQueue,
	startToCloseTimeout time.Duration,
	attempt int32,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowTaskScheduled)
	event.WorkflowTaskScheduledEventAttributes = &apihistory.WorkflowTaskScheduledEventAttributes{
		TaskQueue:           taskQueue,
		StartToCloseTimeout: startToCloseTimeout,
		Attempt:             attempt,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowTaskStartedEvent(
	scheduledEventID int64,
	identity string,
	requestID string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowTaskStarted)
	event.WorkflowTaskStartedEventAttributes = &apihistory.WorkflowTaskStartedEventAttributes{
		ScheduledEventID: scheduledEventID,
		Identity:         identity,
		RequestID:        requestID,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowTaskCompletedEvent(
	scheduledEventID int64,
	startedEventID int64,
	identity string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowTaskCompleted)
	event.WorkflowTaskCompletedEventAttributes = &apihistory.WorkflowTaskCompletedEventAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Identity:         identity,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowTaskFailedEvent(
	scheduledEventID int64,
	startedEventID int64,
	cause string,
	failure types.Failure,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowTaskFailed)
	event.WorkflowTaskFailedEventAttributes = &apihistory.WorkflowTaskFailedEventAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Cause:            cause,
		Failure:          failure,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowTaskTimedOutEvent(
	scheduledEventID int64,
	startedEventID int64,
	timeoutType enums.TimeoutType,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowTaskTimedOut)
	event.WorkflowTaskTimedOutEventAttributes = &apihistory.WorkflowTaskTimedOutEventAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		TimeoutType:      timeoutType,
	}
	return event
}

func (b *HistoryBuilder) AddActivityTaskScheduledEvent(
	attrs *apihistory.ActivityTaskScheduledEventAttributes,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeActivityTaskScheduled)
	event.ActivityTaskScheduledEventAttributes = attrs
	return event
}

func (b *HistoryBuilder) AddActivityTaskStartedEvent(
	scheduledEventID int64,
	attempt int32,
	identity string,
	requestID string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeActivityTaskStarted)
	event.ActivityTaskStartedEventAttributes = &apihistory.ActivityTaskStartedEventAttributes{
		ScheduledEventID: scheduledEventID,
		Attempt:          attempt,
		Identity:         identity,
		RequestID:        requestID,
	}
	return event
}

func (b *HistoryBuilder) AddActivityTaskCompletedEvent(
	scheduledEventID int64,
	startedEventID int64,
	result types.Payload,
	identity string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeActivityTaskCompleted)
	event.ActivityTaskCompletedEventAttributes = &apihistory.ActivityTaskCompletedEventAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Result:           result,
		Identity:         identity,
	}
	return event
}

func (b *HistoryBuilder) AddActivityTaskFailedEvent(
	scheduledEventID int64,
	startedEventID int64,
	failure types.Failure,
	retryState enums.RetryState,
	identity string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeActivityTaskFailed)
	event.ActivityTaskFailedEventAttributes = &apihistory.ActivityTaskFailedEventAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		Failure:          failure,
		RetryState:       retryState,
		Identity:         identity,
	}
	return event
}

func (b *HistoryBuilder) AddActivityTaskTimedOutEvent(
	scheduledEventID int64,
	startedEventID int64,
	timeoutType enums.TimeoutType,
	retryState enums.RetryState,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeActivityTaskTimedOut)
	event.ActivityTaskTimedOutEventAttributes = &apihistory.ActivityTaskTimedOutEventAttributes{
		ScheduledEventID: scheduledEventID,
		StartedEventID:   startedEventID,
		TimeoutType:      timeoutType,
		RetryState:       retryState,
	}
	return event
}

func (b *HistoryBuilder) AddTimerStartedEvent(
	timerID string,
	startToFireTimeout time.Duration,
	workflowTaskCompletedEventID int64,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeTimerStarted)
	event.TimerStartedEventAttributes = &apihistory.TimerStartedEventAttributes{
		TimerID:                      timerID,
		StartToFireTimeout:           startToFireTimeout,
		WorkflowTaskCompletedEventID: workflowTaskCompletedEventID,
	}
	return event
}

func (b *HistoryBuilder) AddTimerFiredEvent(
	timerID string,
	startedEventID int64,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeTimerFired)
	event.TimerFiredEventAttributes = &apihistory.TimerFiredEventAttributes{
		TimerID:        timerID,
		StartedEventID: startedEventID,
	}
	return event
}

func (b *HistoryBuilder) AddTimerCanceledEvent(
	timerID string,
	startedEventID int64,
	workflowTaskCompletedEventID int64,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeTimerCanceled)
	event.TimerCanceledEventAttributes = &apihistory.TimerCanceledEventAttributes{
		TimerID:                      timerID,
		StartedEventID:               startedEventID,
		WorkflowTaskCompletedEventID: workflowTaskCompletedEventID,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionSignaledEvent(
	signalName string,
	input types.Payload,
	identity string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionSignaled)
	event.WorkflowExecutionSignaledEventAttributes = &apihistory.WorkflowExecutionSignaledEventAttributes{
		SignalName: signalName,
		Input:      input,
		Identity:   identity,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionCancelRequestedEvent(
	cause string,
	identity string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionCancelRequested)
	event.WorkflowExecutionCancelRequestedEventAttributes = &apihistory.WorkflowExecutionCancelRequestedEventAttributes{
		Cause:    cause,
		Identity: identity,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionCompletedEvent(
	result types.Payload,
	workflowTaskCompletedEventID int64,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionCompleted)
	event.WorkflowExecutionCompletedEventAttributes = &apihistory.WorkflowExecutionCompletedEventAttributes{
		Result:                       result,
		WorkflowTaskCompletedEventID: workflowTaskCompletedEventID,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionFailedEvent(
	failure types.Failure,
	retryState enums.RetryState,
	workflowTaskCompletedEventID int64,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionFailed)
	event.WorkflowExecutionFailedEventAttributes = &apihistory.WorkflowExecutionFailedEventAttributes{
		Failure:                      failure,
		RetryState:                   retryState,
		WorkflowTaskCompletedEventID: workflowTaskCompletedEventID,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionTimedOutEvent(
	retryState enums.RetryState,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionTimedOut)
	event.WorkflowExecutionTimedOutEventAttributes = &apihistory.WorkflowExecutionTimedOutEventAttributes{
		RetryState: retryState,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionCanceledEvent(
	details types.Payload,
	workflowTaskCompletedEventID int64,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionCanceled)
	event.WorkflowExecutionCanceledEventAttributes = &apihistory.WorkflowExecutionCanceledEventAttributes{
		Details:                      details,
		WorkflowTaskCompletedEventID: workflowTaskCompletedEventID,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionTerminatedEvent(
	reason string,
	details types.Payload,
	identity string,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionTerminated)
	event.WorkflowExecutionTerminatedEventAttributes = &apihistory.WorkflowExecutionTerminatedEventAttributes{
		Reason:   reason,
		Details:  details,
		Identity: identity,
	}
	return event
}

func (b *HistoryBuilder) AddWorkflowExecutionContinuedAsNewEvent(
	attrs *apihistory.WorkflowExecutionContinuedAsNewEventAttributes,
) *apihistory.HistoryEvent {
	event := b.newEvent(enums.EventTypeWorkflowExecutionContinuedAsNew)
	event.WorkflowExecutionContinuedAsNewEventAttributes = attrs
	return event
}
