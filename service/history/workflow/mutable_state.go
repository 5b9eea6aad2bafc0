package workflow

import (
	"time"

	"github.com/strandhq/strand/api/enums"
	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/persistence"
)

type (
	// ExecutionInfo is the replay-derived summary of one run.
	ExecutionInfo struct {
		NamespaceID string
		WorkflowID  string
		RunID       string

		WorkflowType        types.WorkflowType
		TaskQueue           types.TaskQueue
		Input               types.Payload
		WorkflowRunTimeout  time.Duration
		WorkflowTaskTimeout time.Duration
		CronSchedule        string
		// FirstWorkflowTaskBackoff delays the first workflow task; cron runs
		// use it to park until their scheduled time.
		FirstWorkflowTaskBackoff time.Duration

		Status    enums.WorkflowExecutionStatus
		StartTime time.Time
		CloseTime *time.Time

		Attempt                 int32
		FirstExecutionRunID     string
		ContinuedExecutionRunID string
		// NewExecutionRunID is set once the run continued as new.
		NewExecutionRunID string

		CancelRequested bool

		// CompletionResult and CompletionFailure echo the closure event for
		// describe calls.
		CompletionResult  types.Payload
		CompletionFailure *types.Failure
	}

	// WorkflowTaskInfo tracks the single outstanding workflow task.
	WorkflowTaskInfo struct {
		ScheduledEventID    int64
		StartedEventID      int64
		Attempt             int32
		ScheduledTime       time.Time
		StartedTime         time.Time
		StartToCloseTimeout time.Duration
	}

	// ActivityInfo tracks one pending activity, keyed by its scheduled event.
	ActivityInfo struct {
		ScheduledEventID int64
		StartedEventID   int64
		ActivityID       string
		ActivityType     types.ActivityType
		TaskQueue        types.TaskQueue
		Input            types.Payload

		ScheduleToCloseTimeout time.Duration
		ScheduleToStartTimeout time.Duration
		StartToCloseTimeout    time.Duration
		HeartbeatTimeout       time.Duration

		RetryPolicy *types.RetryPolicy
		Attempt     int32

		ScheduledTime     time.Time
		StartedTime       time.Time
		LastHeartbeatTime time.Time
		LastFailure       *types.Failure
	}

	// TimerInfo tracks one pending user timer.
	TimerInfo struct {
		TimerID        string
		StartedEventID int64
		ExpiryTime     time.Time
	}

	// MutableState is the state machine of one run, rebuilt purely by
	// replaying the run's history. It is never persisted; the event log is
	// the only durable representation.
	MutableState struct {
		executionInfo ExecutionInfo
		nextEventID   int64

		workflowTask      *WorkflowTaskInfo
		pendingActivities map[int64]*ActivityInfo
		activityIDs       map[string]int64
		pendingTimers     map[string]*TimerInfo
		timerEventIDs     map[int64]string

		// lastWorkflowTaskStartedEventID is the started event of the most
		// recently completed workflow task, reported to workers so they know
		// where their view of history ends.
		lastWorkflowTaskStartedEventID int64

		// continuedAsNewAttributes survives closure so the engine can start
		// the chained run.
		continuedAsNewAttributes *apihistory.WorkflowExecutionContinuedAsNewEventAttributes
	}
)

// NewMutableState returns an empty state machine ready to replay a history
// from its first event.
func NewMutableState(namespaceID string, workflowID string, runID string) *MutableState {
	return &MutableState{
		executionInfo: ExecutionInfo{
			NamespaceID: namespaceID,
			WorkflowID:  workflowID,
			RunID:       runID,
		},
		nextEventID:       common.FirstEventID,
		pendingActivities: make(map[int64]*ActivityInfo),
		activityIDs:       make(map[string]int64),
		pendingTimers:     make(map[string]*TimerInfo),
		timerEventIDs:     make(map[int64]string),
	}
}

// Rebuild replays an ordered history into a fresh state machine.
func Rebuild(
	namespaceID string,
	workflowID string,
	runID string,
	events []*apihistory.HistoryEvent,
) (*MutableState, error) {
	ms := NewMutableState(namespaceID, workflowID, runID)
	if _, err := ms.ApplyEvents(events); err != nil {
		return nil, err
	}
	return ms, nil
}

func (ms *MutableState) GetExecutionInfo() *ExecutionInfo {
	return &ms.executionInfo
}

// GetNextEventID returns the id the next appended event must carry.
func (ms *MutableState) GetNextEventID() int64 {
	return ms.nextEventID
}

// GetLastEventVersion returns the id of the last applied event, which is the
// expected-version condition for the next append.
func (ms *MutableState) GetLastEventVersion() int64 {
	return ms.nextEventID - 1
}

func (ms *MutableState) IsWorkflowRunning() bool {
	return ms.executionInfo.Status == enums.WorkflowExecutionStatusRunning
}

func (ms *MutableState) IsCancelRequested() bool {
	return ms.executionInfo.CancelRequested
}

// HasPendingWorkflowTask reports whether a workflow task is scheduled or
// started. At most one workflow task is outstanding per run.
func (ms *MutableState) HasPendingWorkflowTask() bool {
	return ms.workflowTask != nil
}

func (ms *MutableState) HasStartedWorkflowTask() bool {
	return ms.workflowTask != nil && ms.workflowTask.StartedEventID != common.EmptyEventID
}

func (ms *MutableState) GetPendingWorkflowTask() *WorkflowTaskInfo {
	return ms.workflowTask
}

func (ms *MutableState) GetActivityByScheduledEventID(scheduledEventID int64) (*ActivityInfo, bool) {
	ai, ok := ms.pendingActivities[scheduledEventID]
	return ai, ok
}

func (ms *MutableState) GetActivityByID(activityID string) (*ActivityInfo, bool) {
	scheduledEventID, ok := ms.activityIDs[activityID]
	if !ok {
		return nil, false
	}
	return ms.GetActivityByScheduledEventID(scheduledEventID)
}

func (ms *MutableState) GetPendingActivities() map[int64]*ActivityInfo {
	return ms.pendingActivities
}

func (ms *MutableState) GetPendingTimers() map[string]*TimerInfo {
	return ms.pendingTimers
}

func (ms *MutableState) GetTimer(timerID string) (*TimerInfo, bool) {
	ti, ok := ms.pendingTimers[timerID]
	return ti, ok
}

// GetLastWorkflowTaskStartedEventID returns the started event id of the most
// recently completed workflow task, or EmptyEventID when none completed yet.
func (ms *MutableState) GetLastWorkflowTaskStartedEventID() int64 {
	if ms.lastWorkflowTaskStartedEventID == 0 {
		return common.EmptyEventID
	}
	return ms.lastWorkflowTaskStartedEventID
}

// GetContinuedAsNewAttributes returns the closure attributes once the run
// continued as new, nil otherwise.
func (ms *MutableState) GetContinuedAsNewAttributes() *apihistory.WorkflowExecutionContinuedAsNewEventAttributes {
	return ms.continuedAsNewAttributes
}

// RecordActivityHeartbeat notes a heartbeat on a pending activity. Heartbeats
// are not history events; this bookkeeping is advisory, feeds describe calls
// and heartbeat timeout checks, and is lost on replay.
func (ms *MutableState) RecordActivityHeartbeat(scheduledEventID int64, heartbeatTime time.Time) bool {
	ai, ok := ms.pendingActivities[scheduledEventID]
	if !ok {
		return false
	}
	ai.LastHeartbeatTime = heartbeatTime
	return true
}

// RecordActivityFailure notes the latest attempt failure on a pending activity
// while a retry is outstanding. Like heartbeats this is advisory: the failure
// only enters history if the retry policy gives up.
func (ms *MutableState) RecordActivityFailure(scheduledEventID int64, failure types.Failure) bool {
	ai, ok := ms.pendingActivities[scheduledEventID]
	if !ok {
		return false
	}
	ai.LastFailure = &failure
	return true
}

// ApplyEvents applies an ordered batch, accumulating side effects.
func (ms *MutableState) ApplyEvents(events []*apihistory.HistoryEvent) (*SideEffects, error) {
	effects := &SideEffects{}
	for _, event := range events {
		eventEffects, err := ms.ApplyEvent(event)
		if err != nil {
			return nil, err
		}
		effects.append(eventEffects)
	}
	return effects, nil
}

// ApplyEvent advances the state machine by one event. Reapplying an already
// applied event id is a no-op with no side effects; an event id from the
// future means the history read skipped events and is rejected as corruption.
func (ms *MutableState) ApplyEvent(event *apihistory.HistoryEvent) (*SideEffects, error) {
	if event.EventID < ms.nextEventID {
		return &SideEffects{}, nil
	}
	if event.EventID > ms.nextEventID {
		return nil, &persistence.DataCorruptionError{
			Msg: "event id gap while applying history: expected " +
				formatEventID(ms.nextEventID) + ", got " + formatEventID(event.EventID),
		}
	}

	effects := &SideEffects{}
	var err error
	switch event.EventType {
	case enums.EventTypeWorkflowExecutionStarted:
		err = ms.applyWorkflowExecutionStarted(event, effects)
	case enums.EventTypeWorkflowExecutionCompleted:
		ms.applyWorkflowClosure(event, enums.WorkflowExecutionStatusCompleted)
		ms.executionInfo.CompletionResult = event.WorkflowExecutionCompletedEventAttributes.Result
	case enums.EventTypeWorkflowExecutionFailed:
		ms.applyWorkflowClosure(event, enums.WorkflowExecutionStatusFailed)
		failure := event.WorkflowExecutionFailedEventAttributes.Failure
		ms.executionInfo.CompletionFailure = &failure
	case enums.EventTypeWorkflowExecutionTimedOut:
		ms.applyWorkflowClosure(event, enums.WorkflowExecutionStatusTimedOut)
	case enums.EventTypeWorkflowExecutionCanceled:
		ms.applyWorkflowClosure(event, enums.WorkflowExecutionStatusCanceled)
	case enums.EventTypeWorkflowExecutionTerminated:
		ms.applyWorkflowClosure(event, enums.WorkflowExecutionStatusTerminated)
	case enums.EventTypeWorkflowExecutionContinuedAsNew:
		ms.applyWorkflowClosure(event, enums.WorkflowExecutionStatusContinuedAsNew)
		ms.executionInfo.NewExecutionRunID = event.WorkflowExecutionContinuedAsNewEventAttributes.NewExecutionRunID
		ms.continuedAsNewAttributes = event.WorkflowExecutionContinuedAsNewEventAttributes
	case enums.EventTypeWorkflowExecutionCancelRequested:
		ms.executionInfo.CancelRequested = true
	case enums.EventTypeWorkflowExecutionSignaled:
		// No structural change; the engine schedules a workflow task when
		// none is outstanding.
	case enums.EventTypeWorkflowTaskScheduled:
		err = ms.applyWorkflowTaskScheduled(event, effects)
	case enums.EventTypeWorkflowTaskStarted:
		err = ms.applyWorkflowTaskStarted(event, effects)
	case enums.EventTypeWorkflowTaskCompleted:
		attrs := event.WorkflowTaskCompletedEventAttributes
		if err = ms.applyWorkflowTaskClosed(attrs.ScheduledEventID); err == nil {
			ms.lastWorkflowTaskStartedEventID = attrs.StartedEventID
		}
	case enums.EventTypeWorkflowTaskFailed:
		err = ms.applyWorkflowTaskClosed(event.WorkflowTaskFailedEventAttributes.ScheduledEventID)
	case enums.EventTypeWorkflowTaskTimedOut:
		err = ms.applyWorkflowTaskClosed(event.WorkflowTaskTimedOutEventAttributes.ScheduledEventID)
	case enums.EventTypeActivityTaskScheduled:
		err = ms.applyActivityTaskScheduled(event, effects)
	case enums.EventTypeActivityTaskStarted:
		err = ms.applyActivityTaskStarted(event, effects)
	case enums.EventTypeActivityTaskCompleted:
		err = ms.applyActivityClosed(event.ActivityTaskCompletedEventAttributes.ScheduledEventID)
	case enums.EventTypeActivityTaskFailed:
		err = ms.applyActivityClosed(event.ActivityTaskFailedEventAttributes.ScheduledEventID)
	case enums.EventTypeActivityTaskTimedOut:
		err = ms.applyActivityClosed(event.ActivityTaskTimedOutEventAttributes.ScheduledEventID)
	case enums.EventTypeTimerStarted:
		err = ms.applyTimerStarted(event, effects)
	case enums.EventTypeTimerFired:
		err = ms.applyTimerClosed(event.TimerFiredEventAttributes.TimerID)
	case enums.EventTypeTimerCanceled:
		err = ms.applyTimerClosed(event.TimerCanceledEventAttributes.TimerID)
	default:
		err = &persistence.DataCorruptionError{
			Msg: "unknown event type " + event.EventType.String() + " at event " + formatEventID(event.EventID),
		}
	}
	if err != nil {
		return nil, err
	}

	ms.nextEventID = event.EventID + 1
	return effects, nil
}

func (ms *MutableState) applyWorkflowExecutionStarted(
	event *apihistory.HistoryEvent,
	effects *SideEffects,
) error {
	attrs := event.WorkflowExecutionStartedEventAttributes
	if attrs == nil || event.EventID != common.FirstEventID {
		return &persistence.DataCorruptionError{
			Msg: "malformed WorkflowExecutionStarted event",
		}
	}

	info := &ms.executionInfo
	info.WorkflowType = attrs.WorkflowType
	info.TaskQueue = attrs.TaskQueue
	info.Input = attrs.Input
	info.WorkflowRunTimeout = attrs.WorkflowRunTimeout
	info.WorkflowTaskTimeout = attrs.WorkflowTaskTimeout
	info.CronSchedule = attrs.CronSchedule
	info.FirstWorkflowTaskBackoff = attrs.FirstWorkflowTaskBackoff
	info.Status = enums.WorkflowExecutionStatusRunning
	info.StartTime = event.EventTime
	info.Attempt = attrs.Attempt
	info.FirstExecutionRunID = attrs.FirstExecutionRunID
	info.ContinuedExecutionRunID = attrs.ContinuedExecutionRunID

	if attrs.WorkflowRunTimeout > 0 {
		effects.addTimer(TimerTask{
			Kind:     TimerTaskKindWorkflowRunTimeout,
			FireTime: event.EventTime.Add(attrs.WorkflowRunTimeout),
		})
	}
	if attrs.FirstWorkflowTaskBackoff > 0 {
		effects.addTimer(TimerTask{
			Kind:     TimerTaskKindWorkflowTaskBackoff,
			FireTime: event.EventTime.Add(attrs.FirstWorkflowTaskBackoff),
		})
	}
	return nil
}

func (ms *MutableState) applyWorkflowClosure(
	event *apihistory.HistoryEvent,
	status enums.WorkflowExecutionStatus,
) {
	closeTime := event.EventTime
	ms.executionInfo.Status = status
	ms.executionInfo.CloseTime = &closeTime
	ms.workflowTask = nil
}

func (ms *MutableState) applyWorkflowTaskScheduled(
	event *apihistory.HistoryEvent,
	effects *SideEffects,
) error {
	attrs := event.WorkflowTaskScheduledEventAttributes
	if ms.workflowTask != nil {
		return &persistence.DataCorruptionError{
			Msg: "workflow task scheduled while another is pending at event " + formatEventID(event.EventID),
		}
	}
	ms.workflowTask = &WorkflowTaskInfo{
		ScheduledEventID:    event.EventID,
		StartedEventID:      common.EmptyEventID,
		Attempt:             attrs.Attempt,
		ScheduledTime:       event.EventTime,
		StartToCloseTimeout: attrs.StartToCloseTimeout,
	}

	effects.addTask(TransferTask{
		TaskType:         enums.TaskTypeWorkflow,
		TaskQueue:        attrs.TaskQueue.Name,
		ScheduledEventID: event.EventID,
	})
	return nil
}

func (ms *MutableState) applyWorkflowTaskStarted(
	event *apihistory.HistoryEvent,
	effects *SideEffects,
) error {
	attrs := event.WorkflowTaskStartedEventAttributes
	if ms.workflowTask == nil || ms.workflowTask.ScheduledEventID != attrs.ScheduledEventID {
		return &persistence.DataCorruptionError{
			Msg: "workflow task started without matching scheduled event at event " + formatEventID(event.EventID),
		}
	}
	ms.workflowTask.StartedEventID = event.EventID
	ms.workflowTask.StartedTime = event.EventTime

	if ms.workflowTask.StartToCloseTimeout > 0 {
		effects.addTimer(TimerTask{
			Kind:     TimerTaskKindWorkflowTaskTimeout,
			FireTime: event.EventTime.Add(ms.workflowTask.StartToCloseTimeout),
			EventID:  attrs.ScheduledEventID,
			Attempt:  ms.workflowTask.Attempt,
		})
	}
	return nil
}

func (ms *MutableState) applyWorkflowTaskClosed(scheduledEventID int64) error {
	if ms.workflowTask == nil || ms.workflowTask.ScheduledEventID != scheduledEventID {
		return &persistence.DataCorruptionError{
			Msg: "workflow task closure for unknown scheduled event " + formatEventID(scheduledEventID),
		}
	}
	ms.workflowTask = nil
	return nil
}

func (ms *MutableState) applyActivityTaskScheduled(
	event *apihistory.HistoryEvent,
	effects *SideEffects,
) error {
	attrs := event.ActivityTaskScheduledEventAttributes
	if _, ok := ms.activityIDs[attrs.ActivityID]; ok {
		return &persistence.DataCorruptionError{
			Msg: "duplicate pending activity id " + attrs.ActivityID,
		}
	}

	ai := &ActivityInfo{
		ScheduledEventID:       event.EventID,
		StartedEventID:         common.EmptyEventID,
		ActivityID:             attrs.ActivityID,
		ActivityType:           attrs.ActivityType,
		TaskQueue:              attrs.TaskQueue,
		Input:                  attrs.Input,
		ScheduleToCloseTimeout: attrs.ScheduleToCloseTimeout,
		ScheduleToStartTimeout: attrs.ScheduleToStartTimeout,
		StartToCloseTimeout:    attrs.StartToCloseTimeout,
		HeartbeatTimeout:       attrs.HeartbeatTimeout,
		RetryPolicy:            attrs.RetryPolicy,
		Attempt:                1,
		ScheduledTime:          event.EventTime,
	}
	ms.pendingActivities[event.EventID] = ai
	ms.activityIDs[attrs.ActivityID] = event.EventID

	effects.addTask(TransferTask{
		TaskType:         enums.TaskTypeActivity,
		TaskQueue:        attrs.TaskQueue.Name,
		ScheduledEventID: event.EventID,
	})
	if attrs.ScheduleToCloseTimeout > 0 {
		effects.addTimer(TimerTask{
			Kind:     TimerTaskKindActivityScheduleToClose,
			FireTime: event.EventTime.Add(attrs.ScheduleToCloseTimeout),
			EventID:  event.EventID,
		})
	}
	if attrs.ScheduleToStartTimeout > 0 {
		effects.addTimer(TimerTask{
			Kind:     TimerTaskKindActivityScheduleToStart,
			FireTime: event.EventTime.Add(attrs.ScheduleToStartTimeout),
			EventID:  event.EventID,
			Attempt:  1,
		})
	}
	return nil
}

func (ms *MutableState) applyActivityTaskStarted(
	event *apihistory.HistoryEvent,
	effects *SideEffects,
) error {
	attrs := event.ActivityTaskStartedEventAttributes
	ai, ok := ms.pendingActivities[attrs.ScheduledEventID]
	if !ok {
		return &persistence.DataCorruptionError{
			Msg: "activity started without matching scheduled event " + formatEventID(attrs.ScheduledEventID),
		}
	}
	ai.StartedEventID = event.EventID
	ai.StartedTime = event.EventTime
	ai.LastHeartbeatTime = event.EventTime
	if attrs.Attempt > 0 {
		ai.Attempt = attrs.Attempt
	}

	if ai.StartToCloseTimeout > 0 {
		effects.addTimer(TimerTask{
			Kind:     TimerTaskKindActivityStartToClose,
			FireTime: event.EventTime.Add(ai.StartToCloseTimeout),
			EventID:  ai.ScheduledEventID,
			Attempt:  ai.Attempt,
		})
	}
	if ai.HeartbeatTimeout > 0 {
		effects.addTimer(TimerTask{
			Kind:     TimerTaskKindActivityHeartbeat,
			FireTime: event.EventTime.Add(ai.HeartbeatTimeout),
			EventID:  ai.ScheduledEventID,
			Attempt:  ai.Attempt,
		})
	}
	return nil
}

func (ms *MutableState) applyActivityClosed(scheduledEventID int64) error {
	ai, ok := ms.pendingActivities[scheduledEventID]
	if !ok {
		return &persistence.DataCorruptionError{
			Msg: "activity closure for unknown scheduled event " + formatEventID(scheduledEventID),
		}
	}
	delete(ms.pendingActivities, scheduledEventID)
	delete(ms.activityIDs, ai.ActivityID)
	return nil
}

func (ms *MutableState) applyTimerStarted(
	event *apihistory.HistoryEvent,
	effects *SideEffects,
) error {
	attrs := event.TimerStartedEventAttributes
	if _, ok := ms.pendingTimers[attrs.TimerID]; ok {
		return &persistence.DataCorruptionError{
			Msg: "duplicate pending timer id " + attrs.TimerID,
		}
	}
	expiry := event.EventTime.Add(attrs.StartToFireTimeout)
	ms.pendingTimers[attrs.TimerID] = &TimerInfo{
		TimerID:        attrs.TimerID,
		StartedEventID: event.EventID,
		ExpiryTime:     expiry,
	}
	ms.timerEventIDs[event.EventID] = attrs.TimerID

	effects.addTimer(TimerTask{
		Kind:     TimerTaskKindUserTimer,
		FireTime: expiry,
		EventID:  event.EventID,
		TimerID:  attrs.TimerID,
	})
	return nil
}

func (ms *MutableState) applyTimerClosed(timerID string) error {
	ti, ok := ms.pendingTimers[timerID]
	if !ok {
		return &persistence.DataCorruptionError{
			Msg: "timer closure for unknown timer id " + timerID,
		}
	}
	delete(ms.pendingTimers, timerID)
	delete(ms.timerEventIDs, ti.StartedEventID)
	return nil
}
