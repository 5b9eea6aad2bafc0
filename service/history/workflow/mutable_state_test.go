package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/persistence"
)

const (
	testNamespaceID = "ns-id"
	testWorkflowID  = "wf-id"
	testRunID       = "run-id"
)

// sampleHistory builds a representative history: start, workflow task
// scheduled/started/completed, an activity and a user timer scheduled by the
// task, the activity started and completed, the timer fired, and a final
// workflow task that completes the run.
func sampleHistory(t *testing.T) []*apihistory.HistoryEvent {
	t.Helper()

	timeSource := clock.NewEventTimeSource().Update(time.Unix(100, 0).UTC())
	builder := NewHistoryBuilder(timeSource, common.FirstEventID)

	builder.AddWorkflowExecutionStartedEvent(&apihistory.WorkflowExecutionStartedEventAttributes{
		WorkflowType:        types.WorkflowType{Name: "order-fulfillment"},
		TaskQueue:           types.TaskQueue{Name: "orders"},
		Input:               types.Payload(`{"orderId":42}`),
		WorkflowRunTimeout:  time.Hour,
		WorkflowTaskTimeout: 10 * time.Second,
		Attempt:             1,
		FirstExecutionRunID: testRunID,
	})
	builder.AddWorkflowTaskScheduledEvent(types.TaskQueue{Name: "orders"}, 10*time.Second, 1)
	timeSource.Advance(time.Second)
	builder.AddWorkflowTaskStartedEvent(2, "worker-1", "req-1")
	timeSource.Advance(time.Second)
	builder.AddWorkflowTaskCompletedEvent(2, 3, "worker-1")
	builder.AddActivityTaskScheduledEvent(&apihistory.ActivityTaskScheduledEventAttributes{
		ActivityID:             "charge-card",
		ActivityType:           types.ActivityType{Name: "ChargeCard"},
		TaskQueue:              types.TaskQueue{Name: "orders"},
		ScheduleToCloseTimeout: 5 * time.Minute,
		StartToCloseTimeout:    time.Minute,
		HeartbeatTimeout:       20 * time.Second,
	})
	builder.AddTimerStartedEvent("reminder", 30*time.Minute, 4)
	timeSource.Advance(time.Second)
	builder.AddActivityTaskStartedEvent(5, 1, "worker-2", "req-2")
	timeSource.Advance(2 * time.Second)
	builder.AddActivityTaskCompletedEvent(5, 7, types.Payload(`"ok"`), "worker-2")
	builder.AddWorkflowTaskScheduledEvent(types.TaskQueue{Name: "orders"}, 10*time.Second, 1)
	timeSource.Advance(time.Second)
	builder.AddWorkflowTaskStartedEvent(9, "worker-1", "req-3")
	builder.AddWorkflowTaskCompletedEvent(9, 10, "worker-1")
	builder.AddTimerCanceledEvent("reminder", 6, 11)
	builder.AddWorkflowExecutionCompletedEvent(types.Payload(`"done"`), 11)

	return builder.Batch()
}

func TestReplayIsDeterministic(t *testing.T) {
	events := sampleHistory(t)

	first := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	firstEffects, err := first.ApplyEvents(events)
	require.NoError(t, err)

	second := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	secondEffects, err := second.ApplyEvents(events)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstEffects, secondEffects)
}

func TestReapplyingAppliedEventsIsNoOp(t *testing.T) {
	events := sampleHistory(t)

	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events)
	require.NoError(t, err)
	nextEventID := ms.GetNextEventID()

	effects, err := ms.ApplyEvents(events)
	require.NoError(t, err)
	assert.Empty(t, effects.Tasks)
	assert.Empty(t, effects.Timers)
	assert.Equal(t, nextEventID, ms.GetNextEventID())
}

func TestEventIDGapRejectedAsCorruption(t *testing.T) {
	events := sampleHistory(t)

	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvent(events[0])
	require.NoError(t, err)

	_, err = ms.ApplyEvent(events[2])
	var corruptionErr *persistence.DataCorruptionError
	require.ErrorAs(t, err, &corruptionErr)
}

func TestWorkflowExecutionStartedSetsInfoAndTimers(t *testing.T) {
	events := sampleHistory(t)

	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	effects, err := ms.ApplyEvent(events[0])
	require.NoError(t, err)

	info := ms.GetExecutionInfo()
	assert.Equal(t, "order-fulfillment", info.WorkflowType.Name)
	assert.Equal(t, "orders", info.TaskQueue.Name)
	assert.Equal(t, enums.WorkflowExecutionStatusRunning, info.Status)
	assert.Equal(t, events[0].EventTime, info.StartTime)
	assert.True(t, ms.IsWorkflowRunning())

	require.Len(t, effects.Timers, 1)
	assert.Equal(t, TimerTaskKindWorkflowRunTimeout, effects.Timers[0].Kind)
	assert.Equal(t, events[0].EventTime.Add(time.Hour), effects.Timers[0].FireTime)
}

func TestStartedEventMustBeFirst(t *testing.T) {
	events := sampleHistory(t)

	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvent(events[0])
	require.NoError(t, err)

	startedAgain := &apihistory.HistoryEvent{
		EventID:   2,
		EventTime: events[0].EventTime,
		EventType: enums.EventTypeWorkflowExecutionStarted,
		WorkflowExecutionStartedEventAttributes: events[0].WorkflowExecutionStartedEventAttributes,
	}
	_, err = ms.ApplyEvent(startedAgain)
	var corruptionErr *persistence.DataCorruptionError
	require.ErrorAs(t, err, &corruptionErr)
}

func TestWorkflowTaskLifecycle(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)

	_, err := ms.ApplyEvent(events[0])
	require.NoError(t, err)
	assert.False(t, ms.HasPendingWorkflowTask())

	effects, err := ms.ApplyEvent(events[1])
	require.NoError(t, err)
	require.True(t, ms.HasPendingWorkflowTask())
	assert.False(t, ms.HasStartedWorkflowTask())
	require.Len(t, effects.Tasks, 1)
	assert.Equal(t, enums.TaskTypeWorkflow, effects.Tasks[0].TaskType)
	assert.Equal(t, "orders", effects.Tasks[0].TaskQueue)
	assert.Equal(t, int64(2), effects.Tasks[0].ScheduledEventID)

	effects, err = ms.ApplyEvent(events[2])
	require.NoError(t, err)
	assert.True(t, ms.HasStartedWorkflowTask())
	require.Len(t, effects.Timers, 1)
	assert.Equal(t, TimerTaskKindWorkflowTaskTimeout, effects.Timers[0].Kind)
	assert.Equal(t, events[2].EventTime.Add(10*time.Second), effects.Timers[0].FireTime)

	_, err = ms.ApplyEvent(events[3])
	require.NoError(t, err)
	assert.False(t, ms.HasPendingWorkflowTask())
}

func TestSecondWorkflowTaskScheduleRejected(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events[:2])
	require.NoError(t, err)

	scheduled := &apihistory.HistoryEvent{
		EventID:   3,
		EventTime: events[1].EventTime,
		EventType: enums.EventTypeWorkflowTaskScheduled,
		WorkflowTaskScheduledEventAttributes: &apihistory.WorkflowTaskScheduledEventAttributes{
			TaskQueue: types.TaskQueue{Name: "orders"},
			Attempt:   1,
		},
	}
	_, err = ms.ApplyEvent(scheduled)
	var corruptionErr *persistence.DataCorruptionError
	require.ErrorAs(t, err, &corruptionErr)
}

func TestActivityLifecycle(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events[:4])
	require.NoError(t, err)

	effects, err := ms.ApplyEvent(events[4])
	require.NoError(t, err)
	ai, ok := ms.GetActivityByID("charge-card")
	require.True(t, ok)
	assert.Equal(t, int64(5), ai.ScheduledEventID)
	assert.Equal(t, int32(1), ai.Attempt)
	require.Len(t, effects.Tasks, 1)
	assert.Equal(t, enums.TaskTypeActivity, effects.Tasks[0].TaskType)
	require.Len(t, effects.Timers, 1)
	assert.Equal(t, TimerTaskKindActivityScheduleToClose, effects.Timers[0].Kind)

	_, err = ms.ApplyEvent(events[5])
	require.NoError(t, err)

	effects, err = ms.ApplyEvent(events[6])
	require.NoError(t, err)
	ai, ok = ms.GetActivityByScheduledEventID(5)
	require.True(t, ok)
	assert.Equal(t, int64(7), ai.StartedEventID)
	require.Len(t, effects.Timers, 2)
	assert.Equal(t, TimerTaskKindActivityStartToClose, effects.Timers[0].Kind)
	assert.Equal(t, TimerTaskKindActivityHeartbeat, effects.Timers[1].Kind)
	assert.Equal(t, events[6].EventTime.Add(time.Minute), effects.Timers[0].FireTime)

	_, err = ms.ApplyEvent(events[7])
	require.NoError(t, err)
	_, ok = ms.GetActivityByScheduledEventID(5)
	assert.False(t, ok)
	_, ok = ms.GetActivityByID("charge-card")
	assert.False(t, ok)
}

func TestDuplicateActivityIDRejected(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events[:5])
	require.NoError(t, err)

	dup := &apihistory.HistoryEvent{
		EventID:   6,
		EventTime: events[4].EventTime,
		EventType: enums.EventTypeActivityTaskScheduled,
		ActivityTaskScheduledEventAttributes: &apihistory.ActivityTaskScheduledEventAttributes{
			ActivityID:   "charge-card",
			ActivityType: types.ActivityType{Name: "ChargeCard"},
			TaskQueue:    types.TaskQueue{Name: "orders"},
		},
	}
	_, err = ms.ApplyEvent(dup)
	var corruptionErr *persistence.DataCorruptionError
	require.ErrorAs(t, err, &corruptionErr)
}

func TestUserTimerLifecycle(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events[:5])
	require.NoError(t, err)

	effects, err := ms.ApplyEvent(events[5])
	require.NoError(t, err)
	ti, ok := ms.GetTimer("reminder")
	require.True(t, ok)
	assert.Equal(t, int64(6), ti.StartedEventID)
	assert.Equal(t, events[5].EventTime.Add(30*time.Minute), ti.ExpiryTime)
	require.Len(t, effects.Timers, 1)
	assert.Equal(t, TimerTaskKindUserTimer, effects.Timers[0].Kind)
	assert.Equal(t, "reminder", effects.Timers[0].TimerID)
	assert.Equal(t, ti.ExpiryTime, effects.Timers[0].FireTime)

	_, err = ms.ApplyEvents(events[6:12])
	require.NoError(t, err)
	_, ok = ms.GetTimer("reminder")
	assert.False(t, ok)
}

func TestUnknownTimerClosureRejected(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events[:4])
	require.NoError(t, err)

	fired := &apihistory.HistoryEvent{
		EventID:   5,
		EventTime: events[3].EventTime,
		EventType: enums.EventTypeTimerFired,
		TimerFiredEventAttributes: &apihistory.TimerFiredEventAttributes{
			TimerID:        "nonexistent",
			StartedEventID: 4,
		},
	}
	_, err = ms.ApplyEvent(fired)
	var corruptionErr *persistence.DataCorruptionError
	require.ErrorAs(t, err, &corruptionErr)
}

func TestClosureCapturesResultAndStops(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events)
	require.NoError(t, err)

	info := ms.GetExecutionInfo()
	assert.Equal(t, enums.WorkflowExecutionStatusCompleted, info.Status)
	assert.Equal(t, types.Payload(`"done"`), info.CompletionResult)
	require.NotNil(t, info.CloseTime)
	assert.Equal(t, events[len(events)-1].EventTime, *info.CloseTime)
	assert.False(t, ms.IsWorkflowRunning())
	assert.False(t, ms.HasPendingWorkflowTask())
}

func TestCancelRequestedSetsFlag(t *testing.T) {
	events := sampleHistory(t)
	ms := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	_, err := ms.ApplyEvents(events[:4])
	require.NoError(t, err)
	assert.False(t, ms.IsCancelRequested())

	cancel := &apihistory.HistoryEvent{
		EventID:   5,
		EventTime: events[3].EventTime,
		EventType: enums.EventTypeWorkflowExecutionCancelRequested,
		WorkflowExecutionCancelRequestedEventAttributes: &apihistory.WorkflowExecutionCancelRequestedEventAttributes{
			Identity: "operator",
		},
	}
	_, err = ms.ApplyEvent(cancel)
	require.NoError(t, err)
	assert.True(t, ms.IsCancelRequested())
	assert.True(t, ms.IsWorkflowRunning())
}

func TestRebuildMatchesIncrementalApply(t *testing.T) {
	events := sampleHistory(t)

	incremental := NewMutableState(testNamespaceID, testWorkflowID, testRunID)
	for _, event := range events {
		_, err := incremental.ApplyEvent(event)
		require.NoError(t, err)
	}

	rebuilt, err := Rebuild(testNamespaceID, testWorkflowID, testRunID, events)
	require.NoError(t, err)
	assert.Equal(t, incremental, rebuilt)
	assert.Equal(t, int64(len(events))+1, rebuilt.GetNextEventID())
	assert.Equal(t, int64(len(events)), rebuilt.GetLastEventVersion())
}

func TestHistoryBuilderAssignsSequentialIDs(t *testing.T) {
	timeSource := clock.NewEventTimeSource().Update(time.Unix(200, 0).UTC())
	builder := NewHistoryBuilder(timeSource, 5)

	builder.AddWorkflowExecutionSignaledEvent("go", nil, "client")
	timeSource.Advance(time.Second)
	builder.AddWorkflowTaskScheduledEvent(types.TaskQueue{Name: "orders"}, 10*time.Second, 1)

	batch := builder.Batch()
	require.Len(t, batch, 2)
	assert.Equal(t, int64(5), batch[0].EventID)
	assert.Equal(t, int64(6), batch[1].EventID)
	assert.True(t, batch[1].EventTime.After(batch[0].EventTime))
}
