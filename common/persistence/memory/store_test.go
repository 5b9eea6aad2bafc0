package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

func newTestStores(t *testing.T) (persistence.ShardStore, persistence.ExecutionStore, persistence.TaskStore) {
	t.Helper()
	factory := NewFactory()
	shardStore, err := factory.NewShardStore()
	require.NoError(t, err)
	executionStore, err := factory.NewExecutionStore()
	require.NoError(t, err)
	taskStore, err := factory.NewTaskStore()
	require.NoError(t, err)
	return shardStore, executionStore, taskStore
}

func acquireShard(t *testing.T, shardStore persistence.ShardStore, shardID int32, owner string) *persistence.ShardInfo {
	t.Helper()
	ctx := context.Background()
	resp, err := shardStore.GetOrCreateShard(ctx, &persistence.GetOrCreateShardRequest{
		ShardID: shardID,
		InitialShardInfo: &persistence.ShardInfo{
			ShardID:    shardID,
			RangeID:    0,
			UpdateTime: time.Now().UTC(),
		},
	})
	require.NoError(t, err)

	info := resp.ShardInfo
	previous := info.RangeID
	info.RangeID++
	info.Owner = owner
	require.NoError(t, shardStore.UpdateShard(ctx, &persistence.UpdateShardRequest{
		ShardInfo:       info,
		PreviousRangeID: previous,
	}))
	return info
}

func startedEvent(eventID int64) *history.HistoryEvent {
	return &history.HistoryEvent{
		EventID:   eventID,
		EventTime: time.Now().UTC(),
		EventType: enums.EventTypeWorkflowExecutionStarted,
		WorkflowExecutionStartedEventAttributes: &history.WorkflowExecutionStartedEventAttributes{},
	}
}

func signaledEvent(eventID int64) *history.HistoryEvent {
	return &history.HistoryEvent{
		EventID:   eventID,
		EventTime: time.Now().UTC(),
		EventType: enums.EventTypeWorkflowExecutionSignaled,
		WorkflowExecutionSignaledEventAttributes: &history.WorkflowExecutionSignaledEventAttributes{
			SignalName: "poke",
		},
	}
}

func createExecution(
	t *testing.T,
	executionStore persistence.ExecutionStore,
	shard *persistence.ShardInfo,
	workflowID string,
	runID string,
) {
	t.Helper()
	_, err := executionStore.CreateWorkflowExecution(context.Background(), &persistence.CreateWorkflowExecutionRequest{
		ShardID:     shard.ShardID,
		RangeID:     shard.RangeID,
		NamespaceID: "ns",
		WorkflowID:  workflowID,
		RunID:       runID,
		RequestID:   "req-" + runID,
		StartTime:   time.Now().UTC(),
		Events:      []*history.HistoryEvent{startedEvent(1)},
	})
	require.NoError(t, err)
}

func TestShardFencingRejectsStaleRangeID(t *testing.T) {
	shardStore, _, _ := newTestStores(t)
	ctx := context.Background()

	info := acquireShard(t, shardStore, 1, "host-a")

	// A competing host re-acquires the shard and bumps the range id.
	stolen := *info
	stolen.RangeID++
	stolen.Owner = "host-b"
	require.NoError(t, shardStore.UpdateShard(ctx, &persistence.UpdateShardRequest{
		ShardInfo:       &stolen,
		PreviousRangeID: info.RangeID,
	}))

	// The original owner's renewal now carries a stale token.
	err := shardStore.UpdateShard(ctx, &persistence.UpdateShardRequest{
		ShardInfo:       info,
		PreviousRangeID: info.RangeID,
	})
	var ownershipLost *persistence.ShardOwnershipLostError
	require.ErrorAs(t, err, &ownershipLost)
}

func TestConcurrentShardAcquisitionSingleWinner(t *testing.T) {
	shardStore, executionStore, _ := newTestStores(t)
	ctx := context.Background()

	hostA := acquireShard(t, shardStore, 1, "host-a")
	hostB := acquireShard(t, shardStore, 1, "host-b")
	require.Greater(t, hostB.RangeID, hostA.RangeID)

	// The loser's conditional write against the shard fails.
	_, err := executionStore.CreateWorkflowExecution(ctx, &persistence.CreateWorkflowExecutionRequest{
		ShardID:     1,
		RangeID:     hostA.RangeID,
		NamespaceID: "ns",
		WorkflowID:  "wf",
		RunID:       "run-1",
		RequestID:   "req-1",
		StartTime:   time.Now().UTC(),
		Events:      []*history.HistoryEvent{startedEvent(1)},
	})
	var ownershipLost *persistence.ShardOwnershipLostError
	require.ErrorAs(t, err, &ownershipLost)

	// The winner's write goes through.
	createExecution(t, executionStore, hostB, "wf", "run-1")
}

func TestConditionalAppendStaleVersion(t *testing.T) {
	shardStore, executionStore, _ := newTestStores(t)
	ctx := context.Background()

	shard := acquireShard(t, shardStore, 1, "host-a")
	createExecution(t, executionStore, shard, "wf", "run-1")

	append1 := &persistence.AppendHistoryEventsRequest{
		ShardID:         shard.ShardID,
		RangeID:         shard.RangeID,
		NamespaceID:     "ns",
		WorkflowID:      "wf",
		RunID:           "run-1",
		ExpectedVersion: 1,
		Events:          []*history.HistoryEvent{signaledEvent(2)},
	}
	resp, err := executionStore.AppendHistoryEvents(ctx, append1)
	require.NoError(t, err)
	require.Equal(t, int64(2), resp.HistoryVersion)

	// Same expected version again: the history advanced, so the append is
	// rejected and nothing is written.
	_, err = executionStore.AppendHistoryEvents(ctx, append1)
	var conditionFailed *persistence.ConditionFailedError
	require.ErrorAs(t, err, &conditionFailed)

	readResp, err := executionStore.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
		NamespaceID: "ns",
		WorkflowID:  "wf",
		RunID:       "run-1",
		MinEventID:  1,
		PageSize:    10,
	})
	require.NoError(t, err)
	require.Len(t, readResp.Events, 2)
	require.Equal(t, int64(2), readResp.HistoryVersion)
}

func TestCreateDuplicateRunningWorkflow(t *testing.T) {
	shardStore, executionStore, _ := newTestStores(t)
	ctx := context.Background()

	shard := acquireShard(t, shardStore, 1, "host-a")
	createExecution(t, executionStore, shard, "wf", "run-1")

	_, err := executionStore.CreateWorkflowExecution(ctx, &persistence.CreateWorkflowExecutionRequest{
		ShardID:     shard.ShardID,
		RangeID:     shard.RangeID,
		NamespaceID: "ns",
		WorkflowID:  "wf",
		RunID:       "run-2",
		RequestID:   "req-2",
		StartTime:   time.Now().UTC(),
		Events:      []*history.HistoryEvent{startedEvent(1)},
	})
	var currentConditionFailed *persistence.CurrentWorkflowConditionFailedError
	require.ErrorAs(t, err, &currentConditionFailed)
	require.Equal(t, "run-1", currentConditionFailed.RunID)
	require.Equal(t, "req-run-1", currentConditionFailed.RequestID)
}

func TestCreateChainedRunAfterClose(t *testing.T) {
	shardStore, executionStore, _ := newTestStores(t)
	ctx := context.Background()

	shard := acquireShard(t, shardStore, 1, "host-a")
	createExecution(t, executionStore, shard, "wf", "run-1")

	closeTime := time.Now().UTC()
	_, err := executionStore.AppendHistoryEvents(ctx, &persistence.AppendHistoryEventsRequest{
		ShardID:         shard.ShardID,
		RangeID:         shard.RangeID,
		NamespaceID:     "ns",
		WorkflowID:      "wf",
		RunID:           "run-1",
		ExpectedVersion: 1,
		Events:          []*history.HistoryEvent{signaledEvent(2)},
		NewStatus:       enums.WorkflowExecutionStatusContinuedAsNew,
		CloseTime:       &closeTime,
	})
	require.NoError(t, err)

	// Chaining against the wrong previous run id fails.
	_, err = executionStore.CreateWorkflowExecution(ctx, &persistence.CreateWorkflowExecutionRequest{
		ShardID:       shard.ShardID,
		RangeID:       shard.RangeID,
		NamespaceID:   "ns",
		WorkflowID:    "wf",
		RunID:         "run-2",
		RequestID:     "req-2",
		StartTime:     time.Now().UTC(),
		PreviousRunID: "run-0",
		Events:        []*history.HistoryEvent{startedEvent(1)},
	})
	var conditionFailed *persistence.ConditionFailedError
	require.ErrorAs(t, err, &conditionFailed)

	_, err = executionStore.CreateWorkflowExecution(ctx, &persistence.CreateWorkflowExecutionRequest{
		ShardID:       shard.ShardID,
		RangeID:       shard.RangeID,
		NamespaceID:   "ns",
		WorkflowID:    "wf",
		RunID:         "run-2",
		RequestID:     "req-2",
		StartTime:     time.Now().UTC(),
		PreviousRunID: "run-1",
		Events:        []*history.HistoryEvent{startedEvent(1)},
	})
	require.NoError(t, err)

	cur, err := executionStore.GetCurrentExecution(ctx, &persistence.GetCurrentExecutionRequest{
		NamespaceID: "ns",
		WorkflowID:  "wf",
	})
	require.NoError(t, err)
	require.Equal(t, "run-2", cur.CurrentExecution.RunID)
	require.Equal(t, enums.WorkflowExecutionStatusRunning, cur.CurrentExecution.Status)
}

func TestReadHistoryEventsPagination(t *testing.T) {
	shardStore, executionStore, _ := newTestStores(t)
	ctx := context.Background()

	shard := acquireShard(t, shardStore, 1, "host-a")
	createExecution(t, executionStore, shard, "wf", "run-1")

	for eventID := int64(2); eventID <= 5; eventID++ {
		_, err := executionStore.AppendHistoryEvents(ctx, &persistence.AppendHistoryEventsRequest{
			ShardID:         shard.ShardID,
			RangeID:         shard.RangeID,
			NamespaceID:     "ns",
			WorkflowID:      "wf",
			RunID:           "run-1",
			ExpectedVersion: eventID - 1,
			Events:          []*history.HistoryEvent{signaledEvent(eventID)},
		})
		require.NoError(t, err)
	}

	var got []int64
	var token []byte
	for {
		resp, err := executionStore.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
			NamespaceID:   "ns",
			WorkflowID:    "wf",
			RunID:         "run-1",
			MinEventID:    1,
			PageSize:      2,
			NextPageToken: token,
		})
		require.NoError(t, err)
		for _, event := range resp.Events {
			got = append(got, event.EventID)
		}
		token = resp.NextPageToken
		if len(token) == 0 {
			break
		}
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestTaskQueueRangeIDFencing(t *testing.T) {
	_, _, taskStore := newTestStores(t)
	ctx := context.Background()

	info := &persistence.TaskQueueInfo{
		NamespaceID: "ns",
		Name:        "orders",
		TaskType:    enums.TaskTypeActivity,
		RangeID:     1,
		UpdateTime:  time.Now().UTC(),
	}
	require.NoError(t, taskStore.CreateTaskQueue(ctx, &persistence.CreateTaskQueueRequest{TaskQueueInfo: info}))

	// Renew the lease: range id 1 -> 2.
	renewed := *info
	renewed.RangeID = 2
	require.NoError(t, taskStore.UpdateTaskQueue(ctx, &persistence.UpdateTaskQueueRequest{
		TaskQueueInfo:   &renewed,
		PreviousRangeID: 1,
	}))

	// Writes carrying the old range id are rejected.
	err := taskStore.CreateTasks(ctx, &persistence.CreateTasksRequest{
		NamespaceID: "ns",
		Name:        "orders",
		TaskType:    enums.TaskTypeActivity,
		RangeID:     1,
		Tasks: []*persistence.TaskInfo{
			{NamespaceID: "ns", WorkflowID: "wf", RunID: "run-1", TaskID: 100},
		},
	})
	var conditionFailed *persistence.ConditionFailedError
	require.ErrorAs(t, err, &conditionFailed)

	require.NoError(t, taskStore.CreateTasks(ctx, &persistence.CreateTasksRequest{
		NamespaceID: "ns",
		Name:        "orders",
		TaskType:    enums.TaskTypeActivity,
		RangeID:     2,
		Tasks: []*persistence.TaskInfo{
			{NamespaceID: "ns", WorkflowID: "wf", RunID: "run-1", TaskID: 100},
			{NamespaceID: "ns", WorkflowID: "wf", RunID: "run-1", TaskID: 101},
		},
	}))

	resp, err := taskStore.GetTasks(ctx, &persistence.GetTasksRequest{
		NamespaceID:        "ns",
		Name:               "orders",
		TaskType:           enums.TaskTypeActivity,
		InclusiveMinTaskID: 0,
		ExclusiveMaxTaskID: 1000,
		PageSize:           10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Tasks, 2)

	deleted, err := taskStore.CompleteTasksLessThan(ctx, &persistence.CompleteTasksLessThanRequest{
		NamespaceID:        "ns",
		TaskQueueName:      "orders",
		TaskType:           enums.TaskTypeActivity,
		ExclusiveMaxTaskID: 101,
	})
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
}

func TestGetCurrentExecutionNotFound(t *testing.T) {
	_, executionStore, _ := newTestStores(t)

	_, err := executionStore.GetCurrentExecution(context.Background(), &persistence.GetCurrentExecutionRequest{
		NamespaceID: "ns",
		WorkflowID:  "missing",
	})
	var notFound *serviceerror.NotFound
	require.ErrorAs(t, err, &notFound)
}
