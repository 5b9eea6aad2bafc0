package sql_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common/config"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/sql"
	_ "github.com/strandhq/strand/common/persistence/sql/sqlite"
)

func newSQLiteFactory(t *testing.T) *sql.Factory {
	t.Helper()
	cfg := &config.SQL{
		PluginName:   "sqlite",
		DatabaseName: filepath.Join(t.TempDir(), "strand.db"),
	}
	logger := log.NewTestLogger()
	factory, err := sql.NewFactory(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(factory.Close)

	schemaDir := filepath.Join("..", "..", "..", "schema", "sqlite")
	require.NoError(t, sql.SetupSchema(context.Background(), factory.DB(), schemaDir, logger))
	return factory
}

func sqliteAcquireShard(t *testing.T, shardStore persistence.ShardStore, shardID int32, owner string) *persistence.ShardInfo {
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

func sqliteStartedEvent(eventID int64) *history.HistoryEvent {
	return &history.HistoryEvent{
		EventID:   eventID,
		EventTime: time.Now().UTC(),
		EventType: enums.EventTypeWorkflowExecutionStarted,
		WorkflowExecutionStartedEventAttributes: &history.WorkflowExecutionStartedEventAttributes{},
	}
}

func sqliteSignaledEvent(eventID int64) *history.HistoryEvent {
	return &history.HistoryEvent{
		EventID:   eventID,
		EventTime: time.Now().UTC(),
		EventType: enums.EventTypeWorkflowExecutionSignaled,
		WorkflowExecutionSignaledEventAttributes: &history.WorkflowExecutionSignaledEventAttributes{
			SignalName: "poke",
		},
	}
}

func TestSQLiteShardFencing(t *testing.T) {
	factory := newSQLiteFactory(t)
	shardStore, err := factory.NewShardStore()
	require.NoError(t, err)
	ctx := context.Background()

	info := sqliteAcquireShard(t, shardStore, 1, "host-a")

	stolen := *info
	stolen.RangeID++
	stolen.Owner = "host-b"
	require.NoError(t, shardStore.UpdateShard(ctx, &persistence.UpdateShardRequest{
		ShardInfo:       &stolen,
		PreviousRangeID: info.RangeID,
	}))

	err = shardStore.UpdateShard(ctx, &persistence.UpdateShardRequest{
		ShardInfo:       info,
		PreviousRangeID: info.RangeID,
	})
	var ownershipLost *persistence.ShardOwnershipLostError
	require.ErrorAs(t, err, &ownershipLost)
}

func TestSQLiteHistoryRoundTrip(t *testing.T) {
	factory := newSQLiteFactory(t)
	shardStore, err := factory.NewShardStore()
	require.NoError(t, err)
	executionStore, err := factory.NewExecutionStore()
	require.NoError(t, err)
	ctx := context.Background()

	shard := sqliteAcquireShard(t, shardStore, 1, "host-a")

	_, err = executionStore.CreateWorkflowExecution(ctx, &persistence.CreateWorkflowExecutionRequest{
		ShardID:     shard.ShardID,
		RangeID:     shard.RangeID,
		NamespaceID: "ns",
		WorkflowID:  "wf",
		RunID:       "run-1",
		RequestID:   "req-1",
		StartTime:   time.Now().UTC(),
		Events:      []*history.HistoryEvent{sqliteStartedEvent(1)},
	})
	require.NoError(t, err)

	appendResp, err := executionStore.AppendHistoryEvents(ctx, &persistence.AppendHistoryEventsRequest{
		ShardID:         shard.ShardID,
		RangeID:         shard.RangeID,
		NamespaceID:     "ns",
		WorkflowID:      "wf",
		RunID:           "run-1",
		ExpectedVersion: 1,
		Events:          []*history.HistoryEvent{sqliteSignaledEvent(2), sqliteSignaledEvent(3)},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), appendResp.HistoryVersion)

	// A second append against the already consumed version must not write.
	_, err = executionStore.AppendHistoryEvents(ctx, &persistence.AppendHistoryEventsRequest{
		ShardID:         shard.ShardID,
		RangeID:         shard.RangeID,
		NamespaceID:     "ns",
		WorkflowID:      "wf",
		RunID:           "run-1",
		ExpectedVersion: 1,
		Events:          []*history.HistoryEvent{sqliteSignaledEvent(2)},
	})
	var conditionFailed *persistence.ConditionFailedError
	require.ErrorAs(t, err, &conditionFailed)

	readResp, err := executionStore.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
		NamespaceID: "ns",
		WorkflowID:  "wf",
		RunID:       "run-1",
		MinEventID:  persistence.FirstEventID,
		PageSize:    10,
	})
	require.NoError(t, err)
	require.Len(t, readResp.Events, 3)
	require.Equal(t, enums.EventTypeWorkflowExecutionStarted, readResp.Events[0].EventType)
	require.Equal(t, "poke", readResp.Events[1].WorkflowExecutionSignaledEventAttributes.SignalName)
	require.Empty(t, readResp.NextPageToken)

	// Paged read walks the same history two events at a time.
	page1, err := executionStore.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
		NamespaceID: "ns",
		WorkflowID:  "wf",
		RunID:       "run-1",
		MinEventID:  persistence.FirstEventID,
		PageSize:    2,
	})
	require.NoError(t, err)
	require.Len(t, page1.Events, 2)
	require.NotEmpty(t, page1.NextPageToken)

	page2, err := executionStore.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
		NamespaceID:   "ns",
		WorkflowID:    "wf",
		RunID:         "run-1",
		PageSize:      2,
		NextPageToken: page1.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, page2.Events, 1)
	require.Equal(t, int64(3), page2.Events[0].EventID)

	closeTime := time.Now().UTC()
	_, err = executionStore.AppendHistoryEvents(ctx, &persistence.AppendHistoryEventsRequest{
		ShardID:         shard.ShardID,
		RangeID:         shard.RangeID,
		NamespaceID:     "ns",
		WorkflowID:      "wf",
		RunID:           "run-1",
		ExpectedVersion: 3,
		Events: []*history.HistoryEvent{{
			EventID:   4,
			EventTime: closeTime,
			EventType: enums.EventTypeWorkflowExecutionCompleted,
			WorkflowExecutionCompletedEventAttributes: &history.WorkflowExecutionCompletedEventAttributes{},
		}},
		NewStatus: enums.WorkflowExecutionStatusCompleted,
		CloseTime: &closeTime,
	})
	require.NoError(t, err)

	cur, err := executionStore.GetCurrentExecution(ctx, &persistence.GetCurrentExecutionRequest{
		NamespaceID: "ns",
		WorkflowID:  "wf",
	})
	require.NoError(t, err)
	require.Equal(t, enums.WorkflowExecutionStatusCompleted, cur.CurrentExecution.Status)
	require.NotNil(t, cur.CurrentExecution.CloseTime)
	require.Equal(t, int64(4), cur.CurrentExecution.HistoryVersion)
}

func TestSQLiteDuplicateStartRejected(t *testing.T) {
	factory := newSQLiteFactory(t)
	shardStore, err := factory.NewShardStore()
	require.NoError(t, err)
	executionStore, err := factory.NewExecutionStore()
	require.NoError(t, err)
	ctx := context.Background()

	shard := sqliteAcquireShard(t, shardStore, 1, "host-a")

	start := func(runID string) error {
		_, err := executionStore.CreateWorkflowExecution(ctx, &persistence.CreateWorkflowExecutionRequest{
			ShardID:     shard.ShardID,
			RangeID:     shard.RangeID,
			NamespaceID: "ns",
			WorkflowID:  "wf",
			RunID:       runID,
			RequestID:   "req-" + runID,
			StartTime:   time.Now().UTC(),
			Events:      []*history.HistoryEvent{sqliteStartedEvent(1)},
		})
		return err
	}

	require.NoError(t, start("run-1"))
	err = start("run-2")
	var currentFailed *persistence.CurrentWorkflowConditionFailedError
	require.ErrorAs(t, err, &currentFailed)
	require.Equal(t, "run-1", currentFailed.RunID)
}

func TestSQLiteTaskQueueRoundTrip(t *testing.T) {
	factory := newSQLiteFactory(t)
	taskStore, err := factory.NewTaskStore()
	require.NoError(t, err)
	ctx := context.Background()

	queue := &persistence.TaskQueueInfo{
		NamespaceID: "ns",
		Name:        "orders",
		TaskType:    enums.TaskTypeActivity,
		Kind:        enums.TaskQueueKindNormal,
		RangeID:     1,
		AckLevel:    0,
		UpdateTime:  time.Now().UTC(),
	}
	require.NoError(t, taskStore.CreateTaskQueue(ctx, &persistence.CreateTaskQueueRequest{TaskQueueInfo: queue}))

	require.NoError(t, taskStore.CreateTasks(ctx, &persistence.CreateTasksRequest{
		NamespaceID: "ns",
		Name:        "orders",
		TaskType:    enums.TaskTypeActivity,
		RangeID:     1,
		Tasks: []*persistence.TaskInfo{
			{NamespaceID: "ns", WorkflowID: "wf", RunID: "run-1", TaskID: 1, TaskType: enums.TaskTypeActivity, ScheduledEventID: 5, Attempt: 1, CreateTime: time.Now().UTC()},
			{NamespaceID: "ns", WorkflowID: "wf", RunID: "run-1", TaskID: 2, TaskType: enums.TaskTypeActivity, ScheduledEventID: 6, Attempt: 1, CreateTime: time.Now().UTC()},
		},
	}))

	// A writer holding a stale range id cannot enqueue.
	err = taskStore.CreateTasks(ctx, &persistence.CreateTasksRequest{
		NamespaceID: "ns",
		Name:        "orders",
		TaskType:    enums.TaskTypeActivity,
		RangeID:     0,
		Tasks: []*persistence.TaskInfo{
			{NamespaceID: "ns", WorkflowID: "wf", RunID: "run-1", TaskID: 3, TaskType: enums.TaskTypeActivity, ScheduledEventID: 7, Attempt: 1, CreateTime: time.Now().UTC()},
		},
	})
	var conditionFailed *persistence.ConditionFailedError
	require.ErrorAs(t, err, &conditionFailed)

	tasks, err := taskStore.GetTasks(ctx, &persistence.GetTasksRequest{
		NamespaceID:        "ns",
		Name:               "orders",
		TaskType:           enums.TaskTypeActivity,
		InclusiveMinTaskID: 0,
		ExclusiveMaxTaskID: 100,
		PageSize:           10,
	})
	require.NoError(t, err)
	require.Len(t, tasks.Tasks, 2)
	require.Equal(t, int64(5), tasks.Tasks[0].ScheduledEventID)

	completed, err := taskStore.CompleteTasksLessThan(ctx, &persistence.CompleteTasksLessThanRequest{
		NamespaceID:        "ns",
		TaskQueueName:      "orders",
		TaskType:           enums.TaskTypeActivity,
		ExclusiveMaxTaskID: 2,
		Limit:              10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	tasks, err = taskStore.GetTasks(ctx, &persistence.GetTasksRequest{
		NamespaceID:        "ns",
		Name:               "orders",
		TaskType:           enums.TaskTypeActivity,
		InclusiveMinTaskID: 0,
		ExclusiveMaxTaskID: 100,
		PageSize:           10,
	})
	require.NoError(t, err)
	require.Len(t, tasks.Tasks, 1)
	require.Equal(t, int64(2), tasks.Tasks[0].TaskID)

	queue.RangeID = 2
	queue.AckLevel = 2
	require.NoError(t, taskStore.UpdateTaskQueue(ctx, &persistence.UpdateTaskQueueRequest{
		TaskQueueInfo:   queue,
		PreviousRangeID: 1,
	}))

	err = taskStore.UpdateTaskQueue(ctx, &persistence.UpdateTaskQueueRequest{
		TaskQueueInfo:   queue,
		PreviousRangeID: 1,
	})
	require.ErrorAs(t, err, &conditionFailed)
}

func TestSQLiteNamespaceAndClusterMetadata(t *testing.T) {
	factory := newSQLiteFactory(t)
	metadataStore, err := factory.NewMetadataStore()
	require.NoError(t, err)
	ctx := context.Background()

	ns := &persistence.NamespaceDetail{
		ID:         "ns-id",
		Name:       "orders-ns",
		State:      enums.NamespaceStateRegistered,
		Retention:  24 * time.Hour,
		CreateTime: time.Now().UTC(),
	}
	require.NoError(t, metadataStore.CreateNamespace(ctx, &persistence.CreateNamespaceRequest{Namespace: ns}))

	got, err := metadataStore.GetNamespace(ctx, &persistence.GetNamespaceRequest{Name: "orders-ns"})
	require.NoError(t, err)
	require.Equal(t, "ns-id", got.Namespace.ID)
	require.Equal(t, 24*time.Hour, got.Namespace.Retention)

	updated := got.Namespace
	updated.Description = "order processing"
	require.NoError(t, metadataStore.UpdateNamespace(ctx, &persistence.UpdateNamespaceRequest{
		Namespace:                   updated,
		ExpectedNotificationVersion: got.Namespace.NotificationVersion,
	}))

	// Replaying the same expected version loses the fence.
	err = metadataStore.UpdateNamespace(ctx, &persistence.UpdateNamespaceRequest{
		Namespace:                   updated,
		ExpectedNotificationVersion: got.Namespace.NotificationVersion,
	})
	var conditionFailed *persistence.ConditionFailedError
	require.ErrorAs(t, err, &conditionFailed)

	got, err = metadataStore.GetNamespace(ctx, &persistence.GetNamespaceRequest{ID: "ns-id"})
	require.NoError(t, err)
	require.Equal(t, "order processing", got.Namespace.Description)

	initialized := time.Now().UTC()
	require.NoError(t, metadataStore.SaveClusterMetadata(ctx, &persistence.ClusterMetadata{
		ClusterName:       "active",
		HistoryShardCount: 4,
		InitializedTime:   initialized,
	}))
	metadata, err := metadataStore.GetClusterMetadata(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(4), metadata.HistoryShardCount)
}
