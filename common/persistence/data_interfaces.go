package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/common"
)

// CloseableStore is the base interface for all persistence stores.
type CloseableStore interface {
	Close()
}

type (
	// ShardInfo is the durable ownership record of one shard.
	ShardInfo struct {
		ShardID int32 `json:"shardId"`
		// Owner identifies the host currently holding the shard.
		Owner string `json:"owner"`
		// RangeID is the fencing token. Every acquisition increments it, and
		// every conditional shard write carries the last observed value.
		RangeID    int64     `json:"rangeId"`
		UpdateTime time.Time `json:"updateTime"`
	}

	// CurrentExecution is the record mapping a workflow id to its current
	// run.
	CurrentExecution struct {
		NamespaceID     string                        `json:"namespaceId"`
		WorkflowID      string                        `json:"workflowId"`
		RunID           string                        `json:"runId"`
		CreateRequestID string                        `json:"createRequestId"`
		Status          enums.WorkflowExecutionStatus `json:"status"`
		StartTime       time.Time                     `json:"startTime"`
		CloseTime       *time.Time                    `json:"closeTime,omitempty"`
		// HistoryVersion is the id of the last event appended to the current
		// run, maintained so list operations avoid reading histories.
		HistoryVersion int64 `json:"historyVersion"`
	}

	// TaskQueueInfo is the durable record of one matching task queue.
	TaskQueueInfo struct {
		NamespaceID string              `json:"namespaceId"`
		Name        string              `json:"name"`
		TaskType    enums.TaskType      `json:"taskType"`
		Kind        enums.TaskQueueKind `json:"kind"`
		// RangeID fences task queue writes the same way shard RangeID fences
		// shard writes, and carves out task id blocks.
		RangeID int64 `json:"rangeId"`
		// AckLevel is the task id below which all tasks are acknowledged.
		AckLevel   int64     `json:"ackLevel"`
		UpdateTime time.Time `json:"updateTime"`
	}

	// TaskInfo is the durable payload of one matching task. It points into
	// the owning run's history rather than carrying the work itself.
	TaskInfo struct {
		NamespaceID string         `json:"namespaceId"`
		WorkflowID  string         `json:"workflowId"`
		RunID       string         `json:"runId"`
		TaskID      int64          `json:"taskId"`
		TaskType    enums.TaskType `json:"taskType"`
		// ScheduledEventID is the history event this task dispatches.
		ScheduledEventID int64     `json:"scheduledEventId"`
		Attempt          int32     `json:"attempt"`
		CreateTime       time.Time `json:"createTime"`
	}

	// NamespaceDetail is the durable record of a namespace.
	NamespaceDetail struct {
		ID          string               `json:"id"`
		Name        string               `json:"name"`
		State       enums.NamespaceState `json:"state"`
		Description string               `json:"description,omitempty"`
		Retention   time.Duration        `json:"retention"`
		CreateTime  time.Time            `json:"createTime"`
		// NotificationVersion increases on every namespace change, letting
		// the registry detect staleness.
		NotificationVersion int64 `json:"notificationVersion"`
	}

	// ClusterMetadata is written once at first boot and checked on every
	// boot thereafter.
	ClusterMetadata struct {
		ClusterName       string    `json:"clusterName"`
		HistoryShardCount int32     `json:"historyShardCount"`
		InitializedTime   time.Time `json:"initializedTime"`
	}
)

type (
	GetOrCreateShardRequest struct {
		ShardID int32
		// InitialShardInfo seeds the record when the shard does not exist
		// yet. RangeID starts at the seeded value.
		InitialShardInfo *ShardInfo
	}

	GetOrCreateShardResponse struct {
		ShardInfo *ShardInfo
	}

	UpdateShardRequest struct {
		ShardInfo *ShardInfo
		// PreviousRangeID is the fencing condition. The write fails with
		// ShardOwnershipLostError when the stored RangeID differs.
		PreviousRangeID int64
	}

	// ShardStore is the storage interface for shard ownership records.
	ShardStore interface {
		CloseableStore
		GetOrCreateShard(ctx context.Context, request *GetOrCreateShardRequest) (*GetOrCreateShardResponse, error)
		UpdateShard(ctx context.Context, request *UpdateShardRequest) error
	}
)

type (
	CreateWorkflowExecutionRequest struct {
		ShardID int32
		// RangeID is the caller's view of shard ownership. Mismatch fails
		// with ShardOwnershipLostError.
		RangeID int64

		NamespaceID string
		WorkflowID  string
		RunID       string
		RequestID   string
		StartTime   time.Time

		// PreviousRunID, when set, requires the current record to point at
		// that closed run. Used when chaining continue-as-new and retry runs.
		PreviousRunID string

		// Events is the initial event batch, event ids dense from 1.
		Events []*history.HistoryEvent
	}

	CreateWorkflowExecutionResponse struct {
		HistoryVersion int64
	}

	AppendHistoryEventsRequest struct {
		ShardID int32
		RangeID int64

		NamespaceID string
		WorkflowID  string
		RunID       string

		// ExpectedVersion is the id of the last event the caller observed.
		// The append fails with ConditionFailedError when the stored history
		// has advanced past it, and nothing is written.
		ExpectedVersion int64
		Events          []*history.HistoryEvent

		// NewStatus updates the current record when the batch closes or
		// chains the workflow. Zero value means still running.
		NewStatus enums.WorkflowExecutionStatus
		CloseTime *time.Time
	}

	AppendHistoryEventsResponse struct {
		HistoryVersion int64
	}

	GetCurrentExecutionRequest struct {
		NamespaceID string
		WorkflowID  string
	}

	GetCurrentExecutionResponse struct {
		CurrentExecution *CurrentExecution
	}

	ReadHistoryEventsRequest struct {
		NamespaceID string
		WorkflowID  string
		RunID       string
		// MinEventID is inclusive; events are returned in ascending order.
		MinEventID    int64
		PageSize      int
		NextPageToken []byte
	}

	ReadHistoryEventsResponse struct {
		Events []*history.HistoryEvent
		// HistoryVersion is the id of the last event in the full history at
		// read time.
		HistoryVersion int64
		NextPageToken  []byte
	}

	ListCurrentExecutionsRequest struct {
		NamespaceID   string
		PageSize      int
		NextPageToken []byte
	}

	ListCurrentExecutionsResponse struct {
		Executions    []*CurrentExecution
		NextPageToken []byte
	}

	// ExecutionStore is the storage interface for workflow histories and
	// current-run records. Histories are append-only; the conditional append
	// is the sole concurrency control for an execution.
	ExecutionStore interface {
		CloseableStore
		CreateWorkflowExecution(ctx context.Context, request *CreateWorkflowExecutionRequest) (*CreateWorkflowExecutionResponse, error)
		AppendHistoryEvents(ctx context.Context, request *AppendHistoryEventsRequest) (*AppendHistoryEventsResponse, error)
		GetCurrentExecution(ctx context.Context, request *GetCurrentExecutionRequest) (*GetCurrentExecutionResponse, error)
		ReadHistoryEvents(ctx context.Context, request *ReadHistoryEventsRequest) (*ReadHistoryEventsResponse, error)
		ListCurrentExecutions(ctx context.Context, request *ListCurrentExecutionsRequest) (*ListCurrentExecutionsResponse, error)
	}
)

type (
	CreateTaskQueueRequest struct {
		TaskQueueInfo *TaskQueueInfo
	}

	GetTaskQueueRequest struct {
		NamespaceID string
		Name        string
		TaskType    enums.TaskType
	}

	GetTaskQueueResponse struct {
		TaskQueueInfo *TaskQueueInfo
	}

	UpdateTaskQueueRequest struct {
		TaskQueueInfo *TaskQueueInfo
		// PreviousRangeID fences the update.
		PreviousRangeID int64
	}

	CreateTasksRequest struct {
		NamespaceID string
		Name        string
		TaskType    enums.TaskType
		// RangeID is the writer's view of queue ownership. Mismatch fails
		// with ConditionFailedError and nothing is written.
		RangeID int64
		Tasks   []*TaskInfo
	}

	GetTasksRequest struct {
		NamespaceID string
		Name        string
		TaskType    enums.TaskType
		// InclusiveMinTaskID and ExclusiveMaxTaskID bound the read.
		InclusiveMinTaskID int64
		ExclusiveMaxTaskID int64
		PageSize           int
	}

	GetTasksResponse struct {
		Tasks []*TaskInfo
	}

	CompleteTasksLessThanRequest struct {
		NamespaceID        string
		TaskQueueName      string
		TaskType           enums.TaskType
		ExclusiveMaxTaskID int64
		Limit              int
	}

	DeleteTaskQueueRequest struct {
		NamespaceID string
		Name        string
		TaskType    enums.TaskType
	}

	// TaskStore is the storage interface for matching task queues.
	TaskStore interface {
		CloseableStore
		CreateTaskQueue(ctx context.Context, request *CreateTaskQueueRequest) error
		GetTaskQueue(ctx context.Context, request *GetTaskQueueRequest) (*GetTaskQueueResponse, error)
		UpdateTaskQueue(ctx context.Context, request *UpdateTaskQueueRequest) error
		CreateTasks(ctx context.Context, request *CreateTasksRequest) error
		GetTasks(ctx context.Context, request *GetTasksRequest) (*GetTasksResponse, error)
		CompleteTasksLessThan(ctx context.Context, request *CompleteTasksLessThanRequest) (int, error)
		DeleteTaskQueue(ctx context.Context, request *DeleteTaskQueueRequest) error
	}
)

type (
	CreateNamespaceRequest struct {
		Namespace *NamespaceDetail
	}

	GetNamespaceRequest struct {
		// Exactly one of ID or Name must be set.
		ID   string
		Name string
	}

	GetNamespaceResponse struct {
		Namespace *NamespaceDetail
	}

	UpdateNamespaceRequest struct {
		Namespace *NamespaceDetail
		// ExpectedNotificationVersion fences concurrent namespace updates.
		ExpectedNotificationVersion int64
	}

	ListNamespacesRequest struct {
		PageSize      int
		NextPageToken []byte
	}

	ListNamespacesResponse struct {
		Namespaces    []*NamespaceDetail
		NextPageToken []byte
	}

	// MetadataStore is the storage interface for namespaces and cluster
	// metadata.
	MetadataStore interface {
		CloseableStore
		CreateNamespace(ctx context.Context, request *CreateNamespaceRequest) error
		GetNamespace(ctx context.Context, request *GetNamespaceRequest) (*GetNamespaceResponse, error)
		UpdateNamespace(ctx context.Context, request *UpdateNamespaceRequest) error
		ListNamespaces(ctx context.Context, request *ListNamespacesRequest) (*ListNamespacesResponse, error)

		GetClusterMetadata(ctx context.Context) (*ClusterMetadata, error)
		SaveClusterMetadata(ctx context.Context, metadata *ClusterMetadata) error
	}
)

// DataStoreFactory creates the concrete stores for one backend.
type DataStoreFactory interface {
	NewShardStore() (ShardStore, error)
	NewExecutionStore() (ExecutionStore, error)
	NewTaskStore() (TaskStore, error)
	NewMetadataStore() (MetadataStore, error)
	Close()
}

// FirstEventID aliases the id of the first event in a history.
const FirstEventID = common.FirstEventID

// EmptyVersion is the history version before any event is appended.
const EmptyVersion = common.EmptyVersion

func (t *TaskInfo) String() string {
	return fmt.Sprintf("{NamespaceID: %v, WorkflowID: %v, RunID: %v, TaskID: %v, TaskType: %v, ScheduledEventID: %v, Attempt: %v}",
		t.NamespaceID, t.WorkflowID, t.RunID, t.TaskID, t.TaskType, t.ScheduledEventID, t.Attempt)
}
