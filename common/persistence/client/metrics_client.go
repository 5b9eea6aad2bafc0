package client

import (
	"context"
	"errors"
	"time"

	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
)

type (
	shardMetricsClient struct {
		store   persistence.ShardStore
		handler metrics.Handler
	}

	executionMetricsClient struct {
		store   persistence.ExecutionStore
		handler metrics.Handler
	}

	taskMetricsClient struct {
		store   persistence.TaskStore
		handler metrics.Handler
	}

	metadataMetricsClient struct {
		store   persistence.MetadataStore
		handler metrics.Handler
	}
)

// NewShardMetricsClient wraps a shard store with request metrics.
func NewShardMetricsClient(store persistence.ShardStore, handler metrics.Handler) persistence.ShardStore {
	return &shardMetricsClient{store: store, handler: handler}
}

// NewExecutionMetricsClient wraps an execution store with request metrics.
func NewExecutionMetricsClient(store persistence.ExecutionStore, handler metrics.Handler) persistence.ExecutionStore {
	return &executionMetricsClient{store: store, handler: handler}
}

// NewTaskMetricsClient wraps a task store with request metrics.
func NewTaskMetricsClient(store persistence.TaskStore, handler metrics.Handler) persistence.TaskStore {
	return &taskMetricsClient{store: store, handler: handler}
}

// NewMetadataMetricsClient wraps a metadata store with request metrics.
func NewMetadataMetricsClient(store persistence.MetadataStore, handler metrics.Handler) persistence.MetadataStore {
	return &metadataMetricsClient{store: store, handler: handler}
}

func recordPersistenceRequest(handler metrics.Handler, operation string, start time.Time, err error) {
	handler = handler.WithTags(metrics.OperationTag(operation))
	metrics.PersistenceRequests.With(handler).Record(1)
	metrics.PersistenceLatency.With(handler).Record(time.Since(start))
	if err == nil {
		return
	}

	var conditionFailed *persistence.ConditionFailedError
	var currentConditionFailed *persistence.CurrentWorkflowConditionFailedError
	var shardOwnershipLost *persistence.ShardOwnershipLostError
	switch {
	case errors.As(err, &conditionFailed), errors.As(err, &currentConditionFailed):
		metrics.PersistenceErrConflict.With(handler).Record(1)
	case errors.As(err, &shardOwnershipLost):
		metrics.PersistenceErrShardOwnershipLost.With(handler).Record(1)
	default:
		metrics.PersistenceFailures.With(handler).Record(1)
	}
}

func (c *shardMetricsClient) GetOrCreateShard(
	ctx context.Context,
	request *persistence.GetOrCreateShardRequest,
) (_ *persistence.GetOrCreateShardResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "GetOrCreateShard", start, err) }()
	return c.store.GetOrCreateShard(ctx, request)
}

func (c *shardMetricsClient) UpdateShard(
	ctx context.Context,
	request *persistence.UpdateShardRequest,
) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "UpdateShard", start, err) }()
	return c.store.UpdateShard(ctx, request)
}

func (c *shardMetricsClient) Close() {
	c.store.Close()
}

func (c *executionMetricsClient) CreateWorkflowExecution(
	ctx context.Context,
	request *persistence.CreateWorkflowExecutionRequest,
) (_ *persistence.CreateWorkflowExecutionResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "CreateWorkflowExecution", start, err) }()
	return c.store.CreateWorkflowExecution(ctx, request)
}

func (c *executionMetricsClient) AppendHistoryEvents(
	ctx context.Context,
	request *persistence.AppendHistoryEventsRequest,
) (_ *persistence.AppendHistoryEventsResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "AppendHistoryEvents", start, err) }()
	return c.store.AppendHistoryEvents(ctx, request)
}

func (c *executionMetricsClient) GetCurrentExecution(
	ctx context.Context,
	request *persistence.GetCurrentExecutionRequest,
) (_ *persistence.GetCurrentExecutionResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "GetCurrentExecution", start, err) }()
	return c.store.GetCurrentExecution(ctx, request)
}

func (c *executionMetricsClient) ReadHistoryEvents(
	ctx context.Context,
	request *persistence.ReadHistoryEventsRequest,
) (_ *persistence.ReadHistoryEventsResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "ReadHistoryEvents", start, err) }()
	return c.store.ReadHistoryEvents(ctx, request)
}

func (c *executionMetricsClient) ListCurrentExecutions(
	ctx context.Context,
	request *persistence.ListCurrentExecutionsRequest,
) (_ *persistence.ListCurrentExecutionsResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "ListCurrentExecutions", start, err) }()
	return c.store.ListCurrentExecutions(ctx, request)
}

func (c *executionMetricsClient) Close() {
	c.store.Close()
}

func (c *taskMetricsClient) CreateTaskQueue(
	ctx context.Context,
	request *persistence.CreateTaskQueueRequest,
) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "CreateTaskQueue", start, err) }()
	return c.store.CreateTaskQueue(ctx, request)
}

func (c *taskMetricsClient) GetTaskQueue(
	ctx context.Context,
	request *persistence.GetTaskQueueRequest,
) (_ *persistence.GetTaskQueueResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "GetTaskQueue", start, err) }()
	return c.store.GetTaskQueue(ctx, request)
}

func (c *taskMetricsClient) UpdateTaskQueue(
	ctx context.Context,
	request *persistence.UpdateTaskQueueRequest,
) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "UpdateTaskQueue", start, err) }()
	return c.store.UpdateTaskQueue(ctx, request)
}

func (c *taskMetricsClient) CreateTasks(
	ctx context.Context,
	request *persistence.CreateTasksRequest,
) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "CreateTasks", start, err) }()
	return c.store.CreateTasks(ctx, request)
}

func (c *taskMetricsClient) GetTasks(
	ctx context.Context,
	request *persistence.GetTasksRequest,
) (_ *persistence.GetTasksResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "GetTasks", start, err) }()
	return c.store.GetTasks(ctx, request)
}

func (c *taskMetricsClient) CompleteTasksLessThan(
	ctx context.Context,
	request *persistence.CompleteTasksLessThanRequest,
) (_ int, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "CompleteTasksLessThan", start, err) }()
	return c.store.CompleteTasksLessThan(ctx, request)
}

func (c *taskMetricsClient) DeleteTaskQueue(
	ctx context.Context,
	request *persistence.DeleteTaskQueueRequest,
) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "DeleteTaskQueue", start, err) }()
	return c.store.DeleteTaskQueue(ctx, request)
}

func (c *taskMetricsClient) Close() {
	c.store.Close()
}

func (c *metadataMetricsClient) CreateNamespace(
	ctx context.Context,
	request *persistence.CreateNamespaceRequest,
) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "CreateNamespace", start, err) }()
	return c.store.CreateNamespace(ctx, request)
}

func (c *metadataMetricsClient) GetNamespace(
	ctx context.Context,
	request *persistence.GetNamespaceRequest,
) (_ *persistence.GetNamespaceResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "GetNamespace", start, err) }()
	return c.store.GetNamespace(ctx, request)
}

func (c *metadataMetricsClient) UpdateNamespace(
	ctx context.Context,
	request *persistence.UpdateNamespaceRequest,
) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "UpdateNamespace", start, err) }()
	return c.store.UpdateNamespace(ctx, request)
}

func (c *metadataMetricsClient) ListNamespaces(
	ctx context.Context,
	request *persistence.ListNamespacesRequest,
) (_ *persistence.ListNamespacesResponse, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "ListNamespaces", start, err) }()
	return c.store.ListNamespaces(ctx, request)
}

func (c *metadataMetricsClient) GetClusterMetadata(ctx context.Context) (_ *persistence.ClusterMetadata, err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "GetClusterMetadata", start, err) }()
	return c.store.GetClusterMetadata(ctx)
}

func (c *metadataMetricsClient) SaveClusterMetadata(ctx context.Context, metadata *persistence.ClusterMetadata) (err error) {
	start := time.Now()
	defer func() { recordPersistenceRequest(c.handler, "SaveClusterMetadata", start, err) }()
	return c.store.SaveClusterMetadata(ctx, metadata)
}

func (c *metadataMetricsClient) Close() {
	c.store.Close()
}
