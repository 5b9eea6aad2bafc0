package client

import (
	"context"

	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/quotas"
)

type (
	shardRateLimitedClient struct {
		store   persistence.ShardStore
		limiter quotas.RateLimiter
	}

	executionRateLimitedClient struct {
		store   persistence.ExecutionStore
		limiter quotas.RateLimiter
	}

	taskRateLimitedClient struct {
		store   persistence.TaskStore
		limiter quotas.RateLimiter
	}

	metadataRateLimitedClient struct {
		store   persistence.MetadataStore
		limiter quotas.RateLimiter
	}
)

// NewShardRateLimitedClient wraps a shard store with a request rate limit.
func NewShardRateLimitedClient(store persistence.ShardStore, limiter quotas.RateLimiter) persistence.ShardStore {
	return &shardRateLimitedClient{store: store, limiter: limiter}
}

// NewExecutionRateLimitedClient wraps an execution store with a request rate
// limit.
func NewExecutionRateLimitedClient(store persistence.ExecutionStore, limiter quotas.RateLimiter) persistence.ExecutionStore {
	return &executionRateLimitedClient{store: store, limiter: limiter}
}

// NewTaskRateLimitedClient wraps a task store with a request rate limit.
func NewTaskRateLimitedClient(store persistence.TaskStore, limiter quotas.RateLimiter) persistence.TaskStore {
	return &taskRateLimitedClient{store: store, limiter: limiter}
}

// NewMetadataRateLimitedClient wraps a metadata store with a request rate
// limit.
func NewMetadataRateLimitedClient(store persistence.MetadataStore, limiter quotas.RateLimiter) persistence.MetadataStore {
	return &metadataRateLimitedClient{store: store, limiter: limiter}
}

func allow(limiter quotas.RateLimiter) error {
	if !limiter.Allow() {
		return persistence.ErrPersistenceLimitExceeded
	}
	return nil
}

func (c *shardRateLimitedClient) GetOrCreateShard(
	ctx context.Context,
	request *persistence.GetOrCreateShardRequest,
) (*persistence.GetOrCreateShardResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.GetOrCreateShard(ctx, request)
}

func (c *shardRateLimitedClient) UpdateShard(
	ctx context.Context,
	request *persistence.UpdateShardRequest,
) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.UpdateShard(ctx, request)
}

func (c *shardRateLimitedClient) Close() {
	c.store.Close()
}

func (c *executionRateLimitedClient) CreateWorkflowExecution(
	ctx context.Context,
	request *persistence.CreateWorkflowExecutionRequest,
) (*persistence.CreateWorkflowExecutionResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.CreateWorkflowExecution(ctx, request)
}

func (c *executionRateLimitedClient) AppendHistoryEvents(
	ctx context.Context,
	request *persistence.AppendHistoryEventsRequest,
) (*persistence.AppendHistoryEventsResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.AppendHistoryEvents(ctx, request)
}

func (c *executionRateLimitedClient) GetCurrentExecution(
	ctx context.Context,
	request *persistence.GetCurrentExecutionRequest,
) (*persistence.GetCurrentExecutionResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.GetCurrentExecution(ctx, request)
}

func (c *executionRateLimitedClient) ReadHistoryEvents(
	ctx context.Context,
	request *persistence.ReadHistoryEventsRequest,
) (*persistence.ReadHistoryEventsResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.ReadHistoryEvents(ctx, request)
}

func (c *executionRateLimitedClient) ListCurrentExecutions(
	ctx context.Context,
	request *persistence.ListCurrentExecutionsRequest,
) (*persistence.ListCurrentExecutionsResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.ListCurrentExecutions(ctx, request)
}

func (c *executionRateLimitedClient) Close() {
	c.store.Close()
}

func (c *taskRateLimitedClient) CreateTaskQueue(
	ctx context.Context,
	request *persistence.CreateTaskQueueRequest,
) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.CreateTaskQueue(ctx, request)
}

func (c *taskRateLimitedClient) GetTaskQueue(
	ctx context.Context,
	request *persistence.GetTaskQueueRequest,
) (*persistence.GetTaskQueueResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.GetTaskQueue(ctx, request)
}

func (c *taskRateLimitedClient) UpdateTaskQueue(
	ctx context.Context,
	request *persistence.UpdateTaskQueueRequest,
) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.UpdateTaskQueue(ctx, request)
}

func (c *taskRateLimitedClient) CreateTasks(
	ctx context.Context,
	request *persistence.CreateTasksRequest,
) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.CreateTasks(ctx, request)
}

func (c *taskRateLimitedClient) GetTasks(
	ctx context.Context,
	request *persistence.GetTasksRequest,
) (*persistence.GetTasksResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.GetTasks(ctx, request)
}

func (c *taskRateLimitedClient) CompleteTasksLessThan(
	ctx context.Context,
	request *persistence.CompleteTasksLessThanRequest,
) (int, error) {
	if err := allow(c.limiter); err != nil {
		return 0, err
	}
	return c.store.CompleteTasksLessThan(ctx, request)
}

func (c *taskRateLimitedClient) DeleteTaskQueue(
	ctx context.Context,
	request *persistence.DeleteTaskQueueRequest,
) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.DeleteTaskQueue(ctx, request)
}

func (c *taskRateLimitedClient) Close() {
	c.store.Close()
}

func (c *metadataRateLimitedClient) CreateNamespace(
	ctx context.Context,
	request *persistence.CreateNamespaceRequest,
) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.CreateNamespace(ctx, request)
}

func (c *metadataRateLimitedClient) GetNamespace(
	ctx context.Context,
	request *persistence.GetNamespaceRequest,
) (*persistence.GetNamespaceResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.GetNamespace(ctx, request)
}

func (c *metadataRateLimitedClient) UpdateNamespace(
	ctx context.Context,
	request *persistence.UpdateNamespaceRequest,
) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.UpdateNamespace(ctx, request)
}

func (c *metadataRateLimitedClient) ListNamespaces(
	ctx context.Context,
	request *persistence.ListNamespacesRequest,
) (*persistence.ListNamespacesResponse, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.ListNamespaces(ctx, request)
}

func (c *metadataRateLimitedClient) GetClusterMetadata(ctx context.Context) (*persistence.ClusterMetadata, error) {
	if err := allow(c.limiter); err != nil {
		return nil, err
	}
	return c.store.GetClusterMetadata(ctx)
}

func (c *metadataRateLimitedClient) SaveClusterMetadata(ctx context.Context, metadata *persistence.ClusterMetadata) error {
	if err := allow(c.limiter); err != nil {
		return err
	}
	return c.store.SaveClusterMetadata(ctx, metadata)
}

func (c *metadataRateLimitedClient) Close() {
	c.store.Close()
}
