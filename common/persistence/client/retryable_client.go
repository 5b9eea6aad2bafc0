package client

import (
	"context"

	"github.com/strandhq/strand/common/backoff"
	"github.com/strandhq/strand/common/persistence"
)

type (
	shardRetryableClient struct {
		store  persistence.ShardStore
		policy backoff.RetryPolicy
	}

	executionRetryableClient struct {
		store  persistence.ExecutionStore
		policy backoff.RetryPolicy
	}

	taskRetryableClient struct {
		store  persistence.TaskStore
		policy backoff.RetryPolicy
	}

	metadataRetryableClient struct {
		store  persistence.MetadataStore
		policy backoff.RetryPolicy
	}
)

// NewShardRetryableClient wraps a shard store with transient-error retries.
func NewShardRetryableClient(store persistence.ShardStore, policy backoff.RetryPolicy) persistence.ShardStore {
	return &shardRetryableClient{store: store, policy: policy}
}

// NewExecutionRetryableClient wraps an execution store with transient-error
// retries. Conflict errors pass through untouched: they need a re-read, not
// a retry.
func NewExecutionRetryableClient(store persistence.ExecutionStore, policy backoff.RetryPolicy) persistence.ExecutionStore {
	return &executionRetryableClient{store: store, policy: policy}
}

// NewTaskRetryableClient wraps a task store with transient-error retries.
func NewTaskRetryableClient(store persistence.TaskStore, policy backoff.RetryPolicy) persistence.TaskStore {
	return &taskRetryableClient{store: store, policy: policy}
}

// NewMetadataRetryableClient wraps a metadata store with transient-error
// retries.
func NewMetadataRetryableClient(store persistence.MetadataStore, policy backoff.RetryPolicy) persistence.MetadataStore {
	return &metadataRetryableClient{store: store, policy: policy}
}

func retry(ctx context.Context, policy backoff.RetryPolicy, op func(ctx context.Context) error) error {
	return backoff.ThrottleRetryContext(ctx, op, policy, persistence.IsTransientErr)
}

func (c *shardRetryableClient) GetOrCreateShard(
	ctx context.Context,
	request *persistence.GetOrCreateShardRequest,
) (*persistence.GetOrCreateShardResponse, error) {
	var response *persistence.GetOrCreateShardResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.GetOrCreateShard(ctx, request)
		return err
	})
	return response, err
}

func (c *shardRetryableClient) UpdateShard(
	ctx context.Context,
	request *persistence.UpdateShardRequest,
) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.UpdateShard(ctx, request)
	})
}

func (c *shardRetryableClient) Close() {
	c.store.Close()
}

func (c *executionRetryableClient) CreateWorkflowExecution(
	ctx context.Context,
	request *persistence.CreateWorkflowExecutionRequest,
) (*persistence.CreateWorkflowExecutionResponse, error) {
	var response *persistence.CreateWorkflowExecutionResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.CreateWorkflowExecution(ctx, request)
		return err
	})
	return response, err
}

func (c *executionRetryableClient) AppendHistoryEvents(
	ctx context.Context,
	request *persistence.AppendHistoryEventsRequest,
) (*persistence.AppendHistoryEventsResponse, error) {
	var response *persistence.AppendHistoryEventsResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.AppendHistoryEvents(ctx, request)
		return err
	})
	return response, err
}

func (c *executionRetryableClient) GetCurrentExecution(
	ctx context.Context,
	request *persistence.GetCurrentExecutionRequest,
) (*persistence.GetCurrentExecutionResponse, error) {
	var response *persistence.GetCurrentExecutionResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.GetCurrentExecution(ctx, request)
		return err
	})
	return response, err
}

func (c *executionRetryableClient) ReadHistoryEvents(
	ctx context.Context,
	request *persistence.ReadHistoryEventsRequest,
) (*persistence.ReadHistoryEventsResponse, error) {
	var response *persistence.ReadHistoryEventsResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.ReadHistoryEvents(ctx, request)
		return err
	})
	return response, err
}

func (c *executionRetryableClient) ListCurrentExecutions(
	ctx context.Context,
	request *persistence.ListCurrentExecutionsRequest,
) (*persistence.ListCurrentExecutionsResponse, error) {
	var response *persistence.ListCurrentExecutionsResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.ListCurrentExecutions(ctx, request)
		return err
	})
	return response, err
}

func (c *executionRetryableClient) Close() {
	c.store.Close()
}

func (c *taskRetryableClient) CreateTaskQueue(
	ctx context.Context,
	request *persistence.CreateTaskQueueRequest,
) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.CreateTaskQueue(ctx, request)
	})
}

func (c *taskRetryableClient) GetTaskQueue(
	ctx context.Context,
	request *persistence.GetTaskQueueRequest,
) (*persistence.GetTaskQueueResponse, error) {
	var response *persistence.GetTaskQueueResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.GetTaskQueue(ctx, request)
		return err
	})
	return response, err
}

func (c *taskRetryableClient) UpdateTaskQueue(
	ctx context.Context,
	request *persistence.UpdateTaskQueueRequest,
) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.UpdateTaskQueue(ctx, request)
	})
}

func (c *taskRetryableClient) CreateTasks(
	ctx context.Context,
	request *persistence.CreateTasksRequest,
) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.CreateTasks(ctx, request)
	})
}

func (c *taskRetryableClient) GetTasks(
	ctx context.Context,
	request *persistence.GetTasksRequest,
) (*persistence.GetTasksResponse, error) {
	var response *persistence.GetTasksResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.GetTasks(ctx, request)
		return err
	})
	return response, err
}

func (c *taskRetryableClient) CompleteTasksLessThan(
	ctx context.Context,
	request *persistence.CompleteTasksLessThanRequest,
) (int, error) {
	var deleted int
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		deleted, err = c.store.CompleteTasksLessThan(ctx, request)
		return err
	})
	return deleted, err
}

func (c *taskRetryableClient) DeleteTaskQueue(
	ctx context.Context,
	request *persistence.DeleteTaskQueueRequest,
) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.DeleteTaskQueue(ctx, request)
	})
}

func (c *taskRetryableClient) Close() {
	c.store.Close()
}

func (c *metadataRetryableClient) CreateNamespace(
	ctx context.Context,
	request *persistence.CreateNamespaceRequest,
) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.CreateNamespace(ctx, request)
	})
}

func (c *metadataRetryableClient) GetNamespace(
	ctx context.Context,
	request *persistence.GetNamespaceRequest,
) (*persistence.GetNamespaceResponse, error) {
	var response *persistence.GetNamespaceResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.GetNamespace(ctx, request)
		return err
	})
	return response, err
}

func (c *metadataRetryableClient) UpdateNamespace(
	ctx context.Context,
	request *persistence.UpdateNamespaceRequest,
) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.UpdateNamespace(ctx, request)
	})
}

func (c *metadataRetryableClient) ListNamespaces(
	ctx context.Context,
	request *persistence.ListNamespacesRequest,
) (*persistence.ListNamespacesResponse, error) {
	var response *persistence.ListNamespacesResponse
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.ListNamespaces(ctx, request)
		return err
	})
	return response, err
}

func (c *metadataRetryableClient) GetClusterMetadata(ctx context.Context) (*persistence.ClusterMetadata, error) {
	var response *persistence.ClusterMetadata
	err := retry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		response, err = c.store.GetClusterMetadata(ctx)
		return err
	})
	return response, err
}

func (c *metadataRetryableClient) SaveClusterMetadata(ctx context.Context, metadata *persistence.ClusterMetadata) error {
	return retry(ctx, c.policy, func(ctx context.Context) error {
		return c.store.SaveClusterMetadata(ctx, metadata)
	})
}

func (c *metadataRetryableClient) Close() {
	c.store.Close()
}
