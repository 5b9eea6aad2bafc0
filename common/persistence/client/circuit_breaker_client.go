package client

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
)

type (
	shardCircuitBreakerClient struct {
		store   persistence.ShardStore
		breaker *gobreaker.CircuitBreaker
	}

	executionCircuitBreakerClient struct {
		store   persistence.ExecutionStore
		breaker *gobreaker.CircuitBreaker
	}

	taskCircuitBreakerClient struct {
		store   persistence.TaskStore
		breaker *gobreaker.CircuitBreaker
	}

	metadataCircuitBreakerClient struct {
		store   persistence.MetadataStore
		breaker *gobreaker.CircuitBreaker
	}
)

// newCircuitBreaker builds a breaker that only counts availability failures.
// Conflict errors, ownership-lost errors, and caller mistakes come back on a
// healthy datastore, so they must not open the breaker.
func newCircuitBreaker(name string, handler metrics.Handler) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !persistence.IsUnavailableErr(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.PersistenceCircuitBreakerOpen.With(
					handler.WithTags(metrics.OperationTag(name)),
				).Record(1)
			}
		},
	})
}

// NewShardCircuitBreakerClient wraps a shard store with a circuit breaker.
func NewShardCircuitBreakerClient(store persistence.ShardStore, handler metrics.Handler) persistence.ShardStore {
	return &shardCircuitBreakerClient{
		store:   store,
		breaker: newCircuitBreaker("ShardStore", handler),
	}
}

// NewExecutionCircuitBreakerClient wraps an execution store with a circuit
// breaker.
func NewExecutionCircuitBreakerClient(store persistence.ExecutionStore, handler metrics.Handler) persistence.ExecutionStore {
	return &executionCircuitBreakerClient{
		store:   store,
		breaker: newCircuitBreaker("ExecutionStore", handler),
	}
}

// NewTaskCircuitBreakerClient wraps a task store with a circuit breaker.
func NewTaskCircuitBreakerClient(store persistence.TaskStore, handler metrics.Handler) persistence.TaskStore {
	return &taskCircuitBreakerClient{
		store:   store,
		breaker: newCircuitBreaker("TaskStore", handler),
	}
}

// NewMetadataCircuitBreakerClient wraps a metadata store with a circuit
// breaker.
func NewMetadataCircuitBreakerClient(store persistence.MetadataStore, handler metrics.Handler) persistence.MetadataStore {
	return &metadataCircuitBreakerClient{
		store:   store,
		breaker: newCircuitBreaker("MetadataStore", handler),
	}
}

func executeWithBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	op func() (T, error),
) (T, error) {
	result, err := breaker.Execute(func() (interface{}, error) {
		return op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, &persistence.TimeoutError{Msg: "persistence circuit breaker open: " + err.Error()}
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func executeWithBreakerNoResult(breaker *gobreaker.CircuitBreaker, op func() error) error {
	_, err := executeWithBreaker(breaker, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func (c *shardCircuitBreakerClient) GetOrCreateShard(
	ctx context.Context,
	request *persistence.GetOrCreateShardRequest,
) (*persistence.GetOrCreateShardResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.GetOrCreateShardResponse, error) {
		return c.store.GetOrCreateShard(ctx, request)
	})
}

func (c *shardCircuitBreakerClient) UpdateShard(
	ctx context.Context,
	request *persistence.UpdateShardRequest,
) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.UpdateShard(ctx, request)
	})
}

func (c *shardCircuitBreakerClient) Close() {
	c.store.Close()
}

func (c *executionCircuitBreakerClient) CreateWorkflowExecution(
	ctx context.Context,
	request *persistence.CreateWorkflowExecutionRequest,
) (*persistence.CreateWorkflowExecutionResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.CreateWorkflowExecutionResponse, error) {
		return c.store.CreateWorkflowExecution(ctx, request)
	})
}

func (c *executionCircuitBreakerClient) AppendHistoryEvents(
	ctx context.Context,
	request *persistence.AppendHistoryEventsRequest,
) (*persistence.AppendHistoryEventsResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.AppendHistoryEventsResponse, error) {
		return c.store.AppendHistoryEvents(ctx, request)
	})
}

func (c *executionCircuitBreakerClient) GetCurrentExecution(
	ctx context.Context,
	request *persistence.GetCurrentExecutionRequest,
) (*persistence.GetCurrentExecutionResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.GetCurrentExecutionResponse, error) {
		return c.store.GetCurrentExecution(ctx, request)
	})
}

func (c *executionCircuitBreakerClient) ReadHistoryEvents(
	ctx context.Context,
	request *persistence.ReadHistoryEventsRequest,
) (*persistence.ReadHistoryEventsResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.ReadHistoryEventsResponse, error) {
		return c.store.ReadHistoryEvents(ctx, request)
	})
}

func (c *executionCircuitBreakerClient) ListCurrentExecutions(
	ctx context.Context,
	request *persistence.ListCurrentExecutionsRequest,
) (*persistence.ListCurrentExecutionsResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.ListCurrentExecutionsResponse, error) {
		return c.store.ListCurrentExecutions(ctx, request)
	})
}

func (c *executionCircuitBreakerClient) Close() {
	c.store.Close()
}

func (c *taskCircuitBreakerClient) CreateTaskQueue(
	ctx context.Context,
	request *persistence.CreateTaskQueueRequest,
) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.CreateTaskQueue(ctx, request)
	})
}

func (c *taskCircuitBreakerClient) GetTaskQueue(
	ctx context.Context,
	request *persistence.GetTaskQueueRequest,
) (*persistence.GetTaskQueueResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.GetTaskQueueResponse, error) {
		return c.store.GetTaskQueue(ctx, request)
	})
}

func (c *taskCircuitBreakerClient) UpdateTaskQueue(
	ctx context.Context,
	request *persistence.UpdateTaskQueueRequest,
) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.UpdateTaskQueue(ctx, request)
	})
}

func (c *taskCircuitBreakerClient) CreateTasks(
	ctx context.Context,
	request *persistence.CreateTasksRequest,
) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.CreateTasks(ctx, request)
	})
}

func (c *taskCircuitBreakerClient) GetTasks(
	ctx context.Context,
	request *persistence.GetTasksRequest,
) (*persistence.GetTasksResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.GetTasksResponse, error) {
		return c.store.GetTasks(ctx, request)
	})
}

func (c *taskCircuitBreakerClient) CompleteTasksLessThan(
	ctx context.Context,
	request *persistence.CompleteTasksLessThanRequest,
) (int, error) {
	return executeWithBreaker(c.breaker, func() (int, error) {
		return c.store.CompleteTasksLessThan(ctx, request)
	})
}

func (c *taskCircuitBreakerClient) DeleteTaskQueue(
	ctx context.Context,
	request *persistence.DeleteTaskQueueRequest,
) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.DeleteTaskQueue(ctx, request)
	})
}

func (c *taskCircuitBreakerClient) Close() {
	c.store.Close()
}

func (c *metadataCircuitBreakerClient) CreateNamespace(
	ctx context.Context,
	request *persistence.CreateNamespaceRequest,
) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.CreateNamespace(ctx, request)
	})
}

func (c *metadataCircuitBreakerClient) GetNamespace(
	ctx context.Context,
	request *persistence.GetNamespaceRequest,
) (*persistence.GetNamespaceResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.GetNamespaceResponse, error) {
		return c.store.GetNamespace(ctx, request)
	})
}

func (c *metadataCircuitBreakerClient) UpdateNamespace(
	ctx context.Context,
	request *persistence.UpdateNamespaceRequest,
) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.UpdateNamespace(ctx, request)
	})
}

func (c *metadataCircuitBreakerClient) ListNamespaces(
	ctx context.Context,
	request *persistence.ListNamespacesRequest,
) (*persistence.ListNamespacesResponse, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.ListNamespacesResponse, error) {
		return c.store.ListNamespaces(ctx, request)
	})
}

func (c *metadataCircuitBreakerClient) GetClusterMetadata(ctx context.Context) (*persistence.ClusterMetadata, error) {
	return executeWithBreaker(c.breaker, func() (*persistence.ClusterMetadata, error) {
		return c.store.GetClusterMetadata(ctx)
	})
}

func (c *metadataCircuitBreakerClient) SaveClusterMetadata(ctx context.Context, metadata *persistence.ClusterMetadata) error {
	return executeWithBreakerNoResult(c.breaker, func() error {
		return c.store.SaveClusterMetadata(ctx, metadata)
	})
}

func (c *metadataCircuitBreakerClient) Close() {
	c.store.Close()
}
