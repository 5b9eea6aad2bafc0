package matching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
)

type (
	// TaskFailureHandler receives tasks that exhausted their delivery attempts
	// so the owning workflow records the failure. Implemented by the history
	// engine; injected after construction to break the build-order knot
	// between the two services.
	TaskFailureHandler interface {
		ReportTaskDispatchFailed(ctx context.Context, task *persistence.TaskInfo) error
	}

	AddTaskRequest struct {
		NamespaceID      string
		TaskQueue        string
		TaskType         enums.TaskType
		WorkflowID       string
		RunID            string
		ScheduledEventID int64
	}

	PollTaskRequest struct {
		NamespaceID string
		TaskQueue   string
		TaskType    enums.TaskType
	}

	PollTaskResponse struct {
		Task    *persistence.TaskInfo
		Attempt int32
		Lease   LeaseToken
	}

	// Engine hosts the task queue managers, loading them on first use and
	// unloading idle ones.
	Engine struct {
		status         int32
		config         *Config
		taskStore      persistence.TaskStore
		failureHandler TaskFailureHandler
		timeSource     clock.TimeSource
		metricsHandler metrics.Handler
		logger         log.Logger

		shutdownC chan struct{}
		shutdownW sync.WaitGroup

		lock   sync.RWMutex
		queues map[queueKey]*taskQueueManager
	}
)

// ErrNoTasks is returned by PollTask when the long poll expires without a
// match. Callers surface it as an empty poll response.
var ErrNoTasks = errors.New("no tasks")

// noopFailureHandler drops reports until the real handler is wired.
type noopFailureHandler struct{}

func (noopFailureHandler) ReportTaskDispatchFailed(context.Context, *persistence.TaskInfo) error {
	return nil
}

func NewEngine(
	taskStore persistence.TaskStore,
	config *Config,
	timeSource clock.TimeSource,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *Engine {
	return &Engine{
		status:         common.DaemonStatusInitialized,
		config:         config,
		taskStore:      taskStore,
		failureHandler: noopFailureHandler{},
		timeSource:     timeSource,
		metricsHandler: metricsHandler,
		logger:         logger,
		shutdownC:      make(chan struct{}),
		queues:         make(map[queueKey]*taskQueueManager),
	}
}

// SetTaskFailureHandler wires the dead-letter report sink. Must be called
// before Start.
func (e *Engine) SetTaskFailureHandler(handler TaskFailureHandler) {
	e.failureHandler = handler
}

func (e *Engine) Start() {
	if !atomic.CompareAndSwapInt32(&e.status, common.DaemonStatusInitialized, common.DaemonStatusStarted) {
		return
	}
	e.shutdownW.Add(1)
	go e.idleQueueReaper()
}

func (e *Engine) Stop() {
	if !atomic.CompareAndSwapInt32(&e.status, common.DaemonStatusStarted, common.DaemonStatusStopped) {
		return
	}
	close(e.shutdownC)
	e.shutdownW.Wait()

	e.lock.Lock()
	queues := e.queues
	e.queues = make(map[queueKey]*taskQueueManager)
	e.lock.Unlock()
	for _, tqm := range queues {
		tqm.Stop()
	}
}

// AddTask durably enqueues one task. The write completes before the call
// returns; matching to a poller happens asynchronously.
func (e *Engine) AddTask(ctx context.Context, request *AddTaskRequest) error {
	key := queueKey{
		namespaceID: request.NamespaceID,
		name:        request.TaskQueue,
		taskType:    request.TaskType,
	}
	return e.addTaskToQueue(ctx, key, &persistence.TaskInfo{
		NamespaceID:      request.NamespaceID,
		WorkflowID:       request.WorkflowID,
		RunID:            request.RunID,
		TaskType:         request.TaskType,
		ScheduledEventID: request.ScheduledEventID,
		Attempt:          1,
	})
}

// PollTask long-polls for a task, returning ErrNoTasks when the poll window
// lapses empty.
func (e *Engine) PollTask(ctx context.Context, request *PollTaskRequest) (*PollTaskResponse, error) {
	key := queueKey{
		namespaceID: request.NamespaceID,
		name:        request.TaskQueue,
		taskType:    request.TaskType,
	}
	tqm, err := e.getOrCreateTaskQueue(key)
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, e.config.LongPollExpirationInterval(request.NamespaceID, request.TaskQueue))
	defer cancel()

	task, attempt, lease, err := tqm.PollTask(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrNoTasks
		}
		return nil, err
	}
	return &PollTaskResponse{Task: task, Attempt: attempt, Lease: lease}, nil
}

// AckTask completes a leased task.
func (e *Engine) AckTask(token LeaseToken) {
	if tqm := e.getLoadedTaskQueue(token); tqm != nil {
		tqm.AckTask(token)
	}
}

// NackTask returns a leased task for redelivery.
func (e *Engine) NackTask(token LeaseToken) {
	if tqm := e.getLoadedTaskQueue(token); tqm != nil {
		tqm.NackTask(token)
	}
}

func (e *Engine) addTaskToQueue(ctx context.Context, key queueKey, info *persistence.TaskInfo) error {
	tqm, err := e.getOrCreateTaskQueue(key)
	if err != nil {
		return err
	}
	return tqm.AddTask(ctx, info)
}

func (e *Engine) getOrCreateTaskQueue(key queueKey) (*taskQueueManager, error) {
	e.lock.RLock()
	tqm, ok := e.queues[key]
	e.lock.RUnlock()
	if ok {
		return tqm, nil
	}

	e.lock.Lock()
	if tqm, ok := e.queues[key]; ok {
		e.lock.Unlock()
		return tqm, nil
	}
	tqm, err := newTaskQueueManager(e, key)
	if err != nil {
		e.lock.Unlock()
		return nil, err
	}
	e.queues[key] = tqm
	e.lock.Unlock()

	tqm.Start()
	return tqm, nil
}

func (e *Engine) getLoadedTaskQueue(token LeaseToken) *taskQueueManager {
	key := queueKey{
		namespaceID: token.NamespaceID,
		name:        token.TaskQueue,
		taskType:    token.TaskType,
	}
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.queues[key]
}

// unloadTaskQueue detaches a manager that lost its lease; the next request
// loads a fresh one that takes the lease over again.
func (e *Engine) unloadTaskQueue(key queueKey, tqm *taskQueueManager) {
	e.lock.Lock()
	current, ok := e.queues[key]
	if ok && current == tqm {
		delete(e.queues, key)
	}
	e.lock.Unlock()
	if ok && current == tqm {
		e.logger.Info("task queue unloaded after lost lease", tag.WorkflowTaskQueueName(key.name))
	}
}

// idleQueueReaper unloads managers with no traffic past the idle TTL.
func (e *Engine) idleQueueReaper() {
	defer e.shutdownW.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-e.shutdownC:
			return
		case <-ticker.C:
		}

		ttl := e.config.IdleTaskQueueTTL()
		now := e.timeSource.Now()
		e.lock.Lock()
		var idle []*taskQueueManager
		for key, tqm := range e.queues {
			if tqm.idleSince(now) > ttl && tqm.leases.outstanding() == 0 {
				delete(e.queues, key)
				idle = append(idle, tqm)
			}
		}
		e.lock.Unlock()

		for _, tqm := range idle {
			tqm.Stop()
		}
	}
}
