package matching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/quotas"
)

const (
	ioTimeout = 5 * time.Second

	// leaseSweepInterval bounds how stale an expired lease can go unnoticed.
	leaseSweepInterval = time.Second
)

// taskQueueManager owns the full lifecycle of one task queue: durable writes,
// backlog reads, matching, leases, redelivery, dead-lettering and GC.
type taskQueueManager struct {
	status     int32
	engine     *Engine
	queue      queueKey
	config     *queueConfig
	db         *taskQueueDB
	writer     *taskWriter
	reader     *taskReader
	ackManager *ackManager
	matcher    *taskMatcher
	leases     *leaseTable
	gc         *taskGC

	timeSource     clock.TimeSource
	metricsHandler metrics.Handler
	logger         log.Logger

	// lastActivity feeds idle queue unloading.
	lastActivity atomic.Int64

	shutdownC   chan struct{}
	shutdownW   sync.WaitGroup
	dispatchCtx context.Context
	cancelFn    context.CancelFunc
}

func newTaskQueueManager(engine *Engine, queue queueKey) (*taskQueueManager, error) {
	config := engine.config.forQueue(queue.namespaceID, queue.name)
	logger := log.With(engine.logger, tag.WorkflowTaskQueueName(queue.name), tag.WorkflowNamespaceID(queue.namespaceID))
	db := newTaskQueueDB(queue, engine.taskStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	tqm := &taskQueueManager{
		status:         common.DaemonStatusInitialized,
		engine:         engine,
		queue:          queue,
		config:         config,
		db:             db,
		writer:         newTaskWriter(db, engine.timeSource),
		leases:         newLeaseTable(),
		timeSource:     engine.timeSource,
		metricsHandler: engine.metricsHandler,
		logger:         logger,
		shutdownC:      make(chan struct{}),
		dispatchCtx:    ctx,
		cancelFn:       cancel,
	}
	tqm.matcher = newTaskMatcher(quotas.NewDefaultIncomingRateLimiter(
		func() float64 { return float64(config.RPS()) },
	))
	tqm.gc = newTaskGC(db, config, logger)
	tqm.touch()

	takeoverCtx, takeoverCancel := context.WithTimeout(context.Background(), ioTimeout)
	defer takeoverCancel()
	if err := db.takeOverTaskQueue(takeoverCtx); err != nil {
		cancel()
		return nil, err
	}
	tqm.ackManager = newAckManager(db.AckLevel(), logger)
	tqm.reader = newTaskReader(tqm)
	return tqm, nil
}

func (tqm *taskQueueManager) Start() {
	if !atomic.CompareAndSwapInt32(&tqm.status, common.DaemonStatusInitialized, common.DaemonStatusStarted) {
		return
	}

	tqm.shutdownW.Add(3)
	go tqm.reader.pump()
	go tqm.leaseSweepLoop()
	go tqm.ackPersistLoop()

	// Kick the reader so the backlog left by a previous owner is drained.
	select {
	case tqm.writer.notifyC <- struct{}{}:
	default:
	}
}

func (tqm *taskQueueManager) Stop() {
	if !atomic.CompareAndSwapInt32(&tqm.status, common.DaemonStatusStarted, common.DaemonStatusStopped) {
		return
	}
	close(tqm.shutdownC)
	tqm.cancelFn()
	if !common.AwaitWaitGroup(&tqm.shutdownW, 10*time.Second) {
		tqm.logger.Warn("task queue manager did not stop in time")
	}
}

// AddTask durably appends a task. The write happens before any matching, so
// an accepted task survives a crash.
func (tqm *taskQueueManager) AddTask(ctx context.Context, info *persistence.TaskInfo) error {
	tqm.touch()
	if _, err := tqm.writer.appendTask(ctx, info); err != nil {
		if errors.Is(err, errQueueOwnershipLost) {
			tqm.signalOwnershipLost()
		}
		return err
	}
	metrics.TaskEnqueuedCounter.With(tqm.metricsHandler).Record(1)
	return nil
}

// PollTask blocks until a task is matched or the context expires. The
// returned lease must be acked or nacked.
func (tqm *taskQueueManager) PollTask(ctx context.Context) (*persistence.TaskInfo, int32, LeaseToken, error) {
	tqm.touch()

	if err := tqm.leases.reserveSlot(ctx, tqm.config.MaxOutstandingTasks()); err != nil {
		metrics.PollThrottledCounter.With(tqm.metricsHandler).Record(1)
		return nil, 0, LeaseToken{}, err
	}

	task, err := tqm.matcher.Poll(ctx)
	if err != nil {
		tqm.leases.releaseSlot()
		metrics.PollTimeoutCounter.With(tqm.metricsHandler).Record(1)
		return nil, 0, LeaseToken{}, err
	}

	deadline := tqm.timeSource.Now().Add(tqm.config.TaskVisibilityTimeout())
	leaseID := tqm.leases.grant(task, deadline)
	metrics.TaskDispatchedCounter.With(tqm.metricsHandler).Record(1)
	metrics.TaskScheduleToStartLatency.With(tqm.metricsHandler).Record(tqm.timeSource.Now().Sub(task.info.CreateTime))
	metrics.TaskOutstandingGauge.With(tqm.metricsHandler).Record(float64(tqm.leases.outstanding()))
	metrics.PollSuccessCounter.With(tqm.metricsHandler).Record(1)

	token := LeaseToken{
		NamespaceID: tqm.queue.namespaceID,
		TaskQueue:   tqm.queue.name,
		TaskType:    tqm.queue.taskType,
		TaskID:      task.info.TaskID,
		LeaseID:     leaseID,
	}
	return task.info, task.attempt, token, nil
}

// AckTask finishes a lease: the task is done and will be GCed.
func (tqm *taskQueueManager) AckTask(token LeaseToken) {
	tqm.touch()
	task := tqm.leases.release(token.TaskID, token.LeaseID)
	if task == nil {
		return
	}
	tqm.ackManager.completeTask(token.TaskID)
	metrics.TaskAckedCounter.With(tqm.metricsHandler).Record(1)
}

// NackTask returns a leased task for immediate redelivery, subject to the
// attempt ceiling.
func (tqm *taskQueueManager) NackTask(token LeaseToken) {
	tqm.touch()
	task := tqm.leases.release(token.TaskID, token.LeaseID)
	if task == nil {
		return
	}
	tqm.redeliver(task)
}

func (tqm *taskQueueManager) signalOwnershipLost() {
	tqm.engine.unloadTaskQueue(tqm.queue, tqm)
	go tqm.Stop()
}

// dispatchTask hands a backlog task to the matcher, blocking until a poller
// takes it or the manager shuts down.
func (tqm *taskQueueManager) dispatchTask(task *internalTask) error {
	err := tqm.matcher.Offer(tqm.dispatchCtx, task)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// redeliver puts an expired or nacked task back through the matcher with the
// attempt count bumped, dead-lettering past the ceiling.
func (tqm *taskQueueManager) redeliver(task *internalTask) {
	task.attempt++
	if int(task.attempt) > tqm.config.MaxTaskAttempts() {
		tqm.deadLetter(task)
		return
	}

	metrics.TaskRedeliveredCounter.With(tqm.metricsHandler).Record(1)
	go func() {
		if err := tqm.dispatchTask(task); err != nil {
			tqm.logger.Error("failed to redeliver task", tag.TaskID(task.info.TaskID), tag.Error(err))
		}
	}()
}

// deadLetter moves a task past its attempt ceiling to the queue's DLQ sibling
// and reports the dispatch failure so the owning workflow sees it. The
// original task is acked either way; it must not be redelivered again.
func (tqm *taskQueueManager) deadLetter(task *internalTask) {
	tqm.ackManager.completeTask(task.info.TaskID)
	metrics.TaskDeadLetteredCounter.With(tqm.metricsHandler).Record(1)
	tqm.logger.Warn("task exceeded delivery attempts, dead-lettering",
		tag.TaskID(task.info.TaskID),
		tag.Attempt(task.attempt),
	)

	if tqm.queue.isDLQ() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	dlqTask := *task.info
	dlqTask.Attempt = task.attempt
	if err := tqm.engine.addTaskToQueue(ctx, tqm.queue.dlq(), &dlqTask); err != nil {
		tqm.logger.Error("failed to write task to dlq", tag.TaskID(task.info.TaskID), tag.Error(err))
	}
	if err := tqm.engine.failureHandler.ReportTaskDispatchFailed(ctx, task.info); err != nil {
		tqm.logger.Error("failed to report task dispatch failure", tag.TaskID(task.info.TaskID), tag.Error(err))
	}
}

// leaseSweepLoop redelivers tasks whose visibility timeout lapsed without an
// ack.
func (tqm *taskQueueManager) leaseSweepLoop() {
	defer tqm.shutdownW.Done()

	interval := tqm.config.TaskVisibilityTimeout() / 2
	if interval > leaseSweepInterval {
		interval = leaseSweepInterval
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-tqm.shutdownC:
			return
		case <-ticker.C:
		}

		for _, task := range tqm.leases.collectExpired(tqm.timeSource.Now()) {
			metrics.TaskExpiredCounter.With(tqm.metricsHandler).Record(1)
			tqm.redeliver(task)
		}
	}
}

// ackPersistLoop periodically persists ack level movement and garbage
// collects below it.
func (tqm *taskQueueManager) ackPersistLoop() {
	defer tqm.shutdownW.Done()

	ticker := time.NewTicker(tqm.config.UpdateAckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-tqm.shutdownC:
			return
		case <-ticker.C:
		}

		ackLevel := tqm.ackManager.getAckLevel()
		if ackLevel <= tqm.db.AckLevel() {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		err := tqm.db.UpdateAckLevel(ctx, ackLevel)
		cancel()
		if err != nil {
			if errors.Is(err, errQueueOwnershipLost) {
				tqm.signalOwnershipLost()
				return
			}
			tqm.logger.Error("failed to persist ack level", tag.AckLevel(ackLevel), tag.Error(err))
			continue
		}

		gcCtx, gcCancel := context.WithTimeout(context.Background(), ioTimeout)
		tqm.gc.run(gcCtx, ackLevel)
		gcCancel()
	}
}

func (tqm *taskQueueManager) touch() {
	tqm.lastActivity.Store(tqm.timeSource.Now().UnixNano())
}

func (tqm *taskQueueManager) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, tqm.lastActivity.Load()))
}
