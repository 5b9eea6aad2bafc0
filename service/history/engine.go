package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/api/enums"
	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/service/history/configs"
	"github.com/strandhq/strand/service/history/shard"
	"github.com/strandhq/strand/service/history/workflow"
	"github.com/strandhq/strand/service/matching"
)

const (
	// conditionalRetryCount bounds how many conditional-append races one
	// update is allowed to lose before giving up.
	conditionalRetryCount = 5

	taskDispatchTimeout = 5 * time.Second
	timerFireTimeout    = 10 * time.Second

	defaultHistoryPageSize = 1000
)

type (
	// MatchingClient is the slice of the matching engine the history engine
	// dispatches tasks through.
	MatchingClient interface {
		AddTask(ctx context.Context, request *matching.AddTaskRequest) error
	}

	// updateWorkflowAction inspects the replayed state and mints the events of
	// one append batch. Leaving the builder empty makes the update a no-op
	// read.
	updateWorkflowAction func(ms *workflow.MutableState, builder *workflow.HistoryBuilder) error

	// Engine drives workflow executions: it owns the replay cache, translates
	// requests into conditional history appends, and turns applied events
	// into matching tasks and timers.
	Engine struct {
		status         int32
		config         *configs.Config
		controller     *shard.Controller
		executionStore persistence.ExecutionStore
		matchingClient MatchingClient
		cache          *workflow.Cache
		timeSource     clock.TimeSource
		metricsHandler metrics.Handler
		logger         log.Logger

		timerLock   sync.Mutex
		timerQueues map[int32]*timerQueue

		shutdownC chan struct{}
		shutdownW sync.WaitGroup
	}
)

// NewEngine builds a history engine. Start boots the timer rebuild pass.
func NewEngine(
	config *configs.Config,
	controller *shard.Controller,
	executionStore persistence.ExecutionStore,
	matchingClient MatchingClient,
	timeSource clock.TimeSource,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *Engine {
	return &Engine{
		status:         common.DaemonStatusInitialized,
		config:         config,
		controller:     controller,
		executionStore: executionStore,
		matchingClient: matchingClient,
		cache:          workflow.NewCache(config.HistoryCacheMaxSize(), metricsHandler),
		timeSource:     timeSource,
		metricsHandler: metricsHandler,
		logger:         logger,
		timerQueues:    make(map[int32]*timerQueue),
		shutdownC:      make(chan struct{}),
	}
}

func (e *Engine) Start() {
	if !atomic.CompareAndSwapInt32(&e.status, common.DaemonStatusInitialized, common.DaemonStatusStarted) {
		return
	}
	e.shutdownW.Add(1)
	go e.rebuildTimers()
}

func (e *Engine) Stop() {
	if !atomic.CompareAndSwapInt32(&e.status, common.DaemonStatusStarted, common.DaemonStatusStopped) {
		return
	}
	close(e.shutdownC)
	e.shutdownW.Wait()

	e.timerLock.Lock()
	queues := e.timerQueues
	e.timerQueues = make(map[int32]*timerQueue)
	e.timerLock.Unlock()
	for _, tq := range queues {
		tq.Stop()
	}
}

// rebuildTimers walks the running executions once at startup, loading each
// into the cache. Loading replays the history, which re-registers the timers
// and re-enqueues undelivered tasks a previous process lost on crash.
func (e *Engine) rebuildTimers() {
	defer e.shutdownW.Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var token []byte
	for {
		select {
		case <-e.shutdownC:
			return
		default:
		}

		response, err := e.executionStore.ListCurrentExecutions(ctx, &persistence.ListCurrentExecutionsRequest{
			PageSize:      defaultHistoryPageSize,
			NextPageToken: token,
		})
		if err != nil {
			e.logger.Error("failed to list executions for timer rebuild", tag.Error(err))
			return
		}
		for _, execution := range response.Executions {
			if execution.Status != enums.WorkflowExecutionStatusRunning {
				continue
			}
			e.touchExecution(ctx, execution.NamespaceID, execution.WorkflowID, execution.RunID)
		}
		token = response.NextPageToken
		if len(token) == 0 {
			return
		}
	}
}

func (e *Engine) touchExecution(ctx context.Context, namespaceID, workflowID, runID string) {
	shardContext, err := e.controller.GetShardByNamespaceWorkflow(ctx, namespaceID, workflowID)
	if err != nil {
		e.logger.Warn("failed to load shard for timer rebuild", tag.WorkflowID(workflowID), tag.Error(err))
		return
	}
	_, release, err := e.getMutableState(ctx, shardContext, namespaceID, workflowID, runID)
	if err != nil {
		e.logger.Warn("failed to load execution for timer rebuild",
			tag.WorkflowID(workflowID), tag.WorkflowRunID(runID), tag.Error(err))
		return
	}
	release(nil)
}

// getMutableState pins the execution in the cache. On a replay load it
// re-registers the execution's deadlines and undelivered tasks before
// returning.
func (e *Engine) getMutableState(
	ctx context.Context,
	shardContext shard.Context,
	namespaceID string,
	workflowID string,
	runID string,
) (*workflow.MutableState, workflow.ReleaseFunc, error) {
	ms, release, loaded, err := e.cache.GetOrLoad(ctx, shardContext, namespaceID, workflowID, runID)
	if err != nil {
		return nil, nil, err
	}
	if loaded {
		e.syncExecution(shardContext.GetShardID(), ms)
	}
	return ms, release, nil
}

// syncExecution re-arms the in-memory machinery after a replay load: timers
// derived from event times, plus matching tasks for work that was never
// started. Re-enqueued duplicates are rejected when recorded as started.
func (e *Engine) syncExecution(shardID int32, ms *workflow.MutableState) {
	if !ms.IsWorkflowRunning() {
		return
	}
	info := ms.GetExecutionInfo()
	tq := e.timerQueueForShard(shardID)
	addTimer := func(task workflow.TimerTask) {
		tq.add(&timerEntry{
			namespaceID: info.NamespaceID,
			workflowID:  info.WorkflowID,
			runID:       info.RunID,
			task:        task,
		})
	}
	var tasks []workflow.TransferTask

	if info.WorkflowRunTimeout > 0 {
		addTimer(workflow.TimerTask{
			Kind:     workflow.TimerTaskKindWorkflowRunTimeout,
			FireTime: info.StartTime.Add(info.WorkflowRunTimeout),
		})
	}

	switch wt := ms.GetPendingWorkflowTask(); {
	case wt == nil:
		if ms.GetLastWorkflowTaskStartedEventID() == common.EmptyEventID {
			// First workflow task was never scheduled; the start backoff is
			// still pending.
			addTimer(workflow.TimerTask{
				Kind:     workflow.TimerTaskKindWorkflowTaskBackoff,
				FireTime: info.StartTime.Add(info.FirstWorkflowTaskBackoff),
			})
		}
	case wt.StartedEventID == common.EmptyEventID:
		tasks = append(tasks, workflow.TransferTask{
			TaskType:         enums.TaskTypeWorkflow,
			TaskQueue:        info.TaskQueue.Name,
			ScheduledEventID: wt.ScheduledEventID,
		})
	default:
		if wt.StartToCloseTimeout > 0 {
			addTimer(workflow.TimerTask{
				Kind:     workflow.TimerTaskKindWorkflowTaskTimeout,
				FireTime: wt.StartedTime.Add(wt.StartToCloseTimeout),
				EventID:  wt.ScheduledEventID,
				Attempt:  wt.Attempt,
			})
		}
	}

	for _, ai := range ms.GetPendingActivities() {
		if ai.ScheduleToCloseTimeout > 0 {
			addTimer(workflow.TimerTask{
				Kind:     workflow.TimerTaskKindActivityScheduleToClose,
				FireTime: ai.ScheduledTime.Add(ai.ScheduleToCloseTimeout),
				EventID:  ai.ScheduledEventID,
			})
		}
		if ai.StartedEventID == common.EmptyEventID {
			if ai.ScheduleToStartTimeout > 0 {
				addTimer(workflow.TimerTask{
					Kind:     workflow.TimerTaskKindActivityScheduleToStart,
					FireTime: ai.ScheduledTime.Add(ai.ScheduleToStartTimeout),
					EventID:  ai.ScheduledEventID,
					Attempt:  ai.Attempt,
				})
			}
			tasks = append(tasks, workflow.TransferTask{
				TaskType:         enums.TaskTypeActivity,
				TaskQueue:        ai.TaskQueue.Name,
				ScheduledEventID: ai.ScheduledEventID,
			})
			continue
		}
		if ai.StartToCloseTimeout > 0 {
			addTimer(workflow.TimerTask{
				Kind:     workflow.TimerTaskKindActivityStartToClose,
				FireTime: ai.StartedTime.Add(ai.StartToCloseTimeout),
				EventID:  ai.ScheduledEventID,
				Attempt:  ai.Attempt,
			})
		}
		if ai.HeartbeatTimeout > 0 {
			addTimer(workflow.TimerTask{
				Kind:     workflow.TimerTaskKindActivityHeartbeat,
				FireTime: ai.LastHeartbeatTime.Add(ai.HeartbeatTimeout),
				EventID:  ai.ScheduledEventID,
				Attempt:  ai.Attempt,
			})
		}
	}

	for _, ti := range ms.GetPendingTimers() {
		addTimer(workflow.TimerTask{
			Kind:     workflow.TimerTaskKindUserTimer,
			FireTime: ti.ExpiryTime,
			EventID:  ti.StartedEventID,
			TimerID:  ti.TimerID,
		})
	}

	if len(tasks) > 0 {
		namespaceID, workflowID, runID := info.NamespaceID, info.WorkflowID, info.RunID
		go e.enqueueTransferTasks(namespaceID, workflowID, runID, tasks)
	}
}

func (e *Engine) timerQueueForShard(shardID int32) *timerQueue {
	e.timerLock.Lock()
	defer e.timerLock.Unlock()
	tq, ok := e.timerQueues[shardID]
	if !ok {
		tq = newTimerQueue(shardID, e)
		e.timerQueues[shardID] = tq
	}
	return tq
}

// updateWorkflow runs one action against the execution's replayed state and
// appends the minted events conditionally, retrying from a fresh replay when
// the append loses a race.
func (e *Engine) updateWorkflow(
	ctx context.Context,
	namespaceID string,
	workflowID string,
	runID string,
	action updateWorkflowAction,
) error {
	shardContext, err := e.controller.GetShardByNamespaceWorkflow(ctx, namespaceID, workflowID)
	if err != nil {
		return err
	}
	if runID == "" {
		runID, err = e.resolveCurrentRunID(ctx, shardContext, namespaceID, workflowID)
		if err != nil {
			return err
		}
	}

	for attempt := 0; attempt < conditionalRetryCount; attempt++ {
		err = e.updateWorkflowOnce(ctx, shardContext, namespaceID, workflowID, runID, action)
		var conditionFailed *persistence.ConditionFailedError
		if !errors.As(err, &conditionFailed) {
			return err
		}
		metrics.StaleMutableStateCounter.With(e.metricsHandler).Record(1)
	}
	return serviceerror.NewUnavailablef("workflow update lost %v conditional writes in a row", conditionalRetryCount)
}

func (e *Engine) updateWorkflowOnce(
	ctx context.Context,
	shardContext shard.Context,
	namespaceID string,
	workflowID string,
	runID string,
	action updateWorkflowAction,
) error {
	ms, release, err := e.getMutableState(ctx, shardContext, namespaceID, workflowID, runID)
	if err != nil {
		return err
	}

	builder := workflow.NewHistoryBuilder(e.timeSource, ms.GetNextEventID())
	if err := action(ms, builder); err != nil {
		release(nil)
		return err
	}
	batch := builder.Batch()
	if len(batch) == 0 {
		release(nil)
		return nil
	}

	expectedVersion := ms.GetLastEventVersion()
	taskIDs, err := shardContext.GenerateTaskIDs(len(batch))
	if err != nil {
		release(nil)
		return err
	}
	for i, event := range batch {
		event.TaskID = taskIDs[i]
	}

	effects, err := ms.ApplyEvents(batch)
	if err != nil {
		release(err)
		return err
	}

	info := ms.GetExecutionInfo()
	appendRequest := &persistence.AppendHistoryEventsRequest{
		NamespaceID:     namespaceID,
		WorkflowID:      workflowID,
		RunID:           runID,
		ExpectedVersion: expectedVersion,
		Events:          batch,
	}
	if !ms.IsWorkflowRunning() {
		appendRequest.NewStatus = info.Status
		appendRequest.CloseTime = info.CloseTime
	}

	if _, err := shardContext.AppendHistoryEvents(ctx, appendRequest); err != nil {
		// The cached state already applied the unwritten batch; drop it so
		// the next access replays the durable history.
		release(err)
		return err
	}
	metrics.HistoryEventsAppendedCounter.With(e.metricsHandler).Record(int64(len(batch)))

	infoCopy := *info
	canAttrs := ms.GetContinuedAsNewAttributes()
	release(nil)

	e.dispatchEffects(shardContext, namespaceID, workflowID, runID, effects)
	if infoCopy.Status != enums.WorkflowExecutionStatusRunning {
		e.recordClosure(infoCopy.Status)
		e.continueExecutionChain(ctx, shardContext, &infoCopy, canAttrs)
	}
	return nil
}

// dispatchEffects turns applied side effects into durable matching tasks and
// in-memory timers. Failures are logged, not returned: the history append
// already happened and the replay sync redrives lost effects.
func (e *Engine) dispatchEffects(
	shardContext shard.Context,
	namespaceID string,
	workflowID string,
	runID string,
	effects *workflow.SideEffects,
) {
	if len(effects.Tasks) > 0 {
		e.enqueueTransferTasks(namespaceID, workflowID, runID, effects.Tasks)
	}
	if len(effects.Timers) == 0 {
		return
	}
	tq := e.timerQueueForShard(shardContext.GetShardID())
	for _, timer := range effects.Timers {
		tq.add(&timerEntry{
			namespaceID: namespaceID,
			workflowID:  workflowID,
			runID:       runID,
			task:        timer,
		})
	}
}

func (e *Engine) enqueueTransferTasks(
	namespaceID string,
	workflowID string,
	runID string,
	tasks []workflow.TransferTask,
) {
	for _, task := range tasks {
		ctx, cancel := context.WithTimeout(context.Background(), taskDispatchTimeout)
		err := e.matchingClient.AddTask(ctx, &matching.AddTaskRequest{
			NamespaceID:      namespaceID,
			TaskQueue:        task.TaskQueue,
			TaskType:         task.TaskType,
			WorkflowID:       workflowID,
			RunID:            runID,
			ScheduledEventID: task.ScheduledEventID,
		})
		cancel()
		if err != nil {
			e.logger.Error("failed to enqueue task",
				tag.WorkflowID(workflowID),
				tag.WorkflowRunID(runID),
				tag.WorkflowScheduledEventID(task.ScheduledEventID),
				tag.Error(err),
			)
		}
	}
}

func (e *Engine) resolveCurrentRunID(
	ctx context.Context,
	shardContext shard.Context,
	namespaceID string,
	workflowID string,
) (string, error) {
	response, err := shardContext.GetCurrentExecution(ctx, &persistence.GetCurrentExecutionRequest{
		NamespaceID: namespaceID,
		WorkflowID:  workflowID,
	})
	if err != nil {
		return "", err
	}
	return response.CurrentExecution.RunID, nil
}

func (e *Engine) recordClosure(status enums.WorkflowExecutionStatus) {
	switch status {
	case enums.WorkflowExecutionStatusCompleted:
		metrics.WorkflowCompletedCounter.With(e.metricsHandler).Record(1)
	case enums.WorkflowExecutionStatusFailed:
		metrics.WorkflowFailedCounter.With(e.metricsHandler).Record(1)
	case enums.WorkflowExecutionStatusCanceled:
		metrics.WorkflowCanceledCounter.With(e.metricsHandler).Record(1)
	case enums.WorkflowExecutionStatusTerminated:
		metrics.WorkflowTerminatedCounter.With(e.metricsHandler).Record(1)
	case enums.WorkflowExecutionStatusTimedOut:
		metrics.WorkflowTimedOutCounter.With(e.metricsHandler).Record(1)
	case enums.WorkflowExecutionStatusContinuedAsNew:
		metrics.WorkflowContinuedAsNewCounter.With(e.metricsHandler).Record(1)
	}
}

// StartWorkflowExecution starts a new run, deduplicating on request id when
// the workflow id is already taken by a running execution.
func (e *Engine) StartWorkflowExecution(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.StartWorkflowExecutionRequest,
) (*workflowservice.StartWorkflowExecutionResponse, error) {
	shardContext, err := e.controller.GetShardByNamespaceWorkflow(ctx, namespaceID, request.WorkflowID)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	attrs, err := e.startAttributes(request, runID)
	if err != nil {
		return nil, err
	}
	runID, err = e.createExecution(ctx, shardContext, createExecutionParams{
		namespaceID: namespaceID,
		workflowID:  request.WorkflowID,
		runID:       runID,
		requestID:   request.RequestID,
		attrs:       attrs,
	})
	if err != nil {
		return nil, err
	}
	return &workflowservice.StartWorkflowExecutionResponse{RunID: runID}, nil
}

func (e *Engine) startAttributes(
	request *workflowservice.StartWorkflowExecutionRequest,
	runID string,
) (*apihistory.WorkflowExecutionStartedEventAttributes, error) {
	runTimeout := request.WorkflowRunTimeout
	if runTimeout <= 0 {
		runTimeout = e.config.DefaultWorkflowRunTimeout()
	}
	taskTimeout := request.WorkflowTaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = e.config.DefaultWorkflowTaskTimeout()
	}

	var backoff time.Duration
	if request.CronSchedule != "" {
		var err error
		backoff, err = workflow.NextCronBackoff(request.CronSchedule, e.timeSource.Now())
		if err != nil {
			return nil, err
		}
	}
	return &apihistory.WorkflowExecutionStartedEventAttributes{
		WorkflowType:             request.WorkflowType,
		TaskQueue:                request.TaskQueue,
		Input:                    request.Input,
		WorkflowRunTimeout:       runTimeout,
		WorkflowTaskTimeout:      taskTimeout,
		CronSchedule:             request.CronSchedule,
		Identity:                 request.Identity,
		Attempt:                  1,
		FirstExecutionRunID:      runID,
		FirstWorkflowTaskBackoff: backoff,
	}, nil
}

type createExecutionParams struct {
	namespaceID string
	workflowID  string
	runID       string
	requestID   string
	// previousRunID chains the new run onto a closed current run.
	previousRunID string
	attrs         *apihistory.WorkflowExecutionStartedEventAttributes

	// signal, when set, lands in the first event batch.
	signalName     string
	signalInput    types.Payload
	signalIdentity string
	withSignal     bool
}

// createExecution writes the initial event batch of a new run. On a current
// record collision it deduplicates by request id, chains onto a closed run,
// or surfaces WorkflowExecutionAlreadyStarted.
func (e *Engine) createExecution(
	ctx context.Context,
	shardContext shard.Context,
	params createExecutionParams,
) (string, error) {
	builder := workflow.NewHistoryBuilder(e.timeSource, common.FirstEventID)
	builder.AddWorkflowExecutionStartedEvent(params.attrs)
	if params.withSignal {
		builder.AddWorkflowExecutionSignaledEvent(params.signalName, params.signalInput, params.signalIdentity)
	}
	if params.attrs.FirstWorkflowTaskBackoff <= 0 {
		builder.AddWorkflowTaskScheduledEvent(params.attrs.TaskQueue, params.attrs.WorkflowTaskTimeout, 1)
	}
	batch := builder.Batch()

	taskIDs, err := shardContext.GenerateTaskIDs(len(batch))
	if err != nil {
		return "", err
	}
	for i, event := range batch {
		event.TaskID = taskIDs[i]
	}

	ms := workflow.NewMutableState(params.namespaceID, params.workflowID, params.runID)
	effects, err := ms.ApplyEvents(batch)
	if err != nil {
		return "", err
	}

	previousRunID := params.previousRunID
	for {
		_, err = shardContext.CreateWorkflowExecution(ctx, &persistence.CreateWorkflowExecutionRequest{
			NamespaceID:   params.namespaceID,
			WorkflowID:    params.workflowID,
			RunID:         params.runID,
			RequestID:     params.requestID,
			StartTime:     batch[0].EventTime,
			PreviousRunID: previousRunID,
			Events:        batch,
		})
		if err == nil {
			break
		}

		var currentErr *persistence.CurrentWorkflowConditionFailedError
		if !errors.As(err, &currentErr) {
			return "", err
		}
		if currentErr.RunID == params.runID {
			// A previous attempt of this exact create already landed.
			return params.runID, nil
		}
		if currentErr.Status == enums.WorkflowExecutionStatusRunning {
			if params.requestID != "" && currentErr.RequestID == params.requestID {
				return currentErr.RunID, nil
			}
			return "", serviceerror.NewWorkflowExecutionAlreadyStarted(
				"workflow execution is already running: "+params.workflowID,
				currentErr.RequestID,
				currentErr.RunID,
			)
		}
		if previousRunID != "" {
			// Already chained once; the current record moved again underneath
			// us and the caller must re-drive.
			return "", err
		}
		previousRunID = currentErr.RunID
	}

	metrics.WorkflowStartedCounter.With(e.metricsHandler).Record(1)
	e.dispatchEffects(shardContext, params.namespaceID, params.workflowID, params.runID, effects)
	return params.runID, nil
}

// continueExecutionChain starts the follow-up run of a closed execution:
// the continue-as-new target, or the next cron occurrence.
func (e *Engine) continueExecutionChain(
	ctx context.Context,
	shardContext shard.Context,
	info *workflow.ExecutionInfo,
	canAttrs *apihistory.WorkflowExecutionContinuedAsNewEventAttributes,
) {
	var params createExecutionParams
	switch info.Status {
	case enums.WorkflowExecutionStatusContinuedAsNew:
		if canAttrs == nil {
			e.logger.Error("continued-as-new closure without attributes",
				tag.WorkflowID(info.WorkflowID), tag.WorkflowRunID(info.RunID))
			return
		}
		attempt := int32(1)
		if canAttrs.Initiator == enums.ContinueAsNewInitiatorRetry {
			attempt = info.Attempt + 1
		}
		params = createExecutionParams{
			namespaceID:   info.NamespaceID,
			workflowID:    info.WorkflowID,
			runID:         canAttrs.NewExecutionRunID,
			requestID:     uuid.NewString(),
			previousRunID: info.RunID,
			attrs: &apihistory.WorkflowExecutionStartedEventAttributes{
				WorkflowType:             canAttrs.WorkflowType,
				TaskQueue:                canAttrs.TaskQueue,
				Input:                    canAttrs.Input,
				WorkflowRunTimeout:       canAttrs.WorkflowRunTimeout,
				WorkflowTaskTimeout:      canAttrs.WorkflowTaskTimeout,
				CronSchedule:             info.CronSchedule,
				Attempt:                  attempt,
				FirstExecutionRunID:      info.FirstExecutionRunID,
				ContinuedExecutionRunID:  info.RunID,
				FirstWorkflowTaskBackoff: canAttrs.BackoffStartInterval,
			},
		}

	case enums.WorkflowExecutionStatusCompleted,
		enums.WorkflowExecutionStatusFailed,
		enums.WorkflowExecutionStatusTimedOut:
		if info.CronSchedule == "" || info.CloseTime == nil {
			return
		}
		backoff, err := workflow.NextCronBackoff(info.CronSchedule, *info.CloseTime)
		if err != nil || backoff <= 0 {
			return
		}
		params = createExecutionParams{
			namespaceID:   info.NamespaceID,
			workflowID:    info.WorkflowID,
			runID:         uuid.NewString(),
			requestID:     uuid.NewString(),
			previousRunID: info.RunID,
			attrs: &apihistory.WorkflowExecutionStartedEventAttributes{
				WorkflowType:             info.WorkflowType,
				TaskQueue:                info.TaskQueue,
				Input:                    info.Input,
				WorkflowRunTimeout:       info.WorkflowRunTimeout,
				WorkflowTaskTimeout:      info.WorkflowTaskTimeout,
				CronSchedule:             info.CronSchedule,
				Attempt:                  1,
				FirstExecutionRunID:      info.FirstExecutionRunID,
				ContinuedExecutionRunID:  info.RunID,
				FirstWorkflowTaskBackoff: backoff,
			},
		}

	default:
		return
	}

	if _, err := e.createExecution(ctx, shardContext, params); err != nil {
		e.logger.Error("failed to start chained run",
			tag.WorkflowID(info.WorkflowID),
			tag.WorkflowRunID(info.RunID),
			tag.Error(err),
		)
	}
}

// SignalWorkflowExecution appends a signal event to the target run.
func (e *Engine) SignalWorkflowExecution(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.SignalWorkflowExecutionRequest,
) error {
	return e.updateWorkflow(ctx, namespaceID, request.WorkflowID, request.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return serviceerror.NewNotFound("workflow execution already completed")
		}
		builder.AddWorkflowExecutionSignaledEvent(request.SignalName, request.Input, request.Identity)
		e.scheduleWorkflowTaskIfNeeded(ms, builder)
		metrics.WorkflowSignalCounter.With(e.metricsHandler).Record(1)
		return nil
	})
}

// SignalWithStartWorkflowExecution signals the current run, starting a fresh
// one carrying the signal when no run is in progress.
func (e *Engine) SignalWithStartWorkflowExecution(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.SignalWithStartWorkflowExecutionRequest,
) (*workflowservice.SignalWithStartWorkflowExecutionResponse, error) {
	start := request.StartRequest
	shardContext, err := e.controller.GetShardByNamespaceWorkflow(ctx, namespaceID, start.WorkflowID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		var signaledRunID string
		err = e.updateWorkflow(ctx, namespaceID, start.WorkflowID, "", func(
			ms *workflow.MutableState,
			builder *workflow.HistoryBuilder,
		) error {
			if !ms.IsWorkflowRunning() {
				return serviceerror.NewNotFound("workflow execution already completed")
			}
			signaledRunID = ms.GetExecutionInfo().RunID
			builder.AddWorkflowExecutionSignaledEvent(request.SignalName, request.SignalInput, start.Identity)
			e.scheduleWorkflowTaskIfNeeded(ms, builder)
			metrics.WorkflowSignalCounter.With(e.metricsHandler).Record(1)
			return nil
		})
		if err == nil {
			return &workflowservice.SignalWithStartWorkflowExecutionResponse{RunID: signaledRunID}, nil
		}
		var notFound *serviceerror.NotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}

		runID := uuid.NewString()
		attrs, err := e.startAttributes(start, runID)
		if err != nil {
			return nil, err
		}
		runID, err = e.createExecution(ctx, shardContext, createExecutionParams{
			namespaceID:    namespaceID,
			workflowID:     start.WorkflowID,
			runID:          runID,
			requestID:      start.RequestID,
			attrs:          attrs,
			signalName:     request.SignalName,
			signalInput:    request.SignalInput,
			signalIdentity: start.Identity,
			withSignal:     true,
		})
		if err == nil {
			return &workflowservice.SignalWithStartWorkflowExecutionResponse{RunID: runID, Started: true}, nil
		}
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if !errors.As(err, &alreadyStarted) {
			return nil, err
		}
		// Lost the start race; the next iteration signals the winner.
	}
	return nil, serviceerror.NewUnavailable("signal with start lost repeated start races")
}

// RequestCancelWorkflowExecution records a cancellation request. Cancellation
// is cooperative: the workflow decides how to wind down.
func (e *Engine) RequestCancelWorkflowExecution(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.RequestCancelWorkflowExecutionRequest,
) error {
	return e.updateWorkflow(ctx, namespaceID, request.WorkflowID, request.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return serviceerror.NewNotFound("workflow execution already completed")
		}
		if ms.IsCancelRequested() {
			// Idempotent; the request is already on record.
			return nil
		}
		builder.AddWorkflowExecutionCancelRequestedEvent(request.Cause, request.Identity)
		e.scheduleWorkflowTaskIfNeeded(ms, builder)
		return nil
	})
}

// TerminateWorkflowExecution force-closes the run without giving workflow
// code a chance to react.
func (e *Engine) TerminateWorkflowExecution(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.TerminateWorkflowExecutionRequest,
) error {
	return e.updateWorkflow(ctx, namespaceID, request.WorkflowID, request.RunID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return serviceerror.NewNotFound("workflow execution already completed")
		}
		builder.AddWorkflowExecutionTerminatedEvent(request.Reason, request.Details, request.Identity)
		return nil
	})
}

// DescribeWorkflowExecution returns the replay-derived snapshot of a run.
func (e *Engine) DescribeWorkflowExecution(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.DescribeWorkflowExecutionRequest,
) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	var response *workflowservice.DescribeWorkflowExecutionResponse
	err := e.readWorkflow(ctx, namespaceID, request.WorkflowID, request.RunID, func(ms *workflow.MutableState) error {
		info := ms.GetExecutionInfo()
		response = &workflowservice.DescribeWorkflowExecutionResponse{
			WorkflowExecutionInfo: executionInfoToAPI(info, ms.GetLastEventVersion()),
		}
		for _, ai := range ms.GetPendingActivities() {
			pending := workflowservice.PendingActivityInfo{
				ActivityID:    ai.ActivityID,
				ActivityType:  ai.ActivityType,
				Attempt:       ai.Attempt,
				ScheduledTime: ai.ScheduledTime,
				LastFailure:   ai.LastFailure,
			}
			if !ai.LastHeartbeatTime.IsZero() {
				heartbeat := ai.LastHeartbeatTime
				pending.LastHeartbeatTime = &heartbeat
			}
			if ai.LastFailure != nil {
				if delay, state := workflow.NextRetryDelay(ai.RetryPolicy, ai.Attempt, ai.LastFailure); state == enums.RetryStateInProgress {
					pending.NextAttemptDelayed = delay
				}
			}
			response.PendingActivities = append(response.PendingActivities, pending)
		}
		return nil
	})
	return response, err
}

// Built-in query types answered straight from mutable state.
const (
	queryTypeStatus            = "__status"
	queryTypePendingActivities = "__pending_activities"
	queryTypeStackDepth        = "__history_length"
)

// QueryWorkflow answers a built-in query from the replayed state. Custom
// query handlers live in worker code, which this server does not call into.
func (e *Engine) QueryWorkflow(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.QueryWorkflowRequest,
) (*workflowservice.QueryWorkflowResponse, error) {
	var response *workflowservice.QueryWorkflowResponse
	err := e.readWorkflow(ctx, namespaceID, request.WorkflowID, request.RunID, func(ms *workflow.MutableState) error {
		var result interface{}
		switch request.QueryType {
		case queryTypeStatus:
			result = ms.GetExecutionInfo().Status.String()
		case queryTypePendingActivities:
			ids := make([]string, 0, len(ms.GetPendingActivities()))
			for _, ai := range ms.GetPendingActivities() {
				ids = append(ids, ai.ActivityID)
			}
			result = ids
		case queryTypeStackDepth:
			result = ms.GetLastEventVersion()
		default:
			return serviceerror.NewInvalidArgumentf("unsupported query type %q", request.QueryType)
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return serviceerror.NewInternalf("unable to encode query result: %v", err)
		}
		response = &workflowservice.QueryWorkflowResponse{QueryResult: encoded}
		return nil
	})
	return response, err
}

// GetWorkflowExecutionHistory reads one page of a run's history.
func (e *Engine) GetWorkflowExecutionHistory(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.GetWorkflowExecutionHistoryRequest,
) (*workflowservice.GetWorkflowExecutionHistoryResponse, error) {
	shardContext, err := e.controller.GetShardByNamespaceWorkflow(ctx, namespaceID, request.WorkflowID)
	if err != nil {
		return nil, err
	}
	runID := request.RunID
	if runID == "" {
		runID, err = e.resolveCurrentRunID(ctx, shardContext, namespaceID, request.WorkflowID)
		if err != nil {
			return nil, err
		}
	}

	pageSize := int(request.MaximumPageSize)
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	response, err := shardContext.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
		NamespaceID:   namespaceID,
		WorkflowID:    request.WorkflowID,
		RunID:         runID,
		MinEventID:    common.FirstEventID,
		PageSize:      pageSize,
		NextPageToken: request.NextPageToken,
	})
	if err != nil {
		return nil, err
	}
	return &workflowservice.GetWorkflowExecutionHistoryResponse{
		Events:        response.Events,
		NextPageToken: response.NextPageToken,
	}, nil
}

// ListWorkflowExecutions pages over the namespace's current runs.
func (e *Engine) ListWorkflowExecutions(
	ctx context.Context,
	namespaceID string,
	request *workflowservice.ListWorkflowExecutionsRequest,
) (*workflowservice.ListWorkflowExecutionsResponse, error) {
	response, err := e.executionStore.ListCurrentExecutions(ctx, &persistence.ListCurrentExecutionsRequest{
		NamespaceID:   namespaceID,
		PageSize:      int(request.PageSize),
		NextPageToken: request.NextPageToken,
	})
	if err != nil {
		return nil, err
	}

	result := &workflowservice.ListWorkflowExecutionsResponse{
		NextPageToken: response.NextPageToken,
	}
	for _, execution := range response.Executions {
		info := workflowservice.WorkflowExecutionInfo{
			Execution: apitypesExecution(execution.WorkflowID, execution.RunID),
			Status:    execution.Status,
			StartTime: execution.StartTime,
			CloseTime: execution.CloseTime,
			// HistoryVersion tracks the last appended event id.
			HistoryLength: execution.HistoryVersion,
		}
		// The current record does not carry type and queue; the first event
		// does.
		firstPage, err := e.executionStore.ReadHistoryEvents(ctx, &persistence.ReadHistoryEventsRequest{
			NamespaceID: execution.NamespaceID,
			WorkflowID:  execution.WorkflowID,
			RunID:       execution.RunID,
			MinEventID:  common.FirstEventID,
			PageSize:    1,
		})
		if err == nil && len(firstPage.Events) > 0 {
			if attrs := firstPage.Events[0].WorkflowExecutionStartedEventAttributes; attrs != nil {
				info.WorkflowType = attrs.WorkflowType
				info.TaskQueue = attrs.TaskQueue
			}
		}
		result.Executions = append(result.Executions, info)
	}
	return result, nil
}

// readWorkflow pins the execution and runs a read-only view function.
func (e *Engine) readWorkflow(
	ctx context.Context,
	namespaceID string,
	workflowID string,
	runID string,
	view func(ms *workflow.MutableState) error,
) error {
	shardContext, err := e.controller.GetShardByNamespaceWorkflow(ctx, namespaceID, workflowID)
	if err != nil {
		return err
	}
	if runID == "" {
		runID, err = e.resolveCurrentRunID(ctx, shardContext, namespaceID, workflowID)
		if err != nil {
			return err
		}
	}

	ms, release, err := e.getMutableState(ctx, shardContext, namespaceID, workflowID, runID)
	if err != nil {
		return err
	}
	defer release(nil)
	return view(ms)
}

func (e *Engine) scheduleWorkflowTaskIfNeeded(ms *workflow.MutableState, builder *workflow.HistoryBuilder) {
	if ms.HasPendingWorkflowTask() {
		return
	}
	info := ms.GetExecutionInfo()
	builder.AddWorkflowTaskScheduledEvent(info.TaskQueue, info.WorkflowTaskTimeout, 1)
}

// fireTimer routes one due deadline to its handler. Handlers re-check the
// replayed state, so a stale entry degrades to a no-op.
func (e *Engine) fireTimer(shardID int32, entry *timerEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), timerFireTimeout)
	defer cancel()

	metrics.TimerFiredCounter.With(e.metricsHandler).Record(1)

	var err error
	switch entry.task.Kind {
	case workflow.TimerTaskKindUserTimer:
		err = e.fireUserTimer(ctx, entry)
	case workflow.TimerTaskKindWorkflowRunTimeout:
		err = e.fireWorkflowRunTimeout(ctx, entry)
	case workflow.TimerTaskKindWorkflowTaskBackoff:
		err = e.fireWorkflowTaskBackoff(ctx, entry)
	case workflow.TimerTaskKindWorkflowTaskTimeout:
		err = e.fireWorkflowTaskTimeout(ctx, entry)
	case workflow.TimerTaskKindActivityScheduleToClose,
		workflow.TimerTaskKindActivityScheduleToStart,
		workflow.TimerTaskKindActivityStartToClose,
		workflow.TimerTaskKindActivityHeartbeat:
		err = e.fireActivityTimeout(ctx, shardID, entry)
	case workflow.TimerTaskKindActivityRetry:
		err = e.fireActivityRetry(ctx, entry)
	}
	if err != nil && !isBenignTimerError(err) {
		e.logger.Error("failed to process timer",
			tag.WorkflowID(entry.workflowID),
			tag.WorkflowRunID(entry.runID),
			tag.WorkflowEventID(entry.task.EventID),
			tag.Error(err),
		)
	}
}

// isBenignTimerError filters errors that mean the timer's target is simply
// gone: closed run, deleted execution.
func isBenignTimerError(err error) bool {
	var notFound *serviceerror.NotFound
	return errors.As(err, &notFound)
}

func (e *Engine) fireUserTimer(ctx context.Context, entry *timerEntry) error {
	return e.updateWorkflow(ctx, entry.namespaceID, entry.workflowID, entry.runID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return nil
		}
		ti, ok := ms.GetTimer(entry.task.TimerID)
		if !ok || ti.StartedEventID != entry.task.EventID {
			return nil
		}
		if e.timeSource.Now().Before(ti.ExpiryTime) {
			return nil
		}
		builder.AddTimerFiredEvent(ti.TimerID, ti.StartedEventID)
		e.scheduleWorkflowTaskIfNeeded(ms, builder)
		return nil
	})
}

func (e *Engine) fireWorkflowRunTimeout(ctx context.Context, entry *timerEntry) error {
	return e.updateWorkflow(ctx, entry.namespaceID, entry.workflowID, entry.runID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() {
			return nil
		}
		info := ms.GetExecutionInfo()
		if info.WorkflowRunTimeout <= 0 ||
			e.timeSource.Now().Before(info.StartTime.Add(info.WorkflowRunTimeout)) {
			return nil
		}
		builder.AddWorkflowExecutionTimedOutEvent(enums.RetryStateTimeout)
		return nil
	})
}

func (e *Engine) fireWorkflowTaskBackoff(ctx context.Context, entry *timerEntry) error {
	return e.updateWorkflow(ctx, entry.namespaceID, entry.workflowID, entry.runID, func(
		ms *workflow.MutableState,
		builder *workflow.HistoryBuilder,
	) error {
		if !ms.IsWorkflowRunning() || ms.HasPendingWorkflowTask() {
			return nil
		}
		if ms.GetLastWorkflowTaskStartedEventID() != common.EmptyEventID {
			// The first workflow task already ran; nothing to kick off.
			return nil
		}
		e.scheduleWorkflowTaskIfNeeded(ms, builder)
		return nil
	})
}

func apitypesExecution(workflowID string, runID string) types.WorkflowExecution {
	return types.WorkflowExecution{WorkflowID: workflowID, RunID: runID}
}

func executionInfoToAPI(info *workflow.ExecutionInfo, historyLength int64) workflowservice.WorkflowExecutionInfo {
	return workflowservice.WorkflowExecutionInfo{
		Execution:     apitypesExecution(info.WorkflowID, info.RunID),
		WorkflowType:  info.WorkflowType,
		TaskQueue:     info.TaskQueue,
		Status:        info.Status,
		StartTime:     info.StartTime,
		CloseTime:     info.CloseTime,
		HistoryLength: historyLength,
	}
}
