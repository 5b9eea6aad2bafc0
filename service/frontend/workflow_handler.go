package frontend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/api/enums"
	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/log/tag"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/namespace"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/quotas"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/common/tasktoken"
	"github.com/strandhq/strand/service/history"
	"github.com/strandhq/strand/service/history/workflow"
	"github.com/strandhq/strand/service/matching"
)

type (
	// HistoryEngine is the slice of the history service the frontend calls.
	HistoryEngine interface {
		StartWorkflowExecution(ctx context.Context, namespaceID string, request *workflowservice.StartWorkflowExecutionRequest) (*workflowservice.StartWorkflowExecutionResponse, error)
		SignalWorkflowExecution(ctx context.Context, namespaceID string, request *workflowservice.SignalWorkflowExecutionRequest) error
		SignalWithStartWorkflowExecution(ctx context.Context, namespaceID string, request *workflowservice.SignalWithStartWorkflowExecutionRequest) (*workflowservice.SignalWithStartWorkflowExecutionResponse, error)
		RequestCancelWorkflowExecution(ctx context.Context, namespaceID string, request *workflowservice.RequestCancelWorkflowExecutionRequest) error
		TerminateWorkflowExecution(ctx context.Context, namespaceID string, request *workflowservice.TerminateWorkflowExecutionRequest) error
		DescribeWorkflowExecution(ctx context.Context, namespaceID string, request *workflowservice.DescribeWorkflowExecutionRequest) (*workflowservice.DescribeWorkflowExecutionResponse, error)
		QueryWorkflow(ctx context.Context, namespaceID string, request *workflowservice.QueryWorkflowRequest) (*workflowservice.QueryWorkflowResponse, error)
		GetWorkflowExecutionHistory(ctx context.Context, namespaceID string, request *workflowservice.GetWorkflowExecutionHistoryRequest) (*workflowservice.GetWorkflowExecutionHistoryResponse, error)
		ListWorkflowExecutions(ctx context.Context, namespaceID string, request *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error)

		RecordWorkflowTaskStarted(ctx context.Context, task *persistence.TaskInfo, requestID string, identity string) (*history.RecordWorkflowTaskStartedResponse, error)
		RespondWorkflowTaskCompleted(ctx context.Context, token *tasktoken.Token, request *workflowservice.RespondWorkflowTaskCompletedRequest) error
		RespondWorkflowTaskFailed(ctx context.Context, token *tasktoken.Token, request *workflowservice.RespondWorkflowTaskFailedRequest) error
		RecordActivityTaskStarted(ctx context.Context, task *persistence.TaskInfo, requestID string, identity string) (*history.RecordActivityTaskStartedResponse, error)
		RespondActivityTaskCompleted(ctx context.Context, token *tasktoken.Token, request *workflowservice.RespondActivityTaskCompletedRequest) error
		RespondActivityTaskFailed(ctx context.Context, token *tasktoken.Token, request *workflowservice.RespondActivityTaskFailedRequest) error
		RecordActivityTaskHeartbeat(ctx context.Context, token *tasktoken.Token, request *workflowservice.RecordActivityTaskHeartbeatRequest) (*workflowservice.RecordActivityTaskHeartbeatResponse, error)
	}

	// MatchingEngine is the slice of the matching service the frontend calls.
	MatchingEngine interface {
		PollTask(ctx context.Context, request *matching.PollTaskRequest) (*matching.PollTaskResponse, error)
		AckTask(token matching.LeaseToken)
		NackTask(token matching.LeaseToken)
	}

	// WorkflowHandler implements the client and worker facing workflow
	// service: request validation, namespace resolution, rate limiting, and
	// the poll loops that bridge matching leases to history state
	// transitions.
	WorkflowHandler struct {
		config            *Config
		historyEngine     HistoryEngine
		matchingEngine    MatchingEngine
		namespaceRegistry namespace.Registry
		tokenSerializer   *tasktoken.Serializer
		rateLimiter       quotas.RateLimiter
		metricsHandler    metrics.Handler
		logger            log.Logger

		namespaceLimitersLock sync.Mutex
		namespaceLimiters     map[string]quotas.RateLimiter
	}
)

var errRateLimitExceeded = serviceerror.NewUnavailable("service rate limit exceeded")

// NewWorkflowHandler builds the frontend workflow handler.
func NewWorkflowHandler(
	config *Config,
	historyEngine HistoryEngine,
	matchingEngine MatchingEngine,
	namespaceRegistry namespace.Registry,
	metricsHandler metrics.Handler,
	logger log.Logger,
) *WorkflowHandler {
	return &WorkflowHandler{
		config:            config,
		historyEngine:     historyEngine,
		matchingEngine:    matchingEngine,
		namespaceRegistry: namespaceRegistry,
		tokenSerializer:   tasktoken.NewSerializer(),
		rateLimiter:       quotas.NewDefaultIncomingRateLimiter(quotas.RateFn(config.RPS)),
		metricsHandler:    metricsHandler,
		logger:            logger,
		namespaceLimiters: make(map[string]quotas.RateLimiter),
	}
}

// StartWorkflowExecution starts a new workflow execution.
func (wh *WorkflowHandler) StartWorkflowExecution(
	ctx context.Context,
	request *workflowservice.StartWorkflowExecutionRequest,
) (_ *workflowservice.StartWorkflowExecutionResponse, retError error) {
	handler, start := wh.beginOperation("StartWorkflowExecution", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveActiveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateStartRequest(request); err != nil {
		return nil, err
	}
	return wh.historyEngine.StartWorkflowExecution(ctx, namespaceID, request)
}

// SignalWorkflowExecution delivers a signal to a workflow execution.
func (wh *WorkflowHandler) SignalWorkflowExecution(
	ctx context.Context,
	request *workflowservice.SignalWorkflowExecutionRequest,
) (_ *workflowservice.SignalWorkflowExecutionResponse, retError error) {
	handler, start := wh.beginOperation("SignalWorkflowExecution", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("WorkflowId", request.WorkflowID); err != nil {
		return nil, err
	}
	if err := wh.validateID("SignalName", request.SignalName); err != nil {
		return nil, err
	}
	if err := wh.historyEngine.SignalWorkflowExecution(ctx, namespaceID, request); err != nil {
		return nil, err
	}
	return &workflowservice.SignalWorkflowExecutionResponse{}, nil
}

// SignalWithStartWorkflowExecution signals the current run of a workflow,
// starting a new run first when none is in progress.
func (wh *WorkflowHandler) SignalWithStartWorkflowExecution(
	ctx context.Context,
	request *workflowservice.SignalWithStartWorkflowExecutionRequest,
) (_ *workflowservice.SignalWithStartWorkflowExecutionResponse, retError error) {
	if request.StartRequest == nil {
		return nil, serviceerror.NewInvalidArgument("StartRequest is not set")
	}
	handler, start := wh.beginOperation("SignalWithStartWorkflowExecution", request.StartRequest.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveActiveNamespace(handler, request.StartRequest.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateStartRequest(request.StartRequest); err != nil {
		return nil, err
	}
	if err := wh.validateID("SignalName", request.SignalName); err != nil {
		return nil, err
	}
	return wh.historyEngine.SignalWithStartWorkflowExecution(ctx, namespaceID, request)
}

// RequestCancelWorkflowExecution asks a workflow execution to cancel.
func (wh *WorkflowHandler) RequestCancelWorkflowExecution(
	ctx context.Context,
	request *workflowservice.RequestCancelWorkflowExecutionRequest,
) (_ *workflowservice.RequestCancelWorkflowExecutionResponse, retError error) {
	handler, start := wh.beginOperation("RequestCancelWorkflowExecution", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("WorkflowId", request.WorkflowID); err != nil {
		return nil, err
	}
	if err := wh.historyEngine.RequestCancelWorkflowExecution(ctx, namespaceID, request); err != nil {
		return nil, err
	}
	return &workflowservice.RequestCancelWorkflowExecutionResponse{}, nil
}

// TerminateWorkflowExecution force-closes a workflow execution.
func (wh *WorkflowHandler) TerminateWorkflowExecution(
	ctx context.Context,
	request *workflowservice.TerminateWorkflowExecutionRequest,
) (_ *workflowservice.TerminateWorkflowExecutionResponse, retError error) {
	handler, start := wh.beginOperation("TerminateWorkflowExecution", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("WorkflowId", request.WorkflowID); err != nil {
		return nil, err
	}
	if err := wh.historyEngine.TerminateWorkflowExecution(ctx, namespaceID, request); err != nil {
		return nil, err
	}
	return &workflowservice.TerminateWorkflowExecutionResponse{}, nil
}

// DescribeWorkflowExecution returns a snapshot of a workflow execution.
func (wh *WorkflowHandler) DescribeWorkflowExecution(
	ctx context.Context,
	request *workflowservice.DescribeWorkflowExecutionRequest,
) (_ *workflowservice.DescribeWorkflowExecutionResponse, retError error) {
	handler, start := wh.beginOperation("DescribeWorkflowExecution", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("WorkflowId", request.WorkflowID); err != nil {
		return nil, err
	}
	return wh.historyEngine.DescribeWorkflowExecution(ctx, namespaceID, request)
}

// QueryWorkflow answers a query against a workflow execution's state.
func (wh *WorkflowHandler) QueryWorkflow(
	ctx context.Context,
	request *workflowservice.QueryWorkflowRequest,
) (_ *workflowservice.QueryWorkflowResponse, retError error) {
	handler, start := wh.beginOperation("QueryWorkflow", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("WorkflowId", request.WorkflowID); err != nil {
		return nil, err
	}
	if request.QueryType == "" {
		return nil, serviceerror.NewInvalidArgument("QueryType is not set")
	}
	return wh.historyEngine.QueryWorkflow(ctx, namespaceID, request)
}

// GetWorkflowExecutionHistory reads one page of an execution's history.
func (wh *WorkflowHandler) GetWorkflowExecutionHistory(
	ctx context.Context,
	request *workflowservice.GetWorkflowExecutionHistoryRequest,
) (_ *workflowservice.GetWorkflowExecutionHistoryResponse, retError error) {
	handler, start := wh.beginOperation("GetWorkflowExecutionHistory", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("WorkflowId", request.WorkflowID); err != nil {
		return nil, err
	}
	maxPageSize := int32(wh.config.HistoryMaxPageSize())
	if request.MaximumPageSize <= 0 || request.MaximumPageSize > maxPageSize {
		request.MaximumPageSize = maxPageSize
	}
	return wh.historyEngine.GetWorkflowExecutionHistory(ctx, namespaceID, request)
}

// ListWorkflowExecutions pages over a namespace's workflow executions.
func (wh *WorkflowHandler) ListWorkflowExecutions(
	ctx context.Context,
	request *workflowservice.ListWorkflowExecutionsRequest,
) (_ *workflowservice.ListWorkflowExecutionsResponse, retError error) {
	handler, start := wh.beginOperation("ListWorkflowExecutions", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	return wh.historyEngine.ListWorkflowExecutions(ctx, namespaceID, request)
}

// PollWorkflowTaskQueue long-polls for a workflow task. An empty response
// means the poll window lapsed without a task; the worker should poll again.
func (wh *WorkflowHandler) PollWorkflowTaskQueue(
	ctx context.Context,
	request *workflowservice.PollWorkflowTaskQueueRequest,
) (_ *workflowservice.PollWorkflowTaskQueueResponse, retError error) {
	handler, start := wh.beginOperation("PollWorkflowTaskQueue", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("TaskQueue", request.TaskQueue.Name); err != nil {
		return nil, err
	}

	for {
		poll, err := wh.matchingEngine.PollTask(ctx, &matching.PollTaskRequest{
			NamespaceID: namespaceID,
			TaskQueue:   request.TaskQueue.Name,
			TaskType:    enums.TaskTypeWorkflow,
		})
		if errors.Is(err, matching.ErrNoTasks) {
			return &workflowservice.PollWorkflowTaskQueueResponse{}, nil
		}
		if err != nil {
			return nil, translateError(err)
		}

		started, err := wh.historyEngine.RecordWorkflowTaskStarted(ctx, poll.Task, uuid.NewString(), request.Identity)
		if err != nil {
			var notFound *serviceerror.NotFound
			if errors.As(err, &notFound) {
				// The task is stale; the workflow moved on without it.
				wh.matchingEngine.AckTask(poll.Lease)
				continue
			}
			wh.matchingEngine.NackTask(poll.Lease)
			return nil, translateError(err)
		}
		wh.matchingEngine.AckTask(poll.Lease)

		token, err := wh.tokenSerializer.Serialize(&tasktoken.Token{
			NamespaceID:      namespaceID,
			WorkflowID:       poll.Task.WorkflowID,
			RunID:            poll.Task.RunID,
			ScheduledEventID: started.ScheduledEventID,
			StartedEventID:   started.StartedEventID,
			Attempt:          started.Attempt,
		})
		if err != nil {
			return nil, err
		}
		events, err := wh.fetchFullHistory(ctx, namespaceID, poll.Task.WorkflowID, poll.Task.RunID)
		if err != nil {
			return nil, err
		}
		return &workflowservice.PollWorkflowTaskQueueResponse{
			TaskToken: token,
			WorkflowExecution: types.WorkflowExecution{
				WorkflowID: poll.Task.WorkflowID,
				RunID:      poll.Task.RunID,
			},
			WorkflowType:           started.WorkflowType,
			PreviousStartedEventID: started.PreviousStartedEventID,
			StartedEventID:         started.StartedEventID,
			Attempt:                started.Attempt,
			History:                events,
		}, nil
	}
}

// RespondWorkflowTaskCompleted applies the worker's commands for a completed
// workflow task.
func (wh *WorkflowHandler) RespondWorkflowTaskCompleted(
	ctx context.Context,
	request *workflowservice.RespondWorkflowTaskCompletedRequest,
) (_ *workflowservice.RespondWorkflowTaskCompletedResponse, retError error) {
	handler, start := wh.beginOperation("RespondWorkflowTaskCompleted", "")
	defer func() { wh.finishOperation(handler, start, &retError) }()

	token, err := wh.deserializeToken(handler, request.TaskToken)
	if err != nil {
		return nil, err
	}
	if err := wh.historyEngine.RespondWorkflowTaskCompleted(ctx, token, request); err != nil {
		return nil, err
	}
	return &workflowservice.RespondWorkflowTaskCompletedResponse{}, nil
}

// RespondWorkflowTaskFailed reports a workflow task the worker could not
// process.
func (wh *WorkflowHandler) RespondWorkflowTaskFailed(
	ctx context.Context,
	request *workflowservice.RespondWorkflowTaskFailedRequest,
) (_ *workflowservice.RespondWorkflowTaskFailedResponse, retError error) {
	handler, start := wh.beginOperation("RespondWorkflowTaskFailed", "")
	defer func() { wh.finishOperation(handler, start, &retError) }()

	token, err := wh.deserializeToken(handler, request.TaskToken)
	if err != nil {
		return nil, err
	}
	if err := wh.historyEngine.RespondWorkflowTaskFailed(ctx, token, request); err != nil {
		return nil, err
	}
	return &workflowservice.RespondWorkflowTaskFailedResponse{}, nil
}

// PollActivityTaskQueue long-polls for an activity task. An empty response
// means the poll window lapsed without a task.
func (wh *WorkflowHandler) PollActivityTaskQueue(
	ctx context.Context,
	request *workflowservice.PollActivityTaskQueueRequest,
) (_ *workflowservice.PollActivityTaskQueueResponse, retError error) {
	handler, start := wh.beginOperation("PollActivityTaskQueue", request.Namespace)
	defer func() { wh.finishOperation(handler, start, &retError) }()

	namespaceID, err := wh.resolveNamespace(handler, request.Namespace)
	if err != nil {
		return nil, err
	}
	if err := wh.validateID("TaskQueue", request.TaskQueue.Name); err != nil {
		return nil, err
	}

	for {
		poll, err := wh.matchingEngine.PollTask(ctx, &matching.PollTaskRequest{
			NamespaceID: namespaceID,
			TaskQueue:   request.TaskQueue.Name,
			TaskType:    enums.TaskTypeActivity,
		})
		if errors.Is(err, matching.ErrNoTasks) {
			return &workflowservice.PollActivityTaskQueueResponse{}, nil
		}
		if err != nil {
			return nil, translateError(err)
		}

		started, err := wh.historyEngine.RecordActivityTaskStarted(ctx, poll.Task, uuid.NewString(), request.Identity)
		if err != nil {
			var notFound *serviceerror.NotFound
			if errors.As(err, &notFound) {
				wh.matchingEngine.AckTask(poll.Lease)
				continue
			}
			wh.matchingEngine.NackTask(poll.Lease)
			return nil, translateError(err)
		}
		wh.matchingEngine.AckTask(poll.Lease)

		token, err := wh.tokenSerializer.Serialize(&tasktoken.Token{
			NamespaceID:      namespaceID,
			WorkflowID:       poll.Task.WorkflowID,
			RunID:            poll.Task.RunID,
			ScheduledEventID: started.ScheduledEventID,
			StartedEventID:   started.StartedEventID,
			Attempt:          started.Attempt,
			ActivityID:       started.ActivityID,
		})
		if err != nil {
			return nil, err
		}
		return &workflowservice.PollActivityTaskQueueResponse{
			TaskToken: token,
			WorkflowExecution: types.WorkflowExecution{
				WorkflowID: poll.Task.WorkflowID,
				RunID:      poll.Task.RunID,
			},
			ActivityID:          started.ActivityID,
			ActivityType:        started.ActivityType,
			Input:               started.Input,
			Attempt:             started.Attempt,
			ScheduledTime:       started.ScheduledTime,
			StartToCloseTimeout: started.StartToCloseTimeout,
			HeartbeatTimeout:    started.HeartbeatTimeout,
		}, nil
	}
}

// RespondActivityTaskCompleted records an activity result.
func (wh *WorkflowHandler) RespondActivityTaskCompleted(
	ctx context.Context,
	request *workflowservice.RespondActivityTaskCompletedRequest,
) (_ *workflowservice.RespondActivityTaskCompletedResponse, retError error) {
	handler, start := wh.beginOperation("RespondActivityTaskCompleted", "")
	defer func() { wh.finishOperation(handler, start, &retError) }()

	token, err := wh.deserializeToken(handler, request.TaskToken)
	if err != nil {
		return nil, err
	}
	if err := wh.historyEngine.RespondActivityTaskCompleted(ctx, token, request); err != nil {
		return nil, err
	}
	return &workflowservice.RespondActivityTaskCompletedResponse{}, nil
}

// RespondActivityTaskFailed records an activity failure, possibly arming a
// retry.
func (wh *WorkflowHandler) RespondActivityTaskFailed(
	ctx context.Context,
	request *workflowservice.RespondActivityTaskFailedRequest,
) (_ *workflowservice.RespondActivityTaskFailedResponse, retError error) {
	handler, start := wh.beginOperation("RespondActivityTaskFailed", "")
	defer func() { wh.finishOperation(handler, start, &retError) }()

	token, err := wh.deserializeToken(handler, request.TaskToken)
	if err != nil {
		return nil, err
	}
	if err := wh.historyEngine.RespondActivityTaskFailed(ctx, token, request); err != nil {
		return nil, err
	}
	return &workflowservice.RespondActivityTaskFailedResponse{}, nil
}

// RecordActivityTaskHeartbeat extends an activity's heartbeat deadline and
// reports whether cancellation was requested.
func (wh *WorkflowHandler) RecordActivityTaskHeartbeat(
	ctx context.Context,
	request *workflowservice.RecordActivityTaskHeartbeatRequest,
) (_ *workflowservice.RecordActivityTaskHeartbeatResponse, retError error) {
	handler, start := wh.beginOperation("RecordActivityTaskHeartbeat", "")
	defer func() { wh.finishOperation(handler, start, &retError) }()

	token, err := wh.deserializeToken(handler, request.TaskToken)
	if err != nil {
		return nil, err
	}
	return wh.historyEngine.RecordActivityTaskHeartbeat(ctx, token, request)
}

func (wh *WorkflowHandler) beginOperation(operation string, namespaceName string) (metrics.Handler, time.Time) {
	handler := wh.metricsHandler.WithTags(
		metrics.OperationTag(operation),
		metrics.NamespaceTag(namespaceName),
	)
	metrics.ServiceRequests.With(handler).Record(1)
	return handler, time.Now()
}

func (wh *WorkflowHandler) finishOperation(handler metrics.Handler, start time.Time, retError *error) {
	metrics.ServiceLatency.With(handler).Record(time.Since(start))
	if *retError == nil {
		return
	}
	*retError = translateError(*retError)
	var invalidArgument *serviceerror.InvalidArgument
	if errors.As(*retError, &invalidArgument) {
		metrics.ServiceErrBadRequest.With(handler).Record(1)
		return
	}
	metrics.ServiceFailures.With(handler).Record(1)
	wh.logger.Error("frontend request failed", tag.Error(*retError))
}

// resolveNamespace rate limits the call and maps the namespace name to its
// id.
func (wh *WorkflowHandler) resolveNamespace(handler metrics.Handler, name string) (string, error) {
	if name == "" {
		return "", serviceerror.NewInvalidArgument("Namespace is not set")
	}
	if err := wh.checkRateLimit(handler, name); err != nil {
		return "", err
	}
	ns, err := wh.namespaceRegistry.GetNamespace(namespace.Name(name))
	if err != nil {
		return "", err
	}
	return string(ns.ID()), nil
}

// resolveActiveNamespace additionally rejects namespaces that no longer
// accept new work.
func (wh *WorkflowHandler) resolveActiveNamespace(handler metrics.Handler, name string) (string, error) {
	if name == "" {
		return "", serviceerror.NewInvalidArgument("Namespace is not set")
	}
	if err := wh.checkRateLimit(handler, name); err != nil {
		return "", err
	}
	ns, err := wh.namespaceRegistry.GetNamespace(namespace.Name(name))
	if err != nil {
		return "", err
	}
	if !ns.ActiveInCluster() {
		return "", serviceerror.NewInvalidArgumentf("namespace %q is %s and does not accept new workflows", name, ns.State())
	}
	return string(ns.ID()), nil
}

func (wh *WorkflowHandler) checkRateLimit(handler metrics.Handler, namespaceName string) error {
	if !wh.rateLimiter.Allow() {
		metrics.ServiceErrRateLimit.With(handler).Record(1)
		return errRateLimitExceeded
	}
	if namespaceName != "" && !wh.namespaceLimiter(namespaceName).Allow() {
		metrics.ServiceErrRateLimit.With(handler).Record(1)
		return serviceerror.NewUnavailablef("namespace %q rate limit exceeded", namespaceName)
	}
	return nil
}

func (wh *WorkflowHandler) namespaceLimiter(name string) quotas.RateLimiter {
	wh.namespaceLimitersLock.Lock()
	defer wh.namespaceLimitersLock.Unlock()
	limiter, ok := wh.namespaceLimiters[name]
	if !ok {
		limiter = quotas.NewDefaultIncomingRateLimiter(quotas.RateFn(wh.config.NamespaceRPS))
		wh.namespaceLimiters[name] = limiter
	}
	return limiter
}

func (wh *WorkflowHandler) validateStartRequest(request *workflowservice.StartWorkflowExecutionRequest) error {
	if err := wh.validateID("WorkflowId", request.WorkflowID); err != nil {
		return err
	}
	if err := wh.validateID("WorkflowType", request.WorkflowType.Name); err != nil {
		return err
	}
	if err := wh.validateID("TaskQueue", request.TaskQueue.Name); err != nil {
		return err
	}
	if request.WorkflowRunTimeout < 0 {
		return serviceerror.NewInvalidArgument("WorkflowRunTimeout cannot be negative")
	}
	if request.WorkflowTaskTimeout < 0 {
		return serviceerror.NewInvalidArgument("WorkflowTaskTimeout cannot be negative")
	}
	if request.CronSchedule != "" {
		if err := workflow.ValidateCronSchedule(request.CronSchedule); err != nil {
			return err
		}
	}
	if request.RequestID == "" {
		// Callers that do not care about start dedupe get a fresh id.
		request.RequestID = uuid.NewString()
	}
	return wh.validateID("RequestId", request.RequestID)
}

func (wh *WorkflowHandler) validateID(field string, value string) error {
	if value == "" {
		return serviceerror.NewInvalidArgumentf("%s is not set", field)
	}
	if len(value) > wh.config.MaxIDLength() {
		return serviceerror.NewInvalidArgumentf("%s length exceeds limit of %d", field, wh.config.MaxIDLength())
	}
	return nil
}

func (wh *WorkflowHandler) deserializeToken(handler metrics.Handler, data []byte) (*tasktoken.Token, error) {
	if err := wh.checkRateLimit(handler, ""); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, serviceerror.NewInvalidArgument("TaskToken is not set")
	}
	return wh.tokenSerializer.Deserialize(data)
}

// fetchFullHistory pages the run's whole history for a workflow task
// response. Workers replay from event one on every task.
func (wh *WorkflowHandler) fetchFullHistory(
	ctx context.Context,
	namespaceID string,
	workflowID string,
	runID string,
) ([]*apihistory.HistoryEvent, error) {
	var events []*apihistory.HistoryEvent
	var pageToken []byte
	for {
		page, err := wh.historyEngine.GetWorkflowExecutionHistory(ctx, namespaceID, &workflowservice.GetWorkflowExecutionHistoryRequest{
			WorkflowID:      workflowID,
			RunID:           runID,
			MaximumPageSize: int32(wh.config.HistoryMaxPageSize()),
			NextPageToken:   pageToken,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, page.Events...)
		pageToken = page.NextPageToken
		if len(pageToken) == 0 {
			return events, nil
		}
	}
}
