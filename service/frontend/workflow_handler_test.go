package frontend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/command"
	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/membership"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/namespace"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/memory"
	"github.com/strandhq/strand/common/quotas"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/service/history"
	"github.com/strandhq/strand/service/history/configs"
	"github.com/strandhq/strand/service/history/shard"
	"github.com/strandhq/strand/service/matching"
)

const testNamespace = "orders-ns"

type frontendTestEnv struct {
	workflowHandler  *WorkflowHandler
	namespaceHandler *NamespaceHandler
	metadataStore    persistence.MetadataStore
}

// newFrontendTestEnv wires the full in-process stack: memory stores, the
// matching engine, the history engine, the namespace registry and the
// frontend handlers. The history engine runs on a frozen event time source;
// matching runs on real time with a short poll window so empty polls return
// quickly.
func newFrontendTestEnv(t *testing.T) *frontendTestEnv {
	t.Helper()

	factory := memory.NewFactory()
	shardStore, err := factory.NewShardStore()
	require.NoError(t, err)
	executionStore, err := factory.NewExecutionStore()
	require.NoError(t, err)
	taskStore, err := factory.NewTaskStore()
	require.NoError(t, err)
	metadataStore, err := factory.NewMetadataStore()
	require.NoError(t, err)

	dc := dynamicconfig.NewNoopCollection()

	matchingConfig := matching.NewConfig(dc)
	matchingConfig.LongPollExpirationInterval = func(string, string) time.Duration { return 200 * time.Millisecond }
	matchingEngine := matching.NewEngine(taskStore, matchingConfig, clock.NewRealTimeSource(), metrics.NoopMetricsHandler, log.NewNoopLogger())

	historyTimeSource := clock.NewEventTimeSource()
	historyTimeSource.Update(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	historyConfig := configs.NewConfig(dc, 4)
	controller := shard.NewController(
		historyConfig,
		shardStore,
		executionStore,
		membership.NewStaticResolver("127.0.0.1:7234"),
		historyTimeSource,
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)
	historyEngine := history.NewEngine(
		historyConfig,
		controller,
		executionStore,
		matchingEngine,
		historyTimeSource,
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)
	matchingEngine.SetTaskFailureHandler(historyEngine)
	matchingEngine.Start()
	t.Cleanup(matchingEngine.Stop)
	historyEngine.Start()
	t.Cleanup(historyEngine.Stop)

	registry := namespace.NewRegistry(
		metadataStore,
		func() time.Duration { return 10 * time.Millisecond },
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)
	registry.Start()
	t.Cleanup(registry.Stop)

	config := NewConfig(dc)
	namespaceHandler := NewNamespaceHandler(config, metadataStore, historyTimeSource, log.NewNoopLogger())
	workflowHandler := NewWorkflowHandler(
		config,
		historyEngine,
		matchingEngine,
		registry,
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)

	env := &frontendTestEnv{
		workflowHandler:  workflowHandler,
		namespaceHandler: namespaceHandler,
		metadataStore:    metadataStore,
	}
	env.registerNamespace(t, testNamespace)
	return env
}

func (env *frontendTestEnv) registerNamespace(t *testing.T, name string) {
	t.Helper()
	_, err := env.namespaceHandler.RegisterNamespace(context.Background(), &workflowservice.RegisterNamespaceRequest{
		Name:      name,
		Retention: 24 * time.Hour,
	})
	require.NoError(t, err)
}

func frontendStartRequest(workflowID string) *workflowservice.StartWorkflowExecutionRequest {
	return &workflowservice.StartWorkflowExecutionRequest{
		Namespace:    testNamespace,
		WorkflowID:   workflowID,
		WorkflowType: types.WorkflowType{Name: "process-order"},
		TaskQueue:    types.TaskQueue{Name: "orders"},
		Input:        types.Payload(`{"orderId":42}`),
		RequestID:    "start-" + workflowID,
	}
}

func (env *frontendTestEnv) pollWorkflowTask(t *testing.T) *workflowservice.PollWorkflowTaskQueueResponse {
	t.Helper()
	response, err := env.workflowHandler.PollWorkflowTaskQueue(context.Background(), &workflowservice.PollWorkflowTaskQueueRequest{
		Namespace: testNamespace,
		TaskQueue: types.TaskQueue{Name: "orders"},
		Identity:  "worker-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.TaskToken)
	return response
}

func (env *frontendTestEnv) pollActivityTask(t *testing.T) *workflowservice.PollActivityTaskQueueResponse {
	t.Helper()
	response, err := env.workflowHandler.PollActivityTaskQueue(context.Background(), &workflowservice.PollActivityTaskQueueRequest{
		Namespace: testNamespace,
		TaskQueue: types.TaskQueue{Name: "orders"},
		Identity:  "worker-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.TaskToken)
	return response
}

func (env *frontendTestEnv) describe(t *testing.T, workflowID string) *workflowservice.DescribeWorkflowExecutionResponse {
	t.Helper()
	response, err := env.workflowHandler.DescribeWorkflowExecution(context.Background(), &workflowservice.DescribeWorkflowExecutionRequest{
		Namespace:  testNamespace,
		WorkflowID: workflowID,
	})
	require.NoError(t, err)
	return response
}

func TestStartWorkflowValidation(t *testing.T) {
	env := newFrontendTestEnv(t)

	request := frontendStartRequest("wf-validate")
	request.WorkflowType = types.WorkflowType{}
	_, err := env.workflowHandler.StartWorkflowExecution(context.Background(), request)
	var invalidArgument *serviceerror.InvalidArgument
	require.ErrorAs(t, err, &invalidArgument)

	request = frontendStartRequest("wf-validate")
	request.CronSchedule = "not a cron expression"
	_, err = env.workflowHandler.StartWorkflowExecution(context.Background(), request)
	require.ErrorAs(t, err, &invalidArgument)

	request = frontendStartRequest("wf-validate")
	request.Namespace = "no-such-namespace"
	_, err = env.workflowHandler.StartWorkflowExecution(context.Background(), request)
	var namespaceNotFound *serviceerror.NamespaceNotFound
	require.ErrorAs(t, err, &namespaceNotFound)
}

func TestStartWorkflowOnDeprecatedNamespaceFails(t *testing.T) {
	env := newFrontendTestEnv(t)
	env.registerNamespace(t, "retired-ns")

	_, err := env.namespaceHandler.DeprecateNamespace(context.Background(), &workflowservice.DeprecateNamespaceRequest{
		Name: "retired-ns",
	})
	require.NoError(t, err)

	request := frontendStartRequest("wf-deprecated")
	request.Namespace = "retired-ns"
	// The registry cache picks the deprecation up on its next refresh.
	assert.Eventually(t, func() bool {
		_, err := env.workflowHandler.StartWorkflowExecution(context.Background(), request)
		var invalidArgument *serviceerror.InvalidArgument
		return errors.As(err, &invalidArgument)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWorkerCompletesWorkflow(t *testing.T) {
	env := newFrontendTestEnv(t)

	startResponse, err := env.workflowHandler.StartWorkflowExecution(context.Background(), frontendStartRequest("wf-complete"))
	require.NoError(t, err)
	require.NotEmpty(t, startResponse.RunID)

	task := env.pollWorkflowTask(t)
	assert.Equal(t, "process-order", task.WorkflowType.Name)
	assert.Equal(t, startResponse.RunID, task.WorkflowExecution.RunID)
	assert.Equal(t, common.EmptyEventID, task.PreviousStartedEventID)
	assert.Equal(t, int64(3), task.StartedEventID)
	assert.Equal(t, int32(1), task.Attempt)
	// Started, workflow task scheduled, workflow task started.
	require.Len(t, task.History, 3)
	assert.Equal(t, enums.EventTypeWorkflowExecutionStarted, task.History[0].EventType)

	_, err = env.workflowHandler.RespondWorkflowTaskCompleted(context.Background(), &workflowservice.RespondWorkflowTaskCompletedRequest{
		TaskToken: task.TaskToken,
		Commands:  []*command.Command{completeWorkflowCommand()},
		Identity:  "worker-1",
	})
	require.NoError(t, err)

	info := env.describe(t, "wf-complete").WorkflowExecutionInfo
	assert.Equal(t, enums.WorkflowExecutionStatusCompleted, info.Status)
}

func TestActivityRoundTripThroughWorkerAPI(t *testing.T) {
	env := newFrontendTestEnv(t)

	_, err := env.workflowHandler.StartWorkflowExecution(context.Background(), frontendStartRequest("wf-activity"))
	require.NoError(t, err)

	task := env.pollWorkflowTask(t)
	_, err = env.workflowHandler.RespondWorkflowTaskCompleted(context.Background(), &workflowservice.RespondWorkflowTaskCompletedRequest{
		TaskToken: task.TaskToken,
		Commands:  []*command.Command{scheduleActivityCommand("charge-1")},
		Identity:  "worker-1",
	})
	require.NoError(t, err)

	activityTask := env.pollActivityTask(t)
	assert.Equal(t, "charge-1", activityTask.ActivityID)
	assert.Equal(t, "charge-card", activityTask.ActivityType.Name)
	assert.Equal(t, int32(1), activityTask.Attempt)
	assert.Equal(t, time.Minute, activityTask.StartToCloseTimeout)

	heartbeat, err := env.workflowHandler.RecordActivityTaskHeartbeat(context.Background(), &workflowservice.RecordActivityTaskHeartbeatRequest{
		TaskToken: activityTask.TaskToken,
		Identity:  "worker-1",
	})
	require.NoError(t, err)
	assert.False(t, heartbeat.CancelRequested)

	_, err = env.workflowHandler.RequestCancelWorkflowExecution(context.Background(), &workflowservice.RequestCancelWorkflowExecutionRequest{
		Namespace:  testNamespace,
		WorkflowID: "wf-activity",
		Cause:      "operator request",
	})
	require.NoError(t, err)

	heartbeat, err = env.workflowHandler.RecordActivityTaskHeartbeat(context.Background(), &workflowservice.RecordActivityTaskHeartbeatRequest{
		TaskToken: activityTask.TaskToken,
		Identity:  "worker-1",
	})
	require.NoError(t, err)
	assert.True(t, heartbeat.CancelRequested)

	_, err = env.workflowHandler.RespondActivityTaskCompleted(context.Background(), &workflowservice.RespondActivityTaskCompletedRequest{
		TaskToken: activityTask.TaskToken,
		Result:    types.Payload(`"charged"`),
		Identity:  "worker-1",
	})
	require.NoError(t, err)

	// The activity completion and the cancel request both wake the workflow.
	followUp := env.pollWorkflowTask(t)
	_, err = env.workflowHandler.RespondWorkflowTaskCompleted(context.Background(), &workflowservice.RespondWorkflowTaskCompletedRequest{
		TaskToken: followUp.TaskToken,
		Commands: []*command.Command{{
			CommandType: command.CommandTypeCancelWorkflowExecution,
			CancelWorkflowExecutionCommandAttributes: &command.CancelWorkflowExecutionCommandAttributes{},
		}},
		Identity: "worker-1",
	})
	require.NoError(t, err)

	info := env.describe(t, "wf-activity").WorkflowExecutionInfo
	assert.Equal(t, enums.WorkflowExecutionStatusCanceled, info.Status)
}

func TestPollReturnsEmptyWhenNoTasks(t *testing.T) {
	env := newFrontendTestEnv(t)

	response, err := env.workflowHandler.PollWorkflowTaskQueue(context.Background(), &workflowservice.PollWorkflowTaskQueueRequest{
		Namespace: testNamespace,
		TaskQueue: types.TaskQueue{Name: "orders"},
		Identity:  "worker-1",
	})
	require.NoError(t, err)
	assert.Empty(t, response.TaskToken)
}

func TestRespondWithInvalidTokenFails(t *testing.T) {
	env := newFrontendTestEnv(t)

	_, err := env.workflowHandler.RespondWorkflowTaskCompleted(context.Background(), &workflowservice.RespondWorkflowTaskCompletedRequest{
		TaskToken: []byte("not a token"),
	})
	var invalidArgument *serviceerror.InvalidArgument
	require.ErrorAs(t, err, &invalidArgument)

	_, err = env.workflowHandler.RespondActivityTaskCompleted(context.Background(), &workflowservice.RespondActivityTaskCompletedRequest{})
	require.ErrorAs(t, err, &invalidArgument)
}

func TestRateLimitRejectsRequests(t *testing.T) {
	env := newFrontendTestEnv(t)
	env.workflowHandler.rateLimiter = quotas.NewRateLimiter(0, 0)

	_, err := env.workflowHandler.StartWorkflowExecution(context.Background(), frontendStartRequest("wf-limited"))
	var unavailable *serviceerror.Unavailable
	require.ErrorAs(t, err, &unavailable)
}

func TestGetHistoryClampsPageSize(t *testing.T) {
	env := newFrontendTestEnv(t)

	startResponse, err := env.workflowHandler.StartWorkflowExecution(context.Background(), frontendStartRequest("wf-history"))
	require.NoError(t, err)

	response, err := env.workflowHandler.GetWorkflowExecutionHistory(context.Background(), &workflowservice.GetWorkflowExecutionHistoryRequest{
		Namespace:       testNamespace,
		WorkflowID:      "wf-history",
		RunID:           startResponse.RunID,
		MaximumPageSize: -5,
	})
	require.NoError(t, err)
	require.Len(t, response.Events, 2)
	assert.Equal(t, enums.EventTypeWorkflowExecutionStarted, response.Events[0].EventType)
	assert.Equal(t, enums.EventTypeWorkflowTaskScheduled, response.Events[1].EventType)
}

func scheduleActivityCommand(activityID string) *command.Command {
	return &command.Command{
		CommandType: command.CommandTypeScheduleActivityTask,
		ScheduleActivityTaskCommandAttributes: &command.ScheduleActivityTaskCommandAttributes{
			ActivityID:          activityID,
			ActivityType:        types.ActivityType{Name: "charge-card"},
			StartToCloseTimeout: time.Minute,
			HeartbeatTimeout:    time.Minute,
		},
	}
}

func completeWorkflowCommand() *command.Command {
	return &command.Command{
		CommandType: command.CommandTypeCompleteWorkflowExecution,
		CompleteWorkflowExecutionCommandAttributes: &command.CompleteWorkflowExecutionCommandAttributes{
			Result: types.Payload(`"done"`),
		},
	}
}
