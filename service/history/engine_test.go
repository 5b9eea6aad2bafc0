package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/api/command"
	"github.com/strandhq/strand/api/enums"
	apihistory "github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
	"github.com/strandhq/strand/api/workflowservice"
	"github.com/strandhq/strand/common"
	"github.com/strandhq/strand/common/clock"
	"github.com/strandhq/strand/common/dynamicconfig"
	"github.com/strandhq/strand/common/log"
	"github.com/strandhq/strand/common/membership"
	"github.com/strandhq/strand/common/metrics"
	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/persistence/memory"
	"github.com/strandhq/strand/common/serviceerror"
	"github.com/strandhq/strand/common/tasktoken"
	"github.com/strandhq/strand/service/history/configs"
	"github.com/strandhq/strand/service/history/shard"
	"github.com/strandhq/strand/service/matching"
)

const testNamespaceID = "ns-id"

type fakeMatchingClient struct {
	mu     sync.Mutex
	tasks  []*matching.AddTaskRequest
	cursor int
}

func (c *fakeMatchingClient) AddTask(_ context.Context, request *matching.AddTaskRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, request)
	return nil
}

func (c *fakeMatchingClient) taskCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// nextTask waits for the next undelivered task of the given type, skipping
// tasks of other types.
func (c *fakeMatchingClient) nextTask(t *testing.T, taskType enums.TaskType) *matching.AddTaskRequest {
	t.Helper()
	var task *matching.AddTaskRequest
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for c.cursor < len(c.tasks) {
			candidate := c.tasks[c.cursor]
			c.cursor++
			if candidate.TaskType == taskType {
				task = candidate
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return task
}

type engineTestEnv struct {
	engine         *Engine
	matchingClient *fakeMatchingClient
	timeSource     *clock.EventTimeSource
	executionStore persistence.ExecutionStore
}

func newEngineTestEnv(t *testing.T) *engineTestEnv {
	t.Helper()

	factory := memory.NewFactory()
	shardStore, err := factory.NewShardStore()
	require.NoError(t, err)
	executionStore, err := factory.NewExecutionStore()
	require.NoError(t, err)

	config := configs.NewConfig(dynamicconfig.NewNoopCollection(), 4)

	timeSource := clock.NewEventTimeSource()
	timeSource.Update(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	controller := shard.NewController(
		config,
		shardStore,
		executionStore,
		membership.NewStaticResolver("127.0.0.1:7234"),
		timeSource,
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)
	matchingClient := &fakeMatchingClient{}
	engine := NewEngine(
		config,
		controller,
		executionStore,
		matchingClient,
		timeSource,
		metrics.NoopMetricsHandler,
		log.NewNoopLogger(),
	)
	engine.Start()
	t.Cleanup(engine.Stop)

	return &engineTestEnv{
		engine:         engine,
		matchingClient: matchingClient,
		timeSource:     timeSource,
		executionStore: executionStore,
	}
}

func startRequest(workflowID string) *workflowservice.StartWorkflowExecutionRequest {
	return &workflowservice.StartWorkflowExecutionRequest{
		WorkflowID:   workflowID,
		WorkflowType: types.WorkflowType{Name: "process-order"},
		TaskQueue:    types.TaskQueue{Name: "orders"},
		Input:        types.Payload(`{"orderId":42}`),
		RequestID:    "start-" + workflowID,
	}
}

func (env *engineTestEnv) startWorkflow(t *testing.T, workflowID string) string {
	t.Helper()
	response, err := env.engine.StartWorkflowExecution(context.Background(), testNamespaceID, startRequest(workflowID))
	require.NoError(t, err)
	require.NotEmpty(t, response.RunID)
	return response.RunID
}

func (env *engineTestEnv) history(t *testing.T, workflowID, runID string) []*apihistory.HistoryEvent {
	t.Helper()
	response, err := env.engine.GetWorkflowExecutionHistory(context.Background(), testNamespaceID,
		&workflowservice.GetWorkflowExecutionHistoryRequest{
			WorkflowID: workflowID,
			RunID:      runID,
		})
	require.NoError(t, err)
	return response.Events
}

func (env *engineTestEnv) lastEventType(t *testing.T, workflowID, runID string) enums.EventType {
	t.Helper()
	events := env.history(t, workflowID, runID)
	require.NotEmpty(t, events)
	return events[len(events)-1].EventType
}

// probeLastEvent reads the last history event without failing the test, for
// use inside Eventually conditions.
func (env *engineTestEnv) probeLastEvent(workflowID, runID string) *apihistory.HistoryEvent {
	response, err := env.engine.GetWorkflowExecutionHistory(context.Background(), testNamespaceID,
		&workflowservice.GetWorkflowExecutionHistoryRequest{WorkflowID: workflowID, RunID: runID})
	if err != nil || len(response.Events) == 0 {
		return nil
	}
	return response.Events[len(response.Events)-1]
}

func taskInfoFrom(request *matching.AddTaskRequest) *persistence.TaskInfo {
	return &persistence.TaskInfo{
		NamespaceID:      request.NamespaceID,
		WorkflowID:       request.WorkflowID,
		RunID:            request.RunID,
		TaskType:         request.TaskType,
		ScheduledEventID: request.ScheduledEventID,
	}
}

// startWorkflowTask drives the matching handoff of the next workflow task and
// returns the token a worker would respond with.
func (env *engineTestEnv) startWorkflowTask(t *testing.T, workflowID string) *tasktoken.Token {
	t.Helper()
	task := env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)
	require.Equal(t, workflowID, task.WorkflowID)
	response, err := env.engine.RecordWorkflowTaskStarted(context.Background(), taskInfoFrom(task), "req-id", "worker-1")
	require.NoError(t, err)
	return &tasktoken.Token{
		NamespaceID:      task.NamespaceID,
		WorkflowID:       task.WorkflowID,
		RunID:            task.RunID,
		ScheduledEventID: response.ScheduledEventID,
		StartedEventID:   response.StartedEventID,
		Attempt:          response.Attempt,
	}
}

func (env *engineTestEnv) startActivityTask(t *testing.T) (*RecordActivityTaskStartedResponse, *tasktoken.Token) {
	t.Helper()
	task := env.matchingClient.nextTask(t, enums.TaskTypeActivity)
	response, err := env.engine.RecordActivityTaskStarted(context.Background(), taskInfoFrom(task), "req-id", "worker-1")
	require.NoError(t, err)
	return response, &tasktoken.Token{
		NamespaceID:      task.NamespaceID,
		WorkflowID:       task.WorkflowID,
		RunID:            task.RunID,
		ScheduledEventID: response.ScheduledEventID,
		StartedEventID:   response.StartedEventID,
		Attempt:          response.Attempt,
		ActivityID:       response.ActivityID,
	}
}

func scheduleActivityCommand(activityID string, retryPolicy *types.RetryPolicy) *command.Command {
	return &command.Command{
		CommandType: command.CommandTypeScheduleActivityTask,
		ScheduleActivityTaskCommandAttributes: &command.ScheduleActivityTaskCommandAttributes{
			ActivityID:          activityID,
			ActivityType:        types.ActivityType{Name: "charge-card"},
			StartToCloseTimeout: time.Minute,
			RetryPolicy:         retryPolicy,
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

func TestStartWorkflowSchedulesFirstWorkflowTask(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-start")

	task := env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)
	assert.Equal(t, "orders", task.TaskQueue)
	assert.Equal(t, runID, task.RunID)
	assert.Equal(t, int64(2), task.ScheduledEventID)

	events := env.history(t, "wf-start", runID)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventTypeWorkflowExecutionStarted, events[0].EventType)
	assert.Equal(t, enums.EventTypeWorkflowTaskScheduled, events[1].EventType)
	assert.Equal(t, int64(1), events[0].EventID)
	assert.Equal(t, int64(2), events[1].EventID)
}

func TestStartWorkflowDeduplicatesOnRequestID(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-dedupe")

	// Same request id: the retry lands on the already started run.
	again, err := env.engine.StartWorkflowExecution(context.Background(), testNamespaceID, startRequest("wf-dedupe"))
	require.NoError(t, err)
	assert.Equal(t, runID, again.RunID)

	// A different request id is a genuine conflict.
	conflicting := startRequest("wf-dedupe")
	conflicting.RequestID = "another-request"
	_, err = env.engine.StartWorkflowExecution(context.Background(), testNamespaceID, conflicting)
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	require.ErrorAs(t, err, &alreadyStarted)
	assert.Equal(t, runID, alreadyStarted.RunID)
}

func TestWorkflowTaskCompleteClosesWorkflow(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-complete")
	token := env.startWorkflowTask(t, "wf-complete")
	assert.Equal(t, int64(2), token.ScheduledEventID)
	assert.Equal(t, int64(3), token.StartedEventID)

	err := env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{
			Commands: []*command.Command{completeWorkflowCommand()},
			Identity: "worker-1",
		})
	require.NoError(t, err)

	describe, err := env.engine.DescribeWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.DescribeWorkflowExecutionRequest{WorkflowID: "wf-complete", RunID: runID})
	require.NoError(t, err)
	assert.Equal(t, enums.WorkflowExecutionStatusCompleted, describe.WorkflowExecutionInfo.Status)
	assert.NotNil(t, describe.WorkflowExecutionInfo.CloseTime)

	assert.Equal(t, enums.EventTypeWorkflowExecutionCompleted, env.lastEventType(t, "wf-complete", runID))

	// A completed run rejects further respond calls.
	err = env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{})
	var notFound *serviceerror.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestSignalSchedulesWorkflowTask(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-signal")
	token := env.startWorkflowTask(t, "wf-signal")
	require.NoError(t, env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{}))

	err := env.engine.SignalWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.SignalWorkflowExecutionRequest{
			WorkflowID: "wf-signal",
			SignalName: "payment-received",
			Input:      types.Payload(`{"amount":10}`),
		})
	require.NoError(t, err)

	events := env.history(t, "wf-signal", runID)
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, enums.EventTypeWorkflowExecutionSignaled, events[len(events)-2].EventType)
	assert.Equal(t, enums.EventTypeWorkflowTaskScheduled, events[len(events)-1].EventType)

	task := env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)
	assert.Equal(t, events[len(events)-1].EventID, task.ScheduledEventID)
}

func TestSignalCompletedWorkflowFails(t *testing.T) {
	env := newEngineTestEnv(t)

	env.startWorkflow(t, "wf-signal-closed")
	token := env.startWorkflowTask(t, "wf-signal-closed")
	require.NoError(t, env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{
			Commands: []*command.Command{completeWorkflowCommand()},
		}))

	err := env.engine.SignalWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.SignalWorkflowExecutionRequest{
			WorkflowID: "wf-signal-closed",
			SignalName: "too-late",
		})
	var notFound *serviceerror.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestSignalWithStartStartsWhenAbsent(t *testing.T) {
	env := newEngineTestEnv(t)

	request := &workflowservice.SignalWithStartWorkflowExecutionRequest{
		StartRequest: startRequest("wf-sws"),
		SignalName:   "kick",
		SignalInput:  types.Payload(`1`),
	}
	response, err := env.engine.SignalWithStartWorkflowExecution(context.Background(), testNamespaceID, request)
	require.NoError(t, err)
	assert.True(t, response.Started)

	events := env.history(t, "wf-sws", response.RunID)
	require.Len(t, events, 3)
	assert.Equal(t, enums.EventTypeWorkflowExecutionStarted, events[0].EventType)
	assert.Equal(t, enums.EventTypeWorkflowExecutionSignaled, events[1].EventType)
	assert.Equal(t, enums.EventTypeWorkflowTaskScheduled, events[2].EventType)

	// A second call signals the running execution instead of starting a new
	// one.
	again, err := env.engine.SignalWithStartWorkflowExecution(context.Background(), testNamespaceID, request)
	require.NoError(t, err)
	assert.False(t, again.Started)
	assert.Equal(t, response.RunID, again.RunID)
}

func TestActivityRoundTrip(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-activity")
	token := env.startWorkflowTask(t, "wf-activity")
	require.NoError(t, env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{
			Commands: []*command.Command{scheduleActivityCommand("charge-1", nil)},
		}))

	describe, err := env.engine.DescribeWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.DescribeWorkflowExecutionRequest{WorkflowID: "wf-activity", RunID: runID})
	require.NoError(t, err)
	require.Len(t, describe.PendingActivities, 1)
	assert.Equal(t, "charge-1", describe.PendingActivities[0].ActivityID)

	started, activityToken := env.startActivityTask(t)
	assert.Equal(t, "charge-1", started.ActivityID)
	assert.Equal(t, int32(1), started.Attempt)
	assert.Equal(t, types.Payload(nil), started.Input)

	require.NoError(t, env.engine.RespondActivityTaskCompleted(context.Background(), activityToken,
		&workflowservice.RespondActivityTaskCompletedRequest{
			Result:   types.Payload(`"charged"`),
			Identity: "worker-1",
		}))

	// Completion wakes the workflow with a fresh workflow task.
	events := env.history(t, "wf-activity", runID)
	assert.Equal(t, enums.EventTypeActivityTaskCompleted, events[len(events)-2].EventType)
	assert.Equal(t, enums.EventTypeWorkflowTaskScheduled, events[len(events)-1].EventType)
	env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)

	// The closed activity rejects a duplicate completion.
	err = env.engine.RespondActivityTaskCompleted(context.Background(), activityToken,
		&workflowservice.RespondActivityTaskCompletedRequest{})
	var notFound *serviceerror.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestActivityRetriesThenExhaustsPolicy(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-retry")
	token := env.startWorkflowTask(t, "wf-retry")
	retryPolicy := &types.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumAttempts:    2,
	}
	require.NoError(t, env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{
			Commands: []*command.Command{scheduleActivityCommand("flaky", retryPolicy)},
		}))

	_, activityToken := env.startActivityTask(t)
	historyLength := len(env.history(t, "wf-retry", runID))

	// First failure stays out of history; a retry timer is armed instead.
	require.NoError(t, env.engine.RespondActivityTaskFailed(context.Background(), activityToken,
		&workflowservice.RespondActivityTaskFailedRequest{
			Failure: types.Failure{Message: "card declined", Type: "ChargeError"},
		}))
	assert.Len(t, env.history(t, "wf-retry", runID), historyLength)

	env.timeSource.Advance(time.Second)

	started, activityToken := env.startActivityTask(t)
	assert.Equal(t, int32(2), started.Attempt)

	// Second failure exhausts the policy and lands in history.
	require.NoError(t, env.engine.RespondActivityTaskFailed(context.Background(), activityToken,
		&workflowservice.RespondActivityTaskFailedRequest{
			Failure: types.Failure{Message: "card declined", Type: "ChargeError"},
		}))

	events := env.history(t, "wf-retry", runID)
	failed := events[len(events)-2]
	require.Equal(t, enums.EventTypeActivityTaskFailed, failed.EventType)
	assert.Equal(t, enums.RetryStateMaximumAttemptsReached, failed.ActivityTaskFailedEventAttributes.RetryState)
	assert.Equal(t, enums.EventTypeWorkflowTaskScheduled, events[len(events)-1].EventType)
}

func TestUserTimerFires(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-timer")
	token := env.startWorkflowTask(t, "wf-timer")
	require.NoError(t, env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{
			Commands: []*command.Command{{
				CommandType: command.CommandTypeStartTimer,
				StartTimerCommandAttributes: &command.StartTimerCommandAttributes{
					TimerID:            "wait-5s",
					StartToFireTimeout: 5 * time.Second,
				},
			}},
		}))

	env.timeSource.Advance(5 * time.Second)

	assert.Eventually(t, func() bool {
		last := env.probeLastEvent("wf-timer", runID)
		return last != nil && last.EventType == enums.EventTypeWorkflowTaskScheduled
	}, 2*time.Second, 10*time.Millisecond)

	events := env.history(t, "wf-timer", runID)
	fired := events[len(events)-2]
	require.Equal(t, enums.EventTypeTimerFired, fired.EventType)
	assert.Equal(t, "wait-5s", fired.TimerFiredEventAttributes.TimerID)
	env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)
}

func TestWorkflowTaskTimeoutReschedules(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-wt-timeout")
	env.startWorkflowTask(t, "wf-wt-timeout")

	// Default workflow task timeout is 10 seconds; the worker never responds.
	env.timeSource.Advance(10 * time.Second)

	assert.Eventually(t, func() bool {
		last := env.probeLastEvent("wf-wt-timeout", runID)
		return last != nil &&
			last.EventType == enums.EventTypeWorkflowTaskScheduled &&
			last.WorkflowTaskScheduledEventAttributes.Attempt == 2
	}, 2*time.Second, 10*time.Millisecond)

	events := env.history(t, "wf-wt-timeout", runID)
	assert.Equal(t, enums.EventTypeWorkflowTaskTimedOut, events[len(events)-2].EventType)
	env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)
}

func TestRequestCancelIsIdempotent(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-cancel")

	cancel := &workflowservice.RequestCancelWorkflowExecutionRequest{
		WorkflowID: "wf-cancel",
		Cause:      "user requested",
	}
	require.NoError(t, env.engine.RequestCancelWorkflowExecution(context.Background(), testNamespaceID, cancel))
	historyLength := len(env.history(t, "wf-cancel", runID))
	assert.Equal(t, enums.EventTypeWorkflowExecutionCancelRequested, env.lastEventType(t, "wf-cancel", runID))

	// The repeated request appends nothing.
	require.NoError(t, env.engine.RequestCancelWorkflowExecution(context.Background(), testNamespaceID, cancel))
	assert.Len(t, env.history(t, "wf-cancel", runID), historyLength)
}

func TestTerminateWorkflow(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-terminate")

	require.NoError(t, env.engine.TerminateWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.TerminateWorkflowExecutionRequest{
			WorkflowID: "wf-terminate",
			Reason:     "stuck",
		}))

	describe, err := env.engine.DescribeWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.DescribeWorkflowExecutionRequest{WorkflowID: "wf-terminate", RunID: runID})
	require.NoError(t, err)
	assert.Equal(t, enums.WorkflowExecutionStatusTerminated, describe.WorkflowExecutionInfo.Status)

	err = env.engine.TerminateWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.TerminateWorkflowExecutionRequest{WorkflowID: "wf-terminate"})
	var notFound *serviceerror.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestContinueAsNewChainsRuns(t *testing.T) {
	env := newEngineTestEnv(t)

	firstRunID := env.startWorkflow(t, "wf-can")
	token := env.startWorkflowTask(t, "wf-can")
	require.NoError(t, env.engine.RespondWorkflowTaskCompleted(context.Background(), token,
		&workflowservice.RespondWorkflowTaskCompletedRequest{
			Commands: []*command.Command{{
				CommandType: command.CommandTypeContinueAsNewWorkflowExecution,
				ContinueAsNewWorkflowExecutionCommandAttributes: &command.ContinueAsNewWorkflowExecutionCommandAttributes{
					Input: types.Payload(`{"orderId":43}`),
				},
			}},
		}))

	describe, err := env.engine.DescribeWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.DescribeWorkflowExecutionRequest{WorkflowID: "wf-can", RunID: firstRunID})
	require.NoError(t, err)
	assert.Equal(t, enums.WorkflowExecutionStatusContinuedAsNew, describe.WorkflowExecutionInfo.Status)

	// The current record now points at the chained run.
	current, err := env.engine.DescribeWorkflowExecution(context.Background(), testNamespaceID,
		&workflowservice.DescribeWorkflowExecutionRequest{WorkflowID: "wf-can"})
	require.NoError(t, err)
	assert.NotEqual(t, firstRunID, current.WorkflowExecutionInfo.Execution.RunID)
	assert.Equal(t, enums.WorkflowExecutionStatusRunning, current.WorkflowExecutionInfo.Status)

	newRunID := current.WorkflowExecutionInfo.Execution.RunID
	events := env.history(t, "wf-can", newRunID)
	require.NotEmpty(t, events)
	attrs := events[0].WorkflowExecutionStartedEventAttributes
	require.NotNil(t, attrs)
	assert.Equal(t, firstRunID, attrs.ContinuedExecutionRunID)
	assert.Equal(t, firstRunID, attrs.FirstExecutionRunID)
	assert.Equal(t, types.Payload(`{"orderId":43}`), attrs.Input)
}

func TestCronScheduleDelaysFirstWorkflowTask(t *testing.T) {
	env := newEngineTestEnv(t)

	request := startRequest("wf-cron")
	request.CronSchedule = "@every 1m"
	response, err := env.engine.StartWorkflowExecution(context.Background(), testNamespaceID, request)
	require.NoError(t, err)

	// No workflow task until the first occurrence.
	events := env.history(t, "wf-cron", response.RunID)
	require.Len(t, events, 1)
	assert.Equal(t, 0, env.matchingClient.taskCount())

	env.timeSource.Advance(time.Minute)

	assert.Eventually(t, func() bool {
		last := env.probeLastEvent("wf-cron", response.RunID)
		return last != nil && last.EventType == enums.EventTypeWorkflowTaskScheduled
	}, 2*time.Second, 10*time.Millisecond)
	env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)
}

func TestQueryWorkflowBuiltins(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-query")

	response, err := env.engine.QueryWorkflow(context.Background(), testNamespaceID,
		&workflowservice.QueryWorkflowRequest{
			WorkflowID: "wf-query",
			RunID:      runID,
			QueryType:  "__status",
		})
	require.NoError(t, err)
	assert.JSONEq(t, `"Running"`, string(response.QueryResult))

	_, err = env.engine.QueryWorkflow(context.Background(), testNamespaceID,
		&workflowservice.QueryWorkflowRequest{
			WorkflowID: "wf-query",
			QueryType:  "custom-query",
		})
	var invalidArgument *serviceerror.InvalidArgument
	require.ErrorAs(t, err, &invalidArgument)
}

func TestDispatchFailureLandsInHistory(t *testing.T) {
	env := newEngineTestEnv(t)

	runID := env.startWorkflow(t, "wf-dlq")
	task := env.matchingClient.nextTask(t, enums.TaskTypeWorkflow)

	require.NoError(t, env.engine.ReportTaskDispatchFailed(context.Background(), taskInfoFrom(task)))

	events := env.history(t, "wf-dlq", runID)
	last := events[len(events)-1]
	require.Equal(t, enums.EventTypeWorkflowTaskFailed, last.EventType)
	assert.Equal(t, "task dispatch failed", last.WorkflowTaskFailedEventAttributes.Cause)
	assert.Equal(t, common.EmptyEventID, last.WorkflowTaskFailedEventAttributes.StartedEventID)
}

func TestListWorkflowExecutions(t *testing.T) {
	env := newEngineTestEnv(t)

	env.startWorkflow(t, "wf-list-a")
	env.startWorkflow(t, "wf-list-b")

	response, err := env.engine.ListWorkflowExecutions(context.Background(), testNamespaceID,
		&workflowservice.ListWorkflowExecutionsRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, response.Executions, 2)
	assert.Equal(t, "wf-list-a", response.Executions[0].Execution.WorkflowID)
	assert.Equal(t, "wf-list-b", response.Executions[1].Execution.WorkflowID)
	assert.Equal(t, "process-order", response.Executions[0].WorkflowType.Name)
	assert.Equal(t, "orders", response.Executions[0].TaskQueue.Name)
}
