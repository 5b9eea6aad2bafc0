package tag

import (
	"time"
)

// All logging tags are defined in this file.
// To help finding defined tags, we can categorize tags into different groups.
// We defined 5 tag groups so far: common tags, workflow tags, system tags,
// persistence tags and matching tags.

// ==========  Common tags defined here ==========

// Error returns tag for Error.
func Error(err error) Tag {
	return NewErrorTag("error", err)
}

// Timestamp returns tag for Timestamp.
func Timestamp(timestamp time.Time) Tag {
	return NewTimeTag("timestamp", timestamp)
}

// Attempt returns tag for Attempt.
func Attempt(attempt int32) Tag {
	return NewInt32("attempt", attempt)
}

// ==========  Workflow tags defined here: ( wf is short for workflow) ==========

// WorkflowID returns tag for WorkflowID.
func WorkflowID(workflowID string) Tag {
	return NewStringTag("wf-id", workflowID)
}

// WorkflowRunID returns tag for WorkflowRunID.
func WorkflowRunID(runID string) Tag {
	return NewStringTag("wf-run-id", runID)
}

// WorkflowNamespace returns tag for WorkflowNamespace.
func WorkflowNamespace(namespace string) Tag {
	return NewStringTag("wf-namespace", namespace)
}

// WorkflowNamespaceID returns tag for WorkflowNamespaceID.
func WorkflowNamespaceID(namespaceID string) Tag {
	return NewStringTag("wf-namespace-id", namespaceID)
}

// WorkflowType returns tag for WorkflowType.
func WorkflowType(wfType string) Tag {
	return NewStringTag("wf-type", wfType)
}

// WorkflowEventID returns tag for WorkflowEventID.
func WorkflowEventID(eventID int64) Tag {
	return NewInt64("wf-history-event-id", eventID)
}

// WorkflowNextEventID returns tag for WorkflowNextEventID.
func WorkflowNextEventID(nextEventID int64) Tag {
	return NewInt64("wf-next-event-id", nextEventID)
}

// WorkflowScheduledEventID returns tag for WorkflowScheduledEventID.
func WorkflowScheduledEventID(scheduledEventID int64) Tag {
	return NewInt64("wf-scheduled-event-id", scheduledEventID)
}

// WorkflowActivityID returns tag for WorkflowActivityID.
func WorkflowActivityID(id string) Tag {
	return NewStringTag("wf-activity-id", id)
}

// WorkflowTimerID returns tag for WorkflowTimerID.
func WorkflowTimerID(id string) Tag {
	return NewStringTag("wf-timer-id", id)
}

// WorkflowTaskQueueName returns tag for WorkflowTaskQueueName.
func WorkflowTaskQueueName(taskQueueName string) Tag {
	return NewStringTag("wf-task-queue-name", taskQueueName)
}

// WorkflowState returns tag for WorkflowState.
func WorkflowState(s int32) Tag {
	return NewInt32("wf-state", s)
}

// ==========  System tags defined here:  ==========

func component(component string) Tag {
	return NewStringTag("component", component)
}

func lifecycle(lifecycle string) Tag {
	return NewStringTag("lifecycle", lifecycle)
}

// Service returns tag for Service.
func Service(sv string) Tag {
	return NewStringTag("service", sv)
}

// Address returns tag for Address.
func Address(ad string) Tag {
	return NewStringTag("address", ad)
}

// HostID returns tag for HostID.
func HostID(hid string) Tag {
	return NewStringTag("hostId", hid)
}

// Key returns tag for Key.
func Key(k string) Tag {
	return NewStringTag("key", k)
}

// Name returns tag for Name.
func Name(k string) Tag {
	return NewStringTag("name", k)
}

// Value returns tag for Value.
func Value(v interface{}) Tag {
	return NewAnyTag("value", v)
}

// DefaultValue returns tag for DefaultValue.
func DefaultValue(v interface{}) Tag {
	return NewAnyTag("default-value", v)
}

// Port returns tag for Port.
func Port(p int) Tag {
	return NewInt("port", p)
}

// Counter returns tag for Counter.
func Counter(c int) Tag {
	return NewInt("counter", c)
}

// Number returns tag for Number.
func Number(n int64) Tag {
	return NewInt64("number", n)
}

// NewDuration returns tag for Duration.
func NewDuration(key string, duration time.Duration) Tag {
	return NewDurationTag(key, duration)
}

// ==========  Shard tags defined here:  ==========

// ShardID returns tag for ShardID.
func ShardID(shardID int32) Tag {
	return NewInt32("shard-id", shardID)
}

// ShardRangeID returns tag for ShardRangeID.
func ShardRangeID(rangeID int64) Tag {
	return NewInt64("shard-range-id", rangeID)
}

// PreviousShardRangeID returns tag for PreviousShardRangeID.
func PreviousShardRangeID(rangeID int64) Tag {
	return NewInt64("previous-shard-range-id", rangeID)
}

// ==========  Persistence tags defined here:  ==========

func storeOperation(storeOperation string) Tag {
	return NewStringTag("store-operation", storeOperation)
}

// StoreType returns tag for StoreType.
func StoreType(storeType string) Tag {
	return NewStringTag("store-type", storeType)
}

// ==========  Matching tags defined here:  ==========

// TaskID returns tag for TaskID.
func TaskID(taskID int64) Tag {
	return NewInt64("queue-task-id", taskID)
}

// TaskType returns tag for TaskType.
func TaskType(taskType string) Tag {
	return NewStringTag("queue-task-type", taskType)
}

// ReadLevel returns tag for ReadLevel.
func ReadLevel(lv int64) Tag {
	return NewInt64("read-level", lv)
}

// AckLevel returns tag for AckLevel.
func AckLevel(lv interface{}) Tag {
	return NewAnyTag("ack-level", lv)
}

// MaxLevel returns tag for MaxLevel.
func MaxLevel(lv int64) Tag {
	return NewInt64("max-level", lv)
}

// WorkerID returns tag for WorkerID.
func WorkerID(workerID string) Tag {
	return NewStringTag("worker-id", workerID)
}

// Pre-defined values for common tags.
var (
	// ComponentFrontendHandler is the tag value for the frontend handler component.
	ComponentFrontendHandler = component("frontend-handler")
	// ComponentHistoryEngine is the tag value for the history engine component.
	ComponentHistoryEngine = component("history-engine")
	// ComponentShardController is the tag value for the shard controller component.
	ComponentShardController = component("shard-controller")
	// ComponentShardContext is the tag value for the shard context component.
	ComponentShardContext = component("shard-context")
	// ComponentTimerQueue is the tag value for the timer queue component.
	ComponentTimerQueue = component("timer-queue")
	// ComponentMatchingEngine is the tag value for the matching engine component.
	ComponentMatchingEngine = component("matching-engine")
	// ComponentTaskQueue is the tag value for a task queue component.
	ComponentTaskQueue = component("task-queue")
	// ComponentNamespaceRegistry is the tag value for the namespace registry component.
	ComponentNamespaceRegistry = component("namespace-registry")

	// LifeCycleStarting is the tag value for lifecycle starting.
	LifeCycleStarting = lifecycle("Starting")
	// LifeCycleStarted is the tag value for lifecycle started.
	LifeCycleStarted = lifecycle("Started")
	// LifeCycleStopping is the tag value for lifecycle stopping.
	LifeCycleStopping = lifecycle("Stopping")
	// LifeCycleStopped is the tag value for lifecycle stopped.
	LifeCycleStopped = lifecycle("Stopped")
	// LifeCycleStopTimedout is the tag value for lifecycle stop timed out.
	LifeCycleStopTimedout = lifecycle("StopTimedout")

	// StoreOperationCreateShard is the tag value for the CreateShard store operation.
	StoreOperationCreateShard = storeOperation("create-shard")
	// StoreOperationGetShard is the tag value for the GetShard store operation.
	StoreOperationGetShard = storeOperation("get-shard")
	// StoreOperationUpdateShard is the tag value for the UpdateShard store operation.
	StoreOperationUpdateShard = storeOperation("update-shard")
	// StoreOperationCreateWorkflowExecution is the tag value for the CreateWorkflowExecution store operation.
	StoreOperationCreateWorkflowExecution = storeOperation("create-wf-execution")
	// StoreOperationUpdateWorkflowExecution is the tag value for the UpdateWorkflowExecution store operation.
	StoreOperationUpdateWorkflowExecution = storeOperation("update-wf-execution")
	// StoreOperationAppendHistoryEvents is the tag value for the AppendHistoryEvents store operation.
	StoreOperationAppendHistoryEvents = storeOperation("append-history-events")
	// StoreOperationReadHistoryEvents is the tag value for the ReadHistoryEvents store operation.
	StoreOperationReadHistoryEvents = storeOperation("read-history-events")
	// StoreOperationCreateTasks is the tag value for the CreateTasks store operation.
	StoreOperationCreateTasks = storeOperation("create-tasks")
	// StoreOperationGetTasks is the tag value for the GetTasks store operation.
	StoreOperationGetTasks = storeOperation("get-tasks")
	// StoreOperationCompleteTask is the tag value for the CompleteTask store operation.
	StoreOperationCompleteTask = storeOperation("complete-task")
	// StoreOperationCompleteTasksLessThan is the tag value for the CompleteTasksLessThan store operation.
	StoreOperationCompleteTasksLessThan = storeOperation("complete-tasks-less-than")
	// StoreOperationUpdateTaskQueue is the tag value for the UpdateTaskQueue store operation.
	StoreOperationUpdateTaskQueue = storeOperation("update-task-queue")
)
