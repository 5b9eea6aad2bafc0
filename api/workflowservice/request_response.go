package workflowservice

import (
	"time"

	"github.com/strandhq/strand/api/command"
	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/api/history"
	"github.com/strandhq/strand/api/types"
)

type (
	// WorkflowExecutionInfo is the client-facing snapshot of an execution.
	WorkflowExecutionInfo struct {
		Execution     types.WorkflowExecution       `json:"execution"`
		WorkflowType  types.WorkflowType            `json:"workflowType"`
		TaskQueue     types.TaskQueue               `json:"taskQueue"`
		Status        enums.WorkflowExecutionStatus `json:"status"`
		StartTime     time.Time                     `json:"startTime"`
		CloseTime     *time.Time                    `json:"closeTime,omitempty"`
		HistoryLength int64                         `json:"historyLength"`
	}

	// PendingActivityInfo describes an activity that has been scheduled but
	// not yet closed.
	PendingActivityInfo struct {
		ActivityID         string             `json:"activityId"`
		ActivityType       types.ActivityType `json:"activityType"`
		Attempt            int32              `json:"attempt"`
		ScheduledTime      time.Time          `json:"scheduledTime"`
		LastHeartbeatTime  *time.Time         `json:"lastHeartbeatTime,omitempty"`
		LastFailure        *types.Failure     `json:"lastFailure,omitempty"`
		NextAttemptDelayed time.Duration      `json:"nextAttemptDelayed,omitempty"`
	}

	// NamespaceInfo is the client-facing snapshot of a namespace.
	NamespaceInfo struct {
		Name        string               `json:"name"`
		ID          string               `json:"id"`
		State       enums.NamespaceState `json:"state"`
		Description string               `json:"description,omitempty"`
		Retention   time.Duration        `json:"retention"`
	}
)

type (
	StartWorkflowExecutionRequest struct {
		Namespace           string             `json:"namespace"`
		WorkflowID          string             `json:"workflowId"`
		WorkflowType        types.WorkflowType `json:"workflowType"`
		TaskQueue           types.TaskQueue    `json:"taskQueue"`
		Input               types.Payload      `json:"input,omitempty"`
		WorkflowRunTimeout  time.Duration      `json:"workflowRunTimeout,omitempty"`
		WorkflowTaskTimeout time.Duration      `json:"workflowTaskTimeout,omitempty"`
		CronSchedule        string             `json:"cronSchedule,omitempty"`
		Identity            string             `json:"identity,omitempty"`
		// RequestID deduplicates retried start calls. Retrying with the same
		// request id returns the run started by the first call.
		RequestID string `json:"requestId"`
	}

	StartWorkflowExecutionResponse struct {
		RunID string `json:"runId"`
	}

	SignalWorkflowExecutionRequest struct {
		Namespace  string        `json:"namespace"`
		WorkflowID string        `json:"workflowId"`
		RunID      string        `json:"runId,omitempty"`
		SignalName string        `json:"signalName"`
		Input      types.Payload `json:"input,omitempty"`
		Identity   string        `json:"identity,omitempty"`
	}

	SignalWorkflowExecutionResponse struct{}

	SignalWithStartWorkflowExecutionRequest struct {
		StartRequest *StartWorkflowExecutionRequest `json:"startRequest"`
		SignalName   string                         `json:"signalName"`
		SignalInput  types.Payload                  `json:"signalInput,omitempty"`
	}

	SignalWithStartWorkflowExecutionResponse struct {
		RunID string `json:"runId"`
		// Started is false when the signal landed on an already running
		// execution.
		Started bool `json:"started"`
	}

	QueryWorkflowRequest struct {
		Namespace  string        `json:"namespace"`
		WorkflowID string        `json:"workflowId"`
		RunID      string        `json:"runId,omitempty"`
		QueryType  string        `json:"queryType"`
		QueryArgs  types.Payload `json:"queryArgs,omitempty"`
	}

	QueryWorkflowResponse struct {
		QueryResult types.Payload `json:"queryResult,omitempty"`
	}

	RequestCancelWorkflowExecutionRequest struct {
		Namespace  string `json:"namespace"`
		WorkflowID string `json:"workflowId"`
		RunID      string `json:"runId,omitempty"`
		Cause      string `json:"cause,omitempty"`
		Identity   string `json:"identity,omitempty"`
	}

	RequestCancelWorkflowExecutionResponse struct{}

	TerminateWorkflowExecutionRequest struct {
		Namespace  string        `json:"namespace"`
		WorkflowID string        `json:"workflowId"`
		RunID      string        `json:"runId,omitempty"`
		Reason     string        `json:"reason,omitempty"`
		Details    types.Payload `json:"details,omitempty"`
		Identity   string        `json:"identity,omitempty"`
	}

	TerminateWorkflowExecutionResponse struct{}

	DescribeWorkflowExecutionRequest struct {
		Namespace  string `json:"namespace"`
		WorkflowID string `json:"workflowId"`
		RunID      string `json:"runId,omitempty"`
	}

	DescribeWorkflowExecutionResponse struct {
		WorkflowExecutionInfo WorkflowExecutionInfo `json:"workflowExecutionInfo"`
		PendingActivities     []PendingActivityInfo `json:"pendingActivities,omitempty"`
	}

	GetWorkflowExecutionHistoryRequest struct {
		Namespace       string `json:"namespace"`
		WorkflowID      string `json:"workflowId"`
		RunID           string `json:"runId,omitempty"`
		MaximumPageSize int32  `json:"maximumPageSize,omitempty"`
		NextPageToken   []byte `json:"nextPageToken,omitempty"`
	}

	GetWorkflowExecutionHistoryResponse struct {
		Events        []*history.HistoryEvent `json:"events"`
		NextPageToken []byte                  `json:"nextPageToken,omitempty"`
	}

	ListWorkflowExecutionsRequest struct {
		Namespace     string `json:"namespace"`
		PageSize      int32  `json:"pageSize,omitempty"`
		NextPageToken []byte `json:"nextPageToken,omitempty"`
	}

	ListWorkflowExecutionsResponse struct {
		Executions    []WorkflowExecutionInfo `json:"executions"`
		NextPageToken []byte                  `json:"nextPageToken,omitempty"`
	}
)

type (
	PollWorkflowTaskQueueRequest struct {
		Namespace string          `json:"namespace"`
		TaskQueue types.TaskQueue `json:"taskQueue"`
		Identity  string          `json:"identity,omitempty"`
	}

	PollWorkflowTaskQueueResponse struct {
		TaskToken         []byte                  `json:"taskToken,omitempty"`
		WorkflowExecution types.WorkflowExecution `json:"workflowExecution"`
		WorkflowType      types.WorkflowType      `json:"workflowType"`
		// PreviousStartedEventID is the id of the last workflow task started
		// event the worker has seen.
		PreviousStartedEventID int64                   `json:"previousStartedEventId"`
		StartedEventID         int64                   `json:"startedEventId"`
		Attempt                int32                   `json:"attempt"`
		History                []*history.HistoryEvent `json:"history,omitempty"`
	}

	PollActivityTaskQueueRequest struct {
		Namespace string          `json:"namespace"`
		TaskQueue types.TaskQueue `json:"taskQueue"`
		Identity  string          `json:"identity,omitempty"`
	}

	PollActivityTaskQueueResponse struct {
		TaskToken           []byte                  `json:"taskToken,omitempty"`
		WorkflowExecution   types.WorkflowExecution `json:"workflowExecution"`
		ActivityID          string                  `json:"activityId"`
		ActivityType        types.ActivityType      `json:"activityType"`
		Input               types.Payload           `json:"input,omitempty"`
		Attempt             int32                   `json:"attempt"`
		ScheduledTime       time.Time               `json:"scheduledTime"`
		StartToCloseTimeout time.Duration           `json:"startToCloseTimeout,omitempty"`
		HeartbeatTimeout    time.Duration           `json:"heartbeatTimeout,omitempty"`
	}

	RespondWorkflowTaskCompletedRequest struct {
		TaskToken []byte             `json:"taskToken"`
		Commands  []*command.Command `json:"commands,omitempty"`
		Identity  string             `json:"identity,omitempty"`
	}

	RespondWorkflowTaskCompletedResponse struct{}

	RespondWorkflowTaskFailedRequest struct {
		TaskToken []byte        `json:"taskToken"`
		Cause     string        `json:"cause,omitempty"`
		Failure   types.Failure `json:"failure"`
		Identity  string        `json:"identity,omitempty"`
	}

	RespondWorkflowTaskFailedResponse struct{}

	RespondActivityTaskCompletedRequest struct {
		TaskToken []byte        `json:"taskToken"`
		Result    types.Payload `json:"result,omitempty"`
		Identity  string        `json:"identity,omitempty"`
	}

	RespondActivityTaskCompletedResponse struct{}

	RespondActivityTaskFailedRequest struct {
		TaskToken []byte        `json:"taskToken"`
		Failure   types.Failure `json:"failure"`
		Identity  string        `json:"identity,omitempty"`
	}

	RespondActivityTaskFailedResponse struct{}

	RecordActivityTaskHeartbeatRequest struct {
		TaskToken []byte        `json:"taskToken"`
		Details   types.Payload `json:"details,omitempty"`
		Identity  string        `json:"identity,omitempty"`
	}

	RecordActivityTaskHeartbeatResponse struct {
		// CancelRequested tells the worker the workflow asked for
		// cancellation, so it should stop the activity.
		CancelRequested bool `json:"cancelRequested"`
	}
)

type (
	RegisterNamespaceRequest struct {
		Name        string        `json:"name"`
		Description string        `json:"description,omitempty"`
		Retention   time.Duration `json:"retention,omitempty"`
	}

	RegisterNamespaceResponse struct {
		ID string `json:"id"`
	}

	UpdateNamespaceRequest struct {
		Name        string         `json:"name"`
		Description *string        `json:"description,omitempty"`
		Retention   *time.Duration `json:"retention,omitempty"`
	}

	UpdateNamespaceResponse struct {
		Namespace NamespaceInfo `json:"namespace"`
	}

	DeprecateNamespaceRequest struct {
		Name string `json:"name"`
	}

	DeprecateNamespaceResponse struct{}

	DescribeNamespaceRequest struct {
		Name string `json:"name"`
	}

	DescribeNamespaceResponse struct {
		Namespace NamespaceInfo `json:"namespace"`
	}

	ListNamespacesRequest struct {
		PageSize      int32  `json:"pageSize,omitempty"`
		NextPageToken []byte `json:"nextPageToken,omitempty"`
	}

	ListNamespacesResponse struct {
		Namespaces    []NamespaceInfo `json:"namespaces"`
		NextPageToken []byte          `json:"nextPageToken,omitempty"`
	}
)
