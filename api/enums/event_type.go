package enums

// EventType is the tagged variant of a history event.
type EventType int32

const (
	EventTypeUnspecified EventType = iota
	EventTypeWorkflowExecutionStarted
	EventTypeWorkflowExecutionCompleted
	EventTypeWorkflowExecutionFailed
	EventTypeWorkflowExecutionTimedOut
	EventTypeWorkflowExecutionCanceled
	EventTypeWorkflowExecutionTerminated
	EventTypeWorkflowExecutionContinuedAsNew
	EventTypeWorkflowExecutionCancelRequested
	EventTypeWorkflowExecutionSignaled
	EventTypeWorkflowTaskScheduled
	EventTypeWorkflowTaskStarted
	EventTypeWorkflowTaskCompleted
	EventTypeWorkflowTaskFailed
	EventTypeWorkflowTaskTimedOut
	EventTypeActivityTaskScheduled
	EventTypeActivityTaskStarted
	EventTypeActivityTaskCompleted
	EventTypeActivityTaskFailed
	EventTypeActivityTaskTimedOut
	EventTypeTimerStarted
	EventTypeTimerFired
	EventTypeTimerCanceled
)

var eventTypeNames = map[EventType]string{
	EventTypeUnspecified:                      "Unspecified",
	EventTypeWorkflowExecutionStarted:         "WorkflowExecutionStarted",
	EventTypeWorkflowExecutionCompleted:       "WorkflowExecutionCompleted",
	EventTypeWorkflowExecutionFailed:          "WorkflowExecutionFailed",
	EventTypeWorkflowExecutionTimedOut:        "WorkflowExecutionTimedOut",
	EventTypeWorkflowExecutionCanceled:        "WorkflowExecutionCanceled",
	EventTypeWorkflowExecutionTerminated:      "WorkflowExecutionTerminated",
	EventTypeWorkflowExecutionContinuedAsNew:  "WorkflowExecutionContinuedAsNew",
	EventTypeWorkflowExecutionCancelRequested: "WorkflowExecutionCancelRequested",
	EventTypeWorkflowExecutionSignaled:        "WorkflowExecutionSignaled",
	EventTypeWorkflowTaskScheduled:            "WorkflowTaskScheduled",
	EventTypeWorkflowTaskStarted:              "WorkflowTaskStarted",
	EventTypeWorkflowTaskCompleted:            "WorkflowTaskCompleted",
	EventTypeWorkflowTaskFailed:               "WorkflowTaskFailed",
	EventTypeWorkflowTaskTimedOut:             "WorkflowTaskTimedOut",
	EventTypeActivityTaskScheduled:            "ActivityTaskScheduled",
	EventTypeActivityTaskStarted:              "ActivityTaskStarted",
	EventTypeActivityTaskCompleted:            "ActivityTaskCompleted",
	EventTypeActivityTaskFailed:               "ActivityTaskFailed",
	EventTypeActivityTaskTimedOut:             "ActivityTaskTimedOut",
	EventTypeTimerStarted:                     "TimerStarted",
	EventTypeTimerFired:                       "TimerFired",
	EventTypeTimerCanceled:                    "TimerCanceled",
}

func (e EventType) String() string {
	if name, ok := eventTypeNames[e]; ok {
		return name
	}
	return "Unknown"
}
