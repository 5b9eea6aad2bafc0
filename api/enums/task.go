package enums

type (
	// TaskType distinguishes workflow tasks from activity tasks.
	TaskType int32

	// TaskQueueKind distinguishes user task queues from system queues such as
	// dead letter queues.
	TaskQueueKind int32

	// NamespaceState is the lifecycle state of a namespace.
	NamespaceState int32
)

const (
	TaskTypeUnspecified TaskType = iota
	TaskTypeWorkflow
	TaskTypeActivity
)

const (
	TaskQueueKindNormal TaskQueueKind = iota
	TaskQueueKindDeadLetter
)

const (
	NamespaceStateUnspecified NamespaceState = iota
	NamespaceStateRegistered
	NamespaceStateDeprecated
	NamespaceStateDeleted
)

var taskTypeNames = map[TaskType]string{
	TaskTypeUnspecified: "Unspecified",
	TaskTypeWorkflow:    "Workflow",
	TaskTypeActivity:    "Activity",
}

func (t TaskType) String() string {
	if name, ok := taskTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

var namespaceStateNames = map[NamespaceState]string{
	NamespaceStateUnspecified: "Unspecified",
	NamespaceStateRegistered:  "Registered",
	NamespaceStateDeprecated:  "Deprecated",
	NamespaceStateDeleted:     "Deleted",
}

func (s NamespaceState) String() string {
	if name, ok := namespaceStateNames[s]; ok {
		return name
	}
	return "Unknown"
}
