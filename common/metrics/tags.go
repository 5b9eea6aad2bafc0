package metrics

const (
	namespaceTagName     = "namespace"
	operationTagName     = "operation"
	serviceTagName       = "service_name"
	taskQueueTagName     = "taskqueue"
	taskTypeTagName      = "task_type"
	errorTypeTagName     = "error_type"
	failureTagName       = "failure"

	unknownValue = "_unknown_"
)

// Tag is a key/value pair attached to an emitted metric.
type Tag struct {
	key   string
	value string
}

func (t Tag) Key() string   { return t.key }
func (t Tag) Value() string { return t.value }

// NamespaceTag returns a tag for namespace. An empty value is reported as unknown.
func NamespaceTag(value string) Tag {
	if len(value) == 0 {
		value = unknownValue
	}
	return Tag{key: namespaceTagName, value: value}
}

// OperationTag returns a tag for the calling operation.
func OperationTag(value string) Tag {
	return Tag{key: operationTagName, value: value}
}

// ServiceNameTag returns a tag for the service emitting the metric.
func ServiceNameTag(value string) Tag {
	return Tag{key: serviceTagName, value: value}
}

// TaskQueueTag returns a tag for task queue name.
func TaskQueueTag(value string) Tag {
	if len(value) == 0 {
		value = unknownValue
	}
	return Tag{key: taskQueueTagName, value: value}
}

// TaskTypeTag returns a tag for the queue task type.
func TaskTypeTag(value string) Tag {
	return Tag{key: taskTypeTagName, value: value}
}

// ErrorTypeTag returns a tag for the error type.
func ErrorTypeTag(value string) Tag {
	return Tag{key: errorTypeTagName, value: value}
}

// FailureTag returns a tag for a failure cause.
func FailureTag(value string) Tag {
	return Tag{key: failureTagName, value: value}
}
