package serviceerror

import "fmt"

type (
	// InvalidArgument indicates the request was rejected because a caller
	// supplied argument failed validation.
	InvalidArgument struct {
		Message string
	}

	// NotFound indicates a requested entity does not exist.
	NotFound struct {
		Message string
	}

	// NamespaceNotFound indicates the request named a namespace that is not
	// registered.
	NamespaceNotFound struct {
		Message   string
		Namespace string
	}

	// NamespaceAlreadyExists indicates a namespace registration collided with
	// an existing namespace of the same name.
	NamespaceAlreadyExists struct {
		Message string
	}

	// WorkflowExecutionAlreadyStarted indicates a start request collided with
	// a running execution using the same workflow ID.
	WorkflowExecutionAlreadyStarted struct {
		Message        string
		StartRequestID string
		RunID          string
	}

	// Unavailable indicates a transient condition. The caller may retry.
	Unavailable struct {
		Message string
	}

	// DeadlineExceeded indicates the operation did not complete before its
	// deadline. The work may or may not have been applied.
	DeadlineExceeded struct {
		Message string
	}

	// Canceled indicates the caller gave up on the operation.
	Canceled struct {
		Message string
	}

	// Internal indicates a bug or broken invariant inside the server.
	Internal struct {
		Message string
	}

	// DataLoss indicates unrecoverable corruption was detected, such as a
	// history that fails to decode.
	DataLoss struct {
		Message string
	}
)

// NewInvalidArgument returns a new InvalidArgument error.
func NewInvalidArgument(message string) error {
	return &InvalidArgument{Message: message}
}

// NewInvalidArgumentf returns a new InvalidArgument error with a formatted
// message.
func NewInvalidArgumentf(format string, args ...any) error {
	return &InvalidArgument{Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidArgument) Error() string {
	return e.Message
}

// NewNotFound returns a new NotFound error.
func NewNotFound(message string) error {
	return &NotFound{Message: message}
}

// NewNotFoundf returns a new NotFound error with a formatted message.
func NewNotFoundf(format string, args ...any) error {
	return &NotFound{Message: fmt.Sprintf(format, args...)}
}

func (e *NotFound) Error() string {
	return e.Message
}

// NewNamespaceNotFound returns a new NamespaceNotFound error.
func NewNamespaceNotFound(namespace string) error {
	return &NamespaceNotFound{
		Message:   fmt.Sprintf("namespace %q not found", namespace),
		Namespace: namespace,
	}
}

func (e *NamespaceNotFound) Error() string {
	return e.Message
}

// NewNamespaceAlreadyExists returns a new NamespaceAlreadyExists error.
func NewNamespaceAlreadyExists(namespace string) error {
	return &NamespaceAlreadyExists{
		Message: fmt.Sprintf("namespace %q already exists", namespace),
	}
}

func (e *NamespaceAlreadyExists) Error() string {
	return e.Message
}

// NewWorkflowExecutionAlreadyStarted returns a new
// WorkflowExecutionAlreadyStarted error.
func NewWorkflowExecutionAlreadyStarted(message string, startRequestID string, runID string) error {
	return &WorkflowExecutionAlreadyStarted{
		Message:        message,
		StartRequestID: startRequestID,
		RunID:          runID,
	}
}

func (e *WorkflowExecutionAlreadyStarted) Error() string {
	return e.Message
}

// NewUnavailable returns a new Unavailable error.
func NewUnavailable(message string) error {
	return &Unavailable{Message: message}
}

// NewUnavailablef returns a new Unavailable error with a formatted message.
func NewUnavailablef(format string, args ...any) error {
	return &Unavailable{Message: fmt.Sprintf(format, args...)}
}

func (e *Unavailable) Error() string {
	return e.Message
}

// NewDeadlineExceeded returns a new DeadlineExceeded error.
func NewDeadlineExceeded(message string) error {
	return &DeadlineExceeded{Message: message}
}

func (e *DeadlineExceeded) Error() string {
	return e.Message
}

// NewCanceled returns a new Canceled error.
func NewCanceled(message string) error {
	return &Canceled{Message: message}
}

func (e *Canceled) Error() string {
	return e.Message
}

// NewInternal returns a new Internal error.
func NewInternal(message string) error {
	return &Internal{Message: message}
}

// NewInternalf returns a new Internal error with a formatted message.
func NewInternalf(format string, args ...any) error {
	return &Internal{Message: fmt.Sprintf(format, args...)}
}

func (e *Internal) Error() string {
	return e.Message
}

// NewDataLoss returns a new DataLoss error.
func NewDataLoss(message string) error {
	return &DataLoss{Message: message}
}

func (e *DataLoss) Error() string {
	return e.Message
}
