package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/strandhq/strand/api/enums"
	"github.com/strandhq/strand/common/serviceerror"
)

type (
	// InvalidPersistenceRequestError is returned when the caller built a
	// malformed request. Not retryable.
	InvalidPersistenceRequestError struct {
		Msg string
	}

	// ConditionFailedError is returned when a conditional write loses: the
	// stored version, range id or record has moved past the caller's
	// expectation. The caller must re-read and retry.
	ConditionFailedError struct {
		Msg string
	}

	// ShardOwnershipLostError is returned when a write carried a stale shard
	// RangeID. The shard has been stolen by another host.
	ShardOwnershipLostError struct {
		ShardID int32
		Msg     string
	}

	// ShardAlreadyExistError is returned on creating an existing shard.
	ShardAlreadyExistError struct {
		Msg string
	}

	// CurrentWorkflowConditionFailedError is returned when a workflow start
	// collides with the current run of the same workflow id.
	CurrentWorkflowConditionFailedError struct {
		Msg string
		// RequestID is the create request id of the current run, used for
		// start deduplication.
		RequestID string
		RunID     string
		Status    enums.WorkflowExecutionStatus
	}

	// TimeoutError is returned when a storage operation timed out. The write
	// may or may not have been applied.
	TimeoutError struct {
		Msg string
	}

	// DataCorruptionError is returned when stored data fails to decode. The
	// affected entity must not be served.
	DataCorruptionError struct {
		Msg string
	}
)

func (e *InvalidPersistenceRequestError) Error() string {
	return e.Msg
}

func (e *ConditionFailedError) Error() string {
	return e.Msg
}

func (e *ShardOwnershipLostError) Error() string {
	return fmt.Sprintf("shard %v ownership lost: %v", e.ShardID, e.Msg)
}

func (e *ShardAlreadyExistError) Error() string {
	return e.Msg
}

func (e *CurrentWorkflowConditionFailedError) Error() string {
	return e.Msg
}

func (e *TimeoutError) Error() string {
	return e.Msg
}

func (e *DataCorruptionError) Error() string {
	return e.Msg
}

// ErrPersistenceLimitExceeded is returned when the persistence rate limit is
// hit.
var ErrPersistenceLimitExceeded = errors.New("persistence limit exceeded")

// IsConflictErr returns true for errors that call for a re-read and retry at
// a higher layer rather than a blind retry here.
func IsConflictErr(err error) bool {
	var conditionFailed *ConditionFailedError
	var currentConditionFailed *CurrentWorkflowConditionFailedError
	var shardOwnershipLost *ShardOwnershipLostError
	switch {
	case errors.As(err, &conditionFailed),
		errors.As(err, &currentConditionFailed),
		errors.As(err, &shardOwnershipLost):
		return true
	default:
		return false
	}
}

// IsTransientErr returns true for errors worth retrying in place.
func IsTransientErr(err error) bool {
	var timeout *TimeoutError
	switch {
	case errors.As(err, &timeout),
		errors.Is(err, ErrPersistenceLimitExceeded):
		return true
	default:
		return false
	}
}

// IsUnavailableErr returns true for errors that count against datastore
// health. Conflicts, not-found results and malformed requests come back from
// a healthy datastore and must not be counted. Unclassified driver errors do
// count: a refused connection surfaces raw.
func IsUnavailableErr(err error) bool {
	if err == nil {
		return false
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}

	var invalidRequest *InvalidPersistenceRequestError
	var shardExists *ShardAlreadyExistError
	var corruption *DataCorruptionError
	var notFound *serviceerror.NotFound
	var namespaceNotFound *serviceerror.NamespaceNotFound
	var namespaceExists *serviceerror.NamespaceAlreadyExists
	var startedError *serviceerror.WorkflowExecutionAlreadyStarted
	var invalidArgument *serviceerror.InvalidArgument
	var internal *serviceerror.Internal
	switch {
	case IsConflictErr(err),
		errors.As(err, &invalidRequest),
		errors.As(err, &shardExists),
		errors.As(err, &corruption),
		errors.As(err, &notFound),
		errors.As(err, &namespaceNotFound),
		errors.As(err, &namespaceExists),
		errors.As(err, &startedError),
		errors.As(err, &invalidArgument),
		errors.As(err, &internal),
		errors.Is(err, ErrPersistenceLimitExceeded),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
