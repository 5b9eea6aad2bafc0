package frontend

import (
	"context"
	"errors"

	"github.com/strandhq/strand/common/persistence"
	"github.com/strandhq/strand/common/serviceerror"
)

// translateError rewrites storage and context errors that escaped the lower
// layers into client-facing service errors. Errors that are already service
// errors pass through untouched.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var (
		shardOwnershipLost *persistence.ShardOwnershipLostError
		conditionFailed    *persistence.ConditionFailedError
		persistenceTimeout *persistence.TimeoutError
		dataCorruption     *persistence.DataCorruptionError
		invalidRequest     *persistence.InvalidPersistenceRequestError
	)
	switch {
	case errors.As(err, &shardOwnershipLost):
		return serviceerror.NewUnavailable(shardOwnershipLost.Error())
	case errors.As(err, &conditionFailed):
		return serviceerror.NewUnavailable(conditionFailed.Error())
	case errors.As(err, &persistenceTimeout):
		return serviceerror.NewUnavailable(persistenceTimeout.Error())
	case errors.As(err, &dataCorruption):
		return serviceerror.NewDataLoss(dataCorruption.Error())
	case errors.As(err, &invalidRequest):
		return serviceerror.NewInternal(invalidRequest.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return serviceerror.NewDeadlineExceeded("request deadline exceeded")
	case errors.Is(err, context.Canceled):
		return serviceerror.NewCanceled("request canceled")
	}
	return err
}
