package types

import "errors"

var (
	errNegativeInitialInterval    = errors.New("retry policy: initial interval cannot be negative")
	errBackoffCoefficientTooSmall = errors.New("retry policy: backoff coefficient cannot be less than 1")
	errNegativeMaximumInterval    = errors.New("retry policy: maximum interval cannot be negative")
	errMaximumIntervalTooSmall    = errors.New("retry policy: maximum interval cannot be less than initial interval")
	errNegativeMaximumAttempts    = errors.New("retry policy: maximum attempts cannot be negative")
)
