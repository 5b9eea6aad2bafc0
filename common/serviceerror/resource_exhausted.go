package serviceerror

type (
	// ResourceExhaustedCause names the limit that rejected the request.
	ResourceExhaustedCause int32

	// ResourceExhausted indicates the request was rejected by a rate limit or
	// a capacity limit. The caller should back off before retrying.
	ResourceExhausted struct {
		Cause   ResourceExhaustedCause
		Message string
	}
)

const (
	ResourceExhaustedCauseUnspecified ResourceExhaustedCause = iota
	ResourceExhaustedCauseRPSLimit
	ResourceExhaustedCauseConcurrentLimit
	ResourceExhaustedCauseSystemOverloaded
)

// NewResourceExhausted returns a new ResourceExhausted error.
func NewResourceExhausted(cause ResourceExhaustedCause, message string) error {
	return &ResourceExhausted{
		Cause:   cause,
		Message: message,
	}
}

func (e *ResourceExhausted) Error() string {
	return e.Message
}
