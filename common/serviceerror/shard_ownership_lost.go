package serviceerror

type (
	// ShardOwnershipLost indicates the shard backing the request is no longer
	// owned by this host. The caller should re-resolve ownership and retry.
	ShardOwnershipLost struct {
		Message   string
		OwnerHost string
	}
)

// NewShardOwnershipLost returns a new ShardOwnershipLost error.
func NewShardOwnershipLost(ownerHost string, message string) error {
	return &ShardOwnershipLost{
		Message:   message,
		OwnerHost: ownerHost,
	}
}

func (e *ShardOwnershipLost) Error() string {
	return e.Message
}
