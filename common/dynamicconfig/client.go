package dynamicconfig

type (
	// Key is the name of a dynamic config setting. Keys are case-insensitive.
	Key string

	// Constraints describe the scope of a constrained value. A zero Constraints
	// matches every scope.
	Constraints struct {
		Namespace     string
		TaskQueueName string
	}

	// ConstrainedValue is a value plus the scope it applies to.
	ConstrainedValue struct {
		Constraints Constraints
		Value       interface{}
	}

	// Client allows fetching values of dynamic config settings. The caller is
	// responsible for value type conversion and precedence resolution; see
	// Collection.
	Client interface {
		GetValue(key Key) []ConstrainedValue
	}
)

func (k Key) String() string {
	return string(k)
}
