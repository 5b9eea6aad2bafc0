package dynamicconfig

type (
	// StaticClient is a Client backed by a fixed map of values. Used in tests
	// and for deployments with no dynamic config source.
	StaticClient map[Key]interface{}

	noopClient struct{}
)

var _ Client = StaticClient{}

func (s StaticClient) GetValue(key Key) []ConstrainedValue {
	if v, ok := s[key]; ok {
		return []ConstrainedValue{{Value: v}}
	}
	return nil
}

// NewNoopClient returns a Client with no values; all lookups fall back to defaults.
func NewNoopClient() Client {
	return noopClient{}
}

func (noopClient) GetValue(Key) []ConstrainedValue {
	return nil
}
