package tasktoken

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializerRoundTrip(t *testing.T) {
	s := NewSerializer()
	token := &Token{
		NamespaceID:      "ns-id",
		WorkflowID:       "order-1234",
		RunID:            "run-id",
		ScheduledEventID: 7,
		StartedEventID:   8,
		Attempt:          2,
		ActivityID:       "charge-card",
	}

	data, err := s.Serialize(token)
	require.NoError(t, err)

	got, err := s.Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, token, got)
}

func TestSerializerRejectsGarbage(t *testing.T) {
	s := NewSerializer()
	_, err := s.Deserialize([]byte("not a token"))
	require.Error(t, err)
}
