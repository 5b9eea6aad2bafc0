package tasktoken

import (
	"encoding/json"

	"github.com/strandhq/strand/common/serviceerror"
)

type (
	// Token identifies an in-flight workflow or activity task handed to a
	// worker. Workers return it verbatim when responding, which lets the
	// history engine route the response and reject responses for stale
	// attempts.
	Token struct {
		NamespaceID      string `json:"namespaceId"`
		WorkflowID       string `json:"workflowId"`
		RunID            string `json:"runId"`
		ScheduledEventID int64  `json:"scheduledEventId"`
		StartedEventID   int64  `json:"startedEventId"`
		Attempt          int32  `json:"attempt"`
		ActivityID       string `json:"activityId,omitempty"`
	}

	// Serializer converts task tokens to and from their wire form.
	Serializer struct{}
)

// NewSerializer returns a task token serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize encodes a task token.
func (s *Serializer) Serialize(token *Token) ([]byte, error) {
	data, err := json.Marshal(token)
	if err != nil {
		return nil, serviceerror.NewInternalf("unable to serialize task token: %v", err)
	}
	return data, nil
}

// Deserialize decodes a task token.
func (s *Serializer) Deserialize(data []byte) (*Token, error) {
	token := &Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, serviceerror.NewInvalidArgumentf("invalid task token: %v", err)
	}
	return token, nil
}
