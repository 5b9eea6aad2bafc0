package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/strandhq/strand/api/history"
)

type (
	// Serializer converts persisted entities to and from storage blobs.
	Serializer interface {
		SerializeEvent(event *history.HistoryEvent) (*DataBlob, error)
		DeserializeEvent(blob *DataBlob) (*history.HistoryEvent, error)
		SerializeEvents(events []*history.HistoryEvent) (*DataBlob, error)
		DeserializeEvents(blob *DataBlob) ([]*history.HistoryEvent, error)
	}

	serializerImpl struct{}

	// DeserializationError is returned when a stored blob cannot be decoded.
	DeserializationError struct {
		msg string
	}
)

// NewSerializer returns a serializer backed by JSON encoding.
func NewSerializer() Serializer {
	return &serializerImpl{}
}

func (s *serializerImpl) SerializeEvent(event *history.HistoryEvent) (*DataBlob, error) {
	return serialize(event)
}

func (s *serializerImpl) DeserializeEvent(blob *DataBlob) (*history.HistoryEvent, error) {
	event := &history.HistoryEvent{}
	if err := deserialize(blob, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *serializerImpl) SerializeEvents(events []*history.HistoryEvent) (*DataBlob, error) {
	return serialize(events)
}

func (s *serializerImpl) DeserializeEvents(blob *DataBlob) ([]*history.HistoryEvent, error) {
	var events []*history.HistoryEvent
	if err := deserialize(blob, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func serialize(input any) (*DataBlob, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("serialization failed: %w", err)
	}
	return &DataBlob{Encoding: EncodingTypeJSON, Data: data}, nil
}

func deserialize(blob *DataBlob, target any) error {
	if blob == nil {
		return NewDeserializationError("empty blob")
	}
	if blob.Encoding != EncodingTypeJSON {
		return NewDeserializationError(fmt.Sprintf("unknown encoding %q", blob.Encoding))
	}
	if err := json.Unmarshal(blob.Data, target); err != nil {
		return NewDeserializationError(err.Error())
	}
	return nil
}

// NewDeserializationError returns a DeserializationError.
func NewDeserializationError(msg string) error {
	return &DeserializationError{msg: msg}
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialization error: %v", e.msg)
}
