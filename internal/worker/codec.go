package worker

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/radugaboost/message-inbox/internal/domain/event"
)

// DecodeJSON returns a DecodeFunc that unmarshals the payload into a T.
func DecodeJSON[T any]() DecodeFunc {
	return func(payload string) (any, error) {
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("decode %T payload: %w", v, err)
		}
		return v, nil
	}
}

// RawPayload hands the stored payload string to the handler unchanged.
func RawPayload(payload string) (any, error) {
	return payload, nil
}

// envelopeFields mirrors event.Envelope with pointer fields so missing keys
// can be told apart from empty values.
type envelopeFields struct {
	EventType *string `json:"event_type"`
	Payload   *string `json:"payload"`
}

func decodeEnvelope(value []byte) (event.Envelope, error) {
	var f envelopeFields
	if err := json.Unmarshal(value, &f); err != nil {
		return event.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if f.EventType == nil || *f.EventType == "" {
		return event.Envelope{}, fmt.Errorf("%w: event_type is required", ErrInvalidEnvelope)
	}
	if f.Payload == nil {
		return event.Envelope{}, fmt.Errorf("%w: payload is required", ErrInvalidEnvelope)
	}
	return event.Envelope{EventType: *f.EventType, Payload: *f.Payload}, nil
}

func encodeEnvelope(env event.Envelope) ([]byte, error) {
	return json.Marshal(env)
}
