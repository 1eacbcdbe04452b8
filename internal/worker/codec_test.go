package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radugaboost/message-inbox/internal/domain/event"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    event.Envelope
		wantErr bool
	}{
		{
			name:  "valid",
			value: `{"event_type":"order.created","payload":"{\"order_id\":1}"}`,
			want:  event.Envelope{EventType: "order.created", Payload: `{"order_id":1}`},
		},
		{
			name:  "empty payload string is allowed",
			value: `{"event_type":"order.created","payload":""}`,
			want:  event.Envelope{EventType: "order.created"},
		},
		{
			name:  "unknown fields ignored",
			value: `{"event_type":"order.created","payload":"{}","version":2}`,
			want:  event.Envelope{EventType: "order.created", Payload: "{}"},
		},
		{name: "not json", value: `order.created`, wantErr: true},
		{name: "missing event type", value: `{"payload":"{}"}`, wantErr: true},
		{name: "empty event type", value: `{"event_type":"","payload":"{}"}`, wantErr: true},
		{name: "missing payload", value: `{"event_type":"order.created"}`, wantErr: true},
		{name: "payload is an object", value: `{"event_type":"order.created","payload":{"order_id":1}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeEnvelope([]byte(tt.value))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidEnvelope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeEnvelopeRoundTrip(t *testing.T) {
	in := event.Envelope{EventType: "order.accepted", Payload: `{"order_id":7}`}

	value, err := encodeEnvelope(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_type":"order.accepted","payload":"{\"order_id\":7}"}`, string(value))

	out, err := decodeEnvelope(value)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeJSON(t *testing.T) {
	decode := DecodeJSON[orderPlaced]()

	v, err := decode(`{"order_id":3,"status":"new"}`)
	require.NoError(t, err)
	assert.Equal(t, orderPlaced{OrderID: 3, Status: "new"}, v)

	_, err = decode(`{"order_id":"three"}`)
	assert.Error(t, err)
}
