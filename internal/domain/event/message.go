package event

import "time"

const (
	HeaderMessageID = "x-message-id"
	HeaderTraceID   = "x-trace-id"
)

// Envelope is the broker message value consumed by the inbox writer and
// produced by the outbox relay. Payload is an encoded document kept as a
// string and decoded only by the handler bound to EventType.
type Envelope struct {
	EventType string `json:"event_type"`
	Payload   string `json:"payload"`
}

// Delivery is a single message fetched from the broker.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Headers   map[string]string
	Value     []byte
	Time      time.Time
}
