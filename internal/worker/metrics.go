package worker

import "time"

// Outcome labels the result of handling one claimed message.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeUnrouted Outcome = "unrouted"
)

// Drop reasons reported for malformed broker messages.
const (
	DropMissingMessageID = "missing_message_id"
	DropInvalidEnvelope  = "invalid_envelope"
	DropRejectedByStore  = "rejected_by_store"
)

// Metrics captures writer, processor and relay telemetry.
type Metrics interface {
	MessageReceived(topic string)
	MessageDropped(reason string)
	MessageDuplicate(topic string)
	MessageWritten(topic, eventType string)
	MessageHandled(eventType string, outcome Outcome, duration time.Duration)
	StoreError(op string)
	EventsPublished(count int)
	PublishErrors(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// MessageReceived implements Metrics.
func (NopMetrics) MessageReceived(string) {}

// MessageDropped implements Metrics.
func (NopMetrics) MessageDropped(string) {}

// MessageDuplicate implements Metrics.
func (NopMetrics) MessageDuplicate(string) {}

// MessageWritten implements Metrics.
func (NopMetrics) MessageWritten(string, string) {}

// MessageHandled implements Metrics.
func (NopMetrics) MessageHandled(string, Outcome, time.Duration) {}

// StoreError implements Metrics.
func (NopMetrics) StoreError(string) {}

// EventsPublished implements Metrics.
func (NopMetrics) EventsPublished(int) {}

// PublishErrors implements Metrics.
func (NopMetrics) PublishErrors(int) {}
