package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrMessageIDRequired is returned for broker messages without x-message-id.
	ErrMessageIDRequired = errors.New("message id header is required")
	// ErrInvalidEnvelope is returned when a broker message value cannot be decoded.
	ErrInvalidEnvelope = errors.New("invalid message envelope")
	// ErrHandlerFailed wraps every failure raised while handling a claimed message.
	ErrHandlerFailed = errors.New("inbox handler failed")
	// ErrHandlerPanic indicates a handler panicked.
	ErrHandlerPanic = errors.New("inbox handler panic")
)

// HandlerError reports a failed handler invocation. The message it refers to
// has already been marked processed when this error is returned.
type HandlerError struct {
	MessageID string
	TraceID   string
	EventType string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle message %s (event_type=%s, trace_id=%s): %v", e.MessageID, e.EventType, e.TraceID, e.Err)
}

func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailed, e.Err}
}
