package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/radugaboost/message-inbox/internal/domain/outbox"
	"github.com/radugaboost/message-inbox/internal/worker"
)

const EventDeadLetter = "inbox.dead_letter"

type DeadLetter struct {
	MessageID  string    `json:"message_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	Topic      string    `json:"topic"`
	EventType  string    `json:"event_type"`
	Payload    string    `json:"payload"`
	Reason     string    `json:"reason"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewDeadLetter returns an unrouted handler that parks messages nobody
// handles as inbox.dead_letter outbox events.
func NewDeadLetter(outboxWriter outbox.Writer, producer string) worker.HandlerFunc {
	return func(ctx context.Context, meta worker.Meta, payload any) error {
		raw, _ := payload.(string)

		body, err := json.Marshal(DeadLetter{
			MessageID:  meta.MessageID,
			TraceID:    meta.TraceID,
			Topic:      meta.Topic,
			EventType:  meta.EventType,
			Payload:    raw,
			Reason:     "no handler registered",
			ReceivedAt: meta.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal dead letter: %w", err)
		}

		return outboxWriter.Create(ctx, &outbox.Event{
			ID:            uuid.NewString(),
			EventType:     EventDeadLetter,
			Payload:       body,
			Status:        outbox.StatusNew,
			CorrelationID: meta.TraceID,
			CausationID:   meta.MessageID,
			Producer:      producer,
			CreatedAt:     time.Now().UTC(),
		})
	}
}
