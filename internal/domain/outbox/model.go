package outbox

import (
	"context"
	"encoding/json"
	"time"
)

const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Event is a message recorded in the same transaction as the domain change
// that caused it and later published by the relay.
type Event struct {
	ID            string          `json:"id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id"`
	Producer      string          `json:"producer"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Writer interface {
	Create(ctx context.Context, event *Event) error
}

type Repository interface {
	Writer
	FetchBatch(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*Event, error)
}
