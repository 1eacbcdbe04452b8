package inbox

import (
	"context"
	"time"
)

// Message is a durable, deduplicated unit of work received from the broker.
// ID is supplied by the producer and is the only deduplication key.
type Message struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	TraceID     string    `json:"trace_id,omitempty"`
	EventType   string    `json:"event_type"`
	Payload     string    `json:"payload"`
	IsProcessed bool      `json:"is_processed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Stats struct {
	Total           int64      `json:"total"`
	Pending         int64      `json:"pending"`
	Processed       int64      `json:"processed"`
	OldestPendingAt *time.Time `json:"oldest_pending_at,omitempty"`
}

// Store is the write side used by the Writer and the Processor.
type Store interface {
	// InsertIfAbsent persists msg unless a row with the same ID exists.
	// It reports whether a new row was created.
	InsertIfAbsent(ctx context.Context, msg *Message) (bool, error)
	// ClaimNextUnprocessed locks the oldest unprocessed row for the lifetime of
	// the transaction carried by ctx, skipping rows locked by other claimants.
	// It returns ErrNoMessages when nothing is available.
	ClaimNextUnprocessed(ctx context.Context) (*Message, error)
	// MarkProcessed flips is_processed to true for ids. Already processed rows
	// are left untouched.
	MarkProcessed(ctx context.Context, ids []string) error
}

// Reader is the read side used by the API and inboxctl.
type Reader interface {
	Get(ctx context.Context, id string) (*Message, error)
	Stats(ctx context.Context) (*Stats, error)
	ListPending(ctx context.Context, limit int) ([]*Message, error)
	ListByTraceID(ctx context.Context, traceID string) ([]*Message, error)
}

type Repository interface {
	Store
	Reader
}

// Transactor runs fn inside a transaction carried by the context passed to fn.
// Calling it with a context that already carries a transaction opens a
// savepoint instead.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
