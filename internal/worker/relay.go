package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/radugaboost/message-inbox/internal/domain/event"
	"github.com/radugaboost/message-inbox/internal/domain/outbox"
)

const publishTimeout = 5 * time.Second

// Publisher sends one encoded message to the broker.
type Publisher interface {
	Publish(ctx context.Context, key []byte, headers map[string]string, value []byte) error
}

// OutboxStore is the part of the outbox repository the relay drives.
type OutboxStore interface {
	FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Relay publishes outbox events written by handlers. Every event carries its
// id as x-message-id, so a downstream inbox drops redeliveries.
type Relay struct {
	store     OutboxStore
	publisher Publisher
	cfg       RelayConfig
}

func NewRelay(store OutboxStore, publisher Publisher, opts ...RelayOption) *Relay {
	if store == nil {
		panic("worker: nil OutboxStore")
	}
	if publisher == nil {
		panic("worker: nil Publisher")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.cfg.Logger.Info("Outbox relay started", "poll_interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				r.cfg.Logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and reports how many
// were published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	released, err := r.store.ReleaseStale(ctx, r.cfg.StaleAfter)
	if err != nil {
		return 0, fmt.Errorf("release stale events: %w", err)
	}
	if released > 0 {
		r.cfg.Logger.Warn("Released stale outbox events", "count", released)
	}

	events, err := r.store.FetchBatch(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch batch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var processedIDs, failedIDs []string
	for _, e := range events {
		if err := r.publish(ctx, e); err != nil {
			r.cfg.Logger.Error("failed to publish outbox event", "event_id", e.ID, "event_type", e.EventType, "error", err)
			failedIDs = append(failedIDs, e.ID)
			continue
		}
		r.cfg.Logger.Info("Published outbox event", "event_id", e.ID, "event_type", e.EventType, "trace_id", e.CorrelationID)
		processedIDs = append(processedIDs, e.ID)
	}

	if len(failedIDs) > 0 {
		r.cfg.Metrics.PublishErrors(len(failedIDs))
		if err := r.store.MarkFailed(ctx, failedIDs); err != nil {
			r.cfg.Logger.Error("failed to mark events as failed", "error", err)
		}
	}

	if len(processedIDs) > 0 {
		if err := r.store.MarkProcessed(ctx, processedIDs); err != nil {
			return 0, fmt.Errorf("mark processed: %w", err)
		}
		r.cfg.Metrics.EventsPublished(len(processedIDs))
	}

	return len(processedIDs), nil
}

func (r *Relay) publish(ctx context.Context, e *outbox.Event) error {
	value, err := encodeEnvelope(event.Envelope{EventType: e.EventType, Payload: string(e.Payload)})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	key := []byte(e.CorrelationID)
	if len(key) == 0 {
		key = []byte(e.ID)
	}

	headers := map[string]string{event.HeaderMessageID: e.ID}
	if e.CorrelationID != "" {
		headers[event.HeaderTraceID] = e.CorrelationID
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.publisher.Publish(sendCtx, key, headers, value)
}
