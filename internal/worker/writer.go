package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/radugaboost/message-inbox/internal/domain/event"
	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

// Source delivers broker messages one at a time.
type Source interface {
	Fetch(ctx context.Context) (event.Delivery, error)
	Commit(ctx context.Context, d event.Delivery) error
}

// Dedup is an optional cache of message ids already written to the inbox.
// The store stays the authority; the cache only saves a round trip.
type Dedup interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Remember(ctx context.Context, messageID string) error
}

// Writer consumes broker messages and stores each distinct message id once.
type Writer struct {
	source Source
	store  inbox.Store
	cfg    WriterConfig
}

func NewWriter(source Source, store inbox.Store, opts ...WriterOption) *Writer {
	if source == nil {
		panic("worker: nil Source")
	}
	if store == nil {
		panic("worker: nil Store")
	}

	var cfg WriterConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Writer{
		source: source,
		store:  store,
		cfg:    cfg.withDefaults(),
	}
}

// Run consumes until ctx is cancelled. Offsets are committed only after a
// message has been stored, recognised as a duplicate or dropped as malformed.
func (w *Writer) Run(ctx context.Context) error {
	w.cfg.Logger.Info("Starting consuming")

	backoff := w.cfg.RetryBackoff
	for {
		d, err := w.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.cfg.Logger.Error("failed to fetch message", "error", err, "backoff", backoff)
			if sleep(ctx, backoff) != nil {
				return nil
			}
			backoff = nextBackoff(backoff, w.cfg.MaxBackoff)
			continue
		}
		backoff = w.cfg.RetryBackoff

		if err := w.Handle(ctx, d); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := w.source.Commit(ctx, d); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.cfg.Logger.Error("failed to commit kafka message", "error", err, "topic", d.Topic, "partition", d.Partition, "offset", d.Offset)
		}
	}
}

// Handle takes one delivery through header parsing, dedup and persistence.
// Malformed deliveries and messages the store rejects as invalid are logged
// and dropped. Other storage failures are retried with backoff, so the only
// error returned is the context's.
func (w *Writer) Handle(ctx context.Context, d event.Delivery) error {
	w.cfg.Metrics.MessageReceived(d.Topic)
	logger := w.cfg.Logger.With("topic", d.Topic, "partition", d.Partition, "offset", d.Offset)
	logger.Info("Received message")

	msg, err := parseDelivery(d)
	if err != nil {
		reason := DropInvalidEnvelope
		if errors.Is(err, ErrMessageIDRequired) {
			reason = DropMissingMessageID
		}
		w.cfg.Metrics.MessageDropped(reason)
		logger.Error("Dropping malformed message", "error", err, "reason", reason)
		return nil
	}

	ctx, span := w.cfg.Tracer.Start(ctx, "inbox.write", trace.WithAttributes(
		attribute.String("inbox.message_id", msg.ID),
		attribute.String("inbox.trace_id", msg.TraceID),
		attribute.String("inbox.event_type", msg.EventType),
		attribute.String("messaging.destination.name", msg.Topic),
	))
	defer span.End()

	logger = logger.With("message_id", msg.ID, "trace_id", msg.TraceID, "event_type", msg.EventType)

	if w.seen(ctx, msg.ID) {
		w.cfg.Metrics.MessageDuplicate(msg.Topic)
		logger.Info("The message has already been received")
		return nil
	}

	backoff := w.cfg.RetryBackoff
	for {
		created, err := w.store.InsertIfAbsent(ctx, msg)
		if errors.Is(err, inbox.ErrInvalidMessage) {
			w.cfg.Metrics.MessageDropped(DropRejectedByStore)
			span.RecordError(err)
			span.SetStatus(codes.Error, "rejected by store")
			logger.Error("Dropping message rejected by the store", "error", err, "reason", DropRejectedByStore)
			return nil
		}
		if err == nil {
			w.remember(ctx, msg.ID)
			if !created {
				w.cfg.Metrics.MessageDuplicate(msg.Topic)
				span.SetAttributes(attribute.Bool("inbox.duplicate", true))
				logger.Info("The message has already been received")
				return nil
			}
			w.cfg.Metrics.MessageWritten(msg.Topic, msg.EventType)
			logger.Info("The message has been written to the inbox")
			return nil
		}

		w.cfg.Metrics.StoreError("insert")
		span.RecordError(err)
		logger.Error("failed to write message to inbox", "error", err, "backoff", backoff)
		if err := sleep(ctx, backoff); err != nil {
			span.SetStatus(codes.Error, "cancelled before the message was stored")
			return err
		}
		backoff = nextBackoff(backoff, w.cfg.MaxBackoff)
	}
}

func (w *Writer) seen(ctx context.Context, id string) bool {
	if w.cfg.Dedup == nil {
		return false
	}
	ok, err := w.cfg.Dedup.Seen(ctx, id)
	if err != nil {
		w.cfg.Logger.Warn("dedup cache lookup failed", "message_id", id, "error", err)
		return false
	}
	return ok
}

func (w *Writer) remember(ctx context.Context, id string) {
	if w.cfg.Dedup == nil {
		return
	}
	if err := w.cfg.Dedup.Remember(ctx, id); err != nil {
		w.cfg.Logger.Warn("dedup cache update failed", "message_id", id, "error", err)
	}
}

// parseDelivery extracts the dedup id and trace id from headers and decodes
// the value, in that order.
func parseDelivery(d event.Delivery) (*inbox.Message, error) {
	id := strings.TrimSpace(d.Headers[event.HeaderMessageID])
	if id == "" {
		return nil, ErrMessageIDRequired
	}

	env, err := decodeEnvelope(d.Value)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}

	msg := &inbox.Message{
		ID:        id,
		Topic:     d.Topic,
		TraceID:   strings.TrimSpace(d.Headers[event.HeaderTraceID]),
		EventType: env.EventType,
		Payload:   env.Payload,
	}

	for field, v := range map[string]string{
		"id":         msg.ID,
		"topic":      msg.Topic,
		"trace_id":   msg.TraceID,
		"event_type": msg.EventType,
		"payload":    msg.Payload,
	} {
		if !storableText(v) {
			return nil, fmt.Errorf("message %q: %w: %s is not valid UTF-8 text", id, ErrInvalidEnvelope, field)
		}
	}
	return msg, nil
}

// storableText reports whether s can be written to a text column: valid
// UTF-8 without NUL bytes.
func storableText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}
