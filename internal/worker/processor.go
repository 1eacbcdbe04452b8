package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

// Processor claims unprocessed inbox messages one at a time and dispatches
// them to the handler registered for their event type.
type Processor struct {
	store  inbox.Store
	tx     inbox.Transactor
	router *Router
	cfg    ProcessorConfig
}

func NewProcessor(store inbox.Store, tx inbox.Transactor, router *Router, opts ...ProcessorOption) *Processor {
	if store == nil {
		panic("worker: nil Store")
	}
	if tx == nil {
		panic("worker: nil Transactor")
	}
	if router == nil {
		panic("worker: nil Router")
	}

	var cfg ProcessorConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Processor{
		store:  store,
		tx:     tx,
		router: router,
		cfg:    cfg.withDefaults(),
	}
}

// Run starts the configured number of polling loops and blocks until ctx is
// cancelled or a handler fails. A handler failure stops every loop after its
// in-flight message and is returned to the caller.
func (p *Processor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.cfg.Logger.Info("Inbox processor started", "workers", p.cfg.Workers, "poll_interval", p.cfg.PollInterval, "event_types", p.router.EventTypes())

	errCh := make(chan error, p.cfg.Workers)
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			if err := p.runWorker(ctx, workerID); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	return <-errCh
}

func (p *Processor) runWorker(ctx context.Context, id int) error {
	logger := p.cfg.Logger.With("worker", id)
	backoff := p.cfg.PollInterval

	for {
		if ctx.Err() != nil {
			logger.Info("Worker stopping")
			return nil
		}

		processed, err := p.ProcessOnce(ctx)
		if err != nil {
			if errors.Is(err, ErrHandlerFailed) {
				logger.Error("Worker stopped by handler failure", "error", err)
				return err
			}
			if ctx.Err() != nil {
				continue
			}
			logger.Error("failed to process inbox message", "error", err, "backoff", backoff)
			if sleep(ctx, backoff) != nil {
				continue
			}
			backoff = nextBackoff(backoff, p.cfg.MaxBackoff)
			continue
		}
		backoff = p.cfg.PollInterval

		if !processed {
			_ = sleep(ctx, p.cfg.PollInterval)
		}
	}
}

// ProcessOnce claims at most one message and handles it. It reports whether a
// message was claimed. Handler failures are returned as *HandlerError after
// the message has been marked processed and committed, in a second
// transaction if the handler broke the claiming one. Any other error means
// the transaction was rolled back and the message stays claimable.
//
// Once a message is claimed the work is detached from ctx cancellation so the
// transaction always ends in a commit or a rollback.
func (p *Processor) ProcessOnce(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	work := context.WithoutCancel(ctx)

	var (
		claimed   *inbox.Message
		handleErr *HandlerError
	)
	err := p.tx.WithinTransaction(work, func(txCtx context.Context) error {
		msg, err := p.store.ClaimNextUnprocessed(txCtx)
		if err != nil {
			return err
		}
		claimed = msg

		if err := p.dispatch(txCtx, msg); err != nil {
			if !errors.As(err, &handleErr) {
				return err
			}
		}

		if err := p.store.MarkProcessed(txCtx, []string{msg.ID}); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		return nil
	})
	if errors.Is(err, inbox.ErrNoMessages) {
		return false, nil
	}
	if err != nil && handleErr != nil {
		// The handler failure took the claiming transaction down with it, e.g.
		// a timed out query closed the connection. The row must still end up
		// processed before the failure escalates.
		if markErr := p.markProcessedAfterFailure(work, claimed.ID); markErr != nil {
			err = errors.Join(err, markErr)
		} else {
			p.cfg.Logger.Warn("Claiming transaction failed after handler error, marked message processed separately",
				"message_id", claimed.ID, "error", err)
			return true, handleErr
		}
	}
	if err != nil {
		p.cfg.Metrics.StoreError("process")
		if claimed != nil {
			return false, fmt.Errorf("process message %s: %w", claimed.ID, err)
		}
		return false, fmt.Errorf("claim message: %w", err)
	}

	if handleErr != nil {
		return true, handleErr
	}
	return true, nil
}

func (p *Processor) markProcessedAfterFailure(ctx context.Context, id string) error {
	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		return p.store.MarkProcessed(txCtx, []string{id})
	})
	if err != nil {
		return fmt.Errorf("mark processed after handler failure: %w", err)
	}
	return nil
}

// dispatch resolves and runs the handler for msg. A handler failure is
// returned as *HandlerError; any other error is a storage failure that must
// abort the enclosing transaction.
func (p *Processor) dispatch(ctx context.Context, msg *inbox.Message) error {
	started := time.Now()
	logger := p.cfg.Logger.With("message_id", msg.ID, "trace_id", msg.TraceID, "event_type", msg.EventType)
	logger.Info("Received message")

	ctx, span := p.cfg.Tracer.Start(ctx, "inbox.process", trace.WithAttributes(
		attribute.String("inbox.message_id", msg.ID),
		attribute.String("inbox.trace_id", msg.TraceID),
		attribute.String("inbox.event_type", msg.EventType),
		attribute.String("messaging.destination.name", msg.Topic),
	))
	defer span.End()

	outcome := OutcomeSuccess
	route, ok := p.router.Lookup(msg.EventType)
	if !ok {
		outcome = OutcomeUnrouted
		if p.cfg.Unrouted == nil {
			logger.Info("No handler for event type, dropping message")
			p.cfg.Metrics.MessageHandled(msg.EventType, outcome, time.Since(started))
			return nil
		}
		logger.Warn("No handler for event type, passing message to unrouted handler")
		route = Route{EventType: msg.EventType, Decode: RawPayload, Handler: p.cfg.Unrouted}
	}

	meta := Meta{
		MessageID: msg.ID,
		TraceID:   msg.TraceID,
		Topic:     msg.Topic,
		EventType: msg.EventType,
		CreatedAt: msg.CreatedAt,
	}

	var handleErr error
	err := p.tx.WithinTransaction(ctx, func(spCtx context.Context) error {
		handleErr = p.call(spCtx, route, meta, msg.Payload)
		return handleErr
	})
	if handleErr != nil {
		p.cfg.Metrics.MessageHandled(msg.EventType, OutcomeFailed, time.Since(started))
		span.RecordError(handleErr)
		span.SetStatus(codes.Error, "handler failed")
		logger.Error("Error processing message", "error", handleErr)
		return &HandlerError{
			MessageID: msg.ID,
			TraceID:   msg.TraceID,
			EventType: msg.EventType,
			Err:       handleErr,
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "savepoint failed")
		return err
	}

	p.cfg.Metrics.MessageHandled(msg.EventType, outcome, time.Since(started))
	logger.Info("Finished handling message", "duration", time.Since(started))
	return nil
}

// call decodes the payload and runs the handler. It runs inside a savepoint
// so a failing handler leaves no partial writes behind.
func (p *Processor) call(ctx context.Context, route Route, meta Meta, raw string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()

	if p.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.HandlerTimeout)
		defer cancel()
	}

	payload, err := route.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return route.Handler(ctx, meta, payload)
}
