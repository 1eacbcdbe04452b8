package usecase

import (
	"context"
	"fmt"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
	"github.com/radugaboost/message-inbox/internal/domain/outbox"
)

// OutboxLister is the outbox read side needed to follow a trace.
type OutboxLister interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error)
}

type TraceDTO struct {
	TraceID string           `json:"trace_id"`
	Inbox   []*inbox.Message `json:"inbox"`
	Outbox  []*outbox.Event  `json:"outbox"`
}

type GetTrace struct {
	inboxReader inbox.Reader
	outbox      OutboxLister
}

// NewGetTrace builds the use case. outboxLister may be nil when the storage
// backend has no outbox table.
func NewGetTrace(inboxReader inbox.Reader, outboxLister OutboxLister) *GetTrace {
	return &GetTrace{
		inboxReader: inboxReader,
		outbox:      outboxLister,
	}
}

// Execute collects every inbox message and outbox event sharing traceID.
func (uc *GetTrace) Execute(ctx context.Context, traceID string) (*TraceDTO, error) {
	messages, err := uc.inboxReader.ListByTraceID(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("get inbox messages: %w", err)
	}

	dto := &TraceDTO{
		TraceID: traceID,
		Inbox:   messages,
		Outbox:  []*outbox.Event{},
	}
	if dto.Inbox == nil {
		dto.Inbox = []*inbox.Message{}
	}

	if uc.outbox != nil {
		events, err := uc.outbox.ListByCorrelationID(ctx, traceID)
		if err != nil {
			return nil, fmt.Errorf("get outbox events: %w", err)
		}
		if events != nil {
			dto.Outbox = events
		}
	}

	return dto, nil
}
