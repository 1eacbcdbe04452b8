package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/radugaboost/message-inbox/internal/domain/order"
	"github.com/radugaboost/message-inbox/internal/domain/outbox"
	"github.com/radugaboost/message-inbox/internal/worker"
)

const (
	EventOrderCreated  = "order.created"
	EventOrderAccepted = "order.accepted"
)

var ErrInvalidOrder = errors.New("invalid order")

type OrderCreated struct {
	OrderID     int64   `json:"order_id"`
	UserID      string  `json:"user_id"`
	TotalAmount float64 `json:"total_amount"`
}

type OrderAccepted struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Orders keeps the orders projection and announces accepted orders through
// the outbox. Both writes go through the claiming transaction.
type Orders struct {
	orders   order.Repository
	outbox   outbox.Writer
	producer string
	now      func() time.Time
}

func NewOrders(orders order.Repository, outboxWriter outbox.Writer, producer string) *Orders {
	return &Orders{
		orders:   orders,
		outbox:   outboxWriter,
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *Orders) Register(r *worker.Router) {
	worker.Handle(r, EventOrderCreated, h.HandleCreated)
}

func (h *Orders) HandleCreated(ctx context.Context, meta worker.Meta, evt OrderCreated) error {
	if evt.OrderID <= 0 {
		return fmt.Errorf("%w: order_id must be positive, got %d", ErrInvalidOrder, evt.OrderID)
	}

	o := &order.Order{
		ID:              strconv.FormatInt(evt.OrderID, 10),
		UserID:          evt.UserID,
		Status:          order.StatusAccepted,
		TotalAmount:     evt.TotalAmount,
		SourceMessageID: meta.MessageID,
	}
	if err := h.orders.Upsert(ctx, o); err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}

	now := h.now()
	payload, err := json.Marshal(OrderAccepted{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		AcceptedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", EventOrderAccepted, err)
	}

	return h.outbox.Create(ctx, &outbox.Event{
		ID:            uuid.NewString(),
		EventType:     EventOrderAccepted,
		Payload:       payload,
		Status:        outbox.StatusNew,
		CorrelationID: meta.TraceID,
		CausationID:   meta.MessageID,
		Producer:      h.producer,
		CreatedAt:     now,
	})
}
