package order

import (
	"context"
	"errors"
	"time"
)

const StatusAccepted = "ACCEPTED"

var ErrNotFound = errors.New("order not found")

// Order is the projection maintained by the order.created handler.
type Order struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	TotalAmount     float64   `json:"total_amount"`
	SourceMessageID string    `json:"source_message_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Repository interface {
	Upsert(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}
