package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radugaboost/message-inbox/internal/domain/order"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Upsert(ctx context.Context, o *order.Order) error {
	const sql = `
		INSERT INTO orders (id, user_id, status, total_amount, source_message_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			total_amount = EXCLUDED.total_amount,
			source_message_id = EXCLUDED.source_message_id,
			updated_at = NOW()
	`

	_, err := executor(ctx, r.pool).Exec(ctx, sql, o.ID, o.UserID, o.Status, o.TotalAmount, o.SourceMessageID)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	const sql = `
		SELECT id, user_id, status, total_amount::float8, source_message_id, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o order.Order
	err := executor(ctx, r.pool).QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.SourceMessageID, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	return &o, nil
}
