package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radugaboost/message-inbox/internal/domain/outbox"
)

const outboxColumns = `
	id,
	event_type,
	payload,
	status,
	COALESCE(correlation_id, ''),
	COALESCE(causation_id, ''),
	producer,
	created_at,
	updated_at`

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Create records e on the context transaction when there is one, so the event
// commits together with the change that caused it.
func (r *OutboxRepository) Create(ctx context.Context, e *outbox.Event) error {
	const sql = `
		INSERT INTO outbox (id, event_type, payload, status, correlation_id, causation_id, producer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	status := e.Status
	if status == "" {
		status = outbox.StatusNew
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := executor(ctx, r.pool).Exec(ctx, sql,
		e.ID, e.EventType, e.Payload, status, nullIfEmpty(e.CorrelationID), nullIfEmpty(e.CausationID), nullIfEmptyDefault(e.Producer, "unknown"), createdAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// FetchBatch moves up to limit new events to processing and returns them.
func (r *OutboxRepository) FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error) {
	const sql = `
		WITH claimed_events AS (
			SELECT id
			FROM outbox
			WHERE status = 'new'
			ORDER BY created_at ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed_events)
		RETURNING ` + outboxColumns

	return r.list(ctx, sql, limit)
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'processed', updated_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := executor(ctx, r.pool).Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailed hands events back to the queue for the next batch.
func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'new', updated_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := executor(ctx, r.pool).Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ReleaseStale resets events stuck in processing for longer than olderThan,
// which happens when a relay dies between FetchBatch and MarkProcessed.
func (r *OutboxRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const sql = `
		UPDATE outbox
		SET status = 'new', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < NOW() - make_interval(secs => $1)
	`
	tag, err := executor(ctx, r.pool).Exec(ctx, sql, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("release stale events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error) {
	const sql = `
		SELECT ` + outboxColumns + `
		FROM outbox
		WHERE correlation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, sql, correlationID)
}

func (r *OutboxRepository) list(ctx context.Context, sql string, args ...any) ([]*outbox.Event, error) {
	rows, err := executor(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*outbox.Event
	for rows.Next() {
		e := &outbox.Event{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Status, &e.CorrelationID, &e.CausationID, &e.Producer, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}

	return events, nil
}

func nullIfEmptyDefault(s string, def string) any {
	if s == "" {
		return def
	}
	return s
}
