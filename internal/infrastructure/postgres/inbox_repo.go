package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

const messageColumns = `id, topic, COALESCE(trace_id, ''), event_type, payload, is_processed, created_at, updated_at`

type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

// InsertIfAbsent returns true if the message was saved (is new), false if a
// row with the same id already existed.
func (r *InboxRepository) InsertIfAbsent(ctx context.Context, msg *inbox.Message) (bool, error) {
	const sql = `
		INSERT INTO message_inbox (id, topic, trace_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := executor(ctx, r.pool).Exec(ctx, sql,
		msg.ID, msg.Topic, nullIfEmpty(msg.TraceID), msg.EventType, msg.Payload)
	if err != nil {
		return false, fmt.Errorf("insert inbox message: %w", classifyInsertError(err))
	}

	return tag.RowsAffected() > 0, nil
}

// classifyInsertError marks data exceptions (SQLSTATE class 22, e.g. 22021
// for NUL bytes or invalid UTF-8) as permanent.
func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "22" {
		return fmt.Errorf("%w: %w", inbox.ErrInvalidMessage, err)
	}
	return err
}

func (r *InboxRepository) ClaimNextUnprocessed(ctx context.Context) (*inbox.Message, error) {
	const sql = `
		SELECT ` + messageColumns + `
		FROM message_inbox
		WHERE is_processed = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	tx := GetTx(ctx)
	if tx == nil {
		return nil, inbox.ErrTxRequired
	}

	msg, err := scanMessage(tx.QueryRow(ctx, sql))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, inbox.ErrNoMessages
	}
	if err != nil {
		return nil, fmt.Errorf("claim inbox message: %w", err)
	}

	return msg, nil
}

func (r *InboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE message_inbox
		SET is_processed = TRUE, updated_at = clock_timestamp()
		WHERE id = ANY($1) AND is_processed = FALSE
	`

	if len(ids) == 0 {
		return nil
	}

	if _, err := executor(ctx, r.pool).Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark inbox messages processed: %w", err)
	}
	return nil
}

func (r *InboxRepository) Get(ctx context.Context, id string) (*inbox.Message, error) {
	const sql = `SELECT ` + messageColumns + ` FROM message_inbox WHERE id = $1`

	msg, err := scanMessage(executor(ctx, r.pool).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, inbox.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inbox message: %w", err)
	}
	return msg, nil
}

func (r *InboxRepository) Stats(ctx context.Context) (*inbox.Stats, error) {
	const sql = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_processed = FALSE),
			COUNT(*) FILTER (WHERE is_processed = TRUE),
			MIN(created_at) FILTER (WHERE is_processed = FALSE)
		FROM message_inbox
	`

	var s inbox.Stats
	if err := executor(ctx, r.pool).QueryRow(ctx, sql).Scan(&s.Total, &s.Pending, &s.Processed, &s.OldestPendingAt); err != nil {
		return nil, fmt.Errorf("inbox stats: %w", err)
	}
	return &s, nil
}

func (r *InboxRepository) ListPending(ctx context.Context, limit int) ([]*inbox.Message, error) {
	const sql = `
		SELECT ` + messageColumns + `
		FROM message_inbox
		WHERE is_processed = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`
	return r.list(ctx, sql, limit)
}

func (r *InboxRepository) ListByTraceID(ctx context.Context, traceID string) ([]*inbox.Message, error) {
	const sql = `
		SELECT ` + messageColumns + `
		FROM message_inbox
		WHERE trace_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, sql, traceID)
}

func (r *InboxRepository) list(ctx context.Context, sql string, args ...any) ([]*inbox.Message, error) {
	rows, err := executor(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query inbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*inbox.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inbox message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbox messages: %w", err)
	}

	return messages, nil
}

func scanMessage(row pgx.Row) (*inbox.Message, error) {
	m := &inbox.Message{}
	if err := row.Scan(&m.ID, &m.Topic, &m.TraceID, &m.EventType, &m.Payload, &m.IsProcessed, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m, nil
}
