package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

const messageColumns = "id, topic, COALESCE(trace_id, ''), event_type, payload, is_processed, created_at, updated_at"

// Server errors for values the column can never hold.
const (
	errDataTooLong        = 1406
	errIncorrectStringVal = 1366
)

type InboxRepository struct {
	db *sql.DB
}

func NewInboxRepository(db *sql.DB) *InboxRepository {
	return &InboxRepository{db: db}
}

// InsertIfAbsent returns true if the message was saved. The no-op update
// leaves an existing row untouched and reports zero affected rows.
func (r *InboxRepository) InsertIfAbsent(ctx context.Context, msg *inbox.Message) (bool, error) {
	const query = "INSERT INTO message_inbox (id, topic, trace_id, event_type, payload) VALUES (?, ?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE id = id"

	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		msg.ID, msg.Topic, nullIfEmpty(msg.TraceID), msg.EventType, msg.Payload)
	if err != nil {
		return false, fmt.Errorf("insert inbox message: %w", classifyInsertError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert inbox message: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *InboxRepository) ClaimNextUnprocessed(ctx context.Context) (*inbox.Message, error) {
	const query = "SELECT " + messageColumns + " FROM message_inbox WHERE is_processed = FALSE " +
		"ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE SKIP LOCKED"

	tx := GetTx(ctx)
	if tx == nil {
		return nil, inbox.ErrTxRequired
	}

	msg, err := scanMessage(tx.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inbox.ErrNoMessages
	}
	if err != nil {
		return nil, fmt.Errorf("claim inbox message: %w", err)
	}
	return msg, nil
}

func (r *InboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE message_inbox SET is_processed = TRUE, updated_at = CURRENT_TIMESTAMP(6) WHERE is_processed = FALSE AND id IN (%s)",
		makePlaceholders(len(ids)),
	)
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark inbox messages processed: %w", err)
	}
	return nil
}

func (r *InboxRepository) Get(ctx context.Context, id string) (*inbox.Message, error) {
	const query = "SELECT " + messageColumns + " FROM message_inbox WHERE id = ?"

	msg, err := scanMessage(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inbox.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inbox message: %w", err)
	}
	return msg, nil
}

func (r *InboxRepository) Stats(ctx context.Context) (*inbox.Stats, error) {
	const query = "SELECT COUNT(*), " +
		"COALESCE(SUM(is_processed = FALSE), 0), " +
		"COALESCE(SUM(is_processed = TRUE), 0), " +
		"MIN(CASE WHEN is_processed = FALSE THEN created_at END) " +
		"FROM message_inbox"

	var (
		s      inbox.Stats
		oldest sql.NullTime
	)
	if err := executor(ctx, r.db).QueryRowContext(ctx, query).Scan(&s.Total, &s.Pending, &s.Processed, &oldest); err != nil {
		return nil, fmt.Errorf("inbox stats: %w", err)
	}
	if oldest.Valid {
		s.OldestPendingAt = &oldest.Time
	}
	return &s, nil
}

func (r *InboxRepository) ListPending(ctx context.Context, limit int) ([]*inbox.Message, error) {
	const query = "SELECT " + messageColumns + " FROM message_inbox WHERE is_processed = FALSE " +
		"ORDER BY created_at ASC, id ASC LIMIT ?"
	return r.list(ctx, query, limit)
}

func (r *InboxRepository) ListByTraceID(ctx context.Context, traceID string) ([]*inbox.Message, error) {
	const query = "SELECT " + messageColumns + " FROM message_inbox WHERE trace_id = ? " +
		"ORDER BY created_at ASC, id ASC"
	return r.list(ctx, query, traceID)
}

func (r *InboxRepository) list(ctx context.Context, query string, args ...any) ([]*inbox.Message, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*inbox.Message, error) {
	m := &inbox.Message{}
	if err := row.Scan(&m.ID, &m.Topic, &m.TraceID, &m.EventType, &m.Payload, &m.IsProcessed, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// makePlaceholders renders "?,?,?" for an IN list of n values.
func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func classifyInsertError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDataTooLong || myErr.Number == errIncorrectStringVal) {
		return fmt.Errorf("%w: %w", inbox.ErrInvalidMessage, err)
	}
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
