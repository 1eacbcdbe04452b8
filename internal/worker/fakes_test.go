package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/radugaboost/message-inbox/internal/domain/event"
	"github.com/radugaboost/message-inbox/internal/domain/inbox"
	"github.com/radugaboost/message-inbox/internal/domain/outbox"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTxKey struct{}

// memTx is a transaction against memStore. Writes are staged as ops and
// applied on commit; a savepoint truncates ops back to its mark.
type memTx struct {
	ops    []func()
	locked []string
	broken bool
}

var errConnClosed = errors.New("conn closed")

// memStore is an in-memory inbox with claim locks and staged writes.
type memStore struct {
	mu      sync.Mutex
	rows    []*inbox.Message
	byID    map[string]*inbox.Message
	locks   map[string]bool
	effects []string
	clock   time.Time

	insertErrs int
	maxIDLen   int
	markErrs   int
	claimErrs  int
	inserts    int
}

func newMemStore() *memStore {
	return &memStore{
		byID:  make(map[string]*inbox.Message),
		locks: make(map[string]bool),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) InsertIfAbsent(_ context.Context, msg *inbox.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts++
	if s.insertErrs > 0 {
		s.insertErrs--
		return false, errors.New("connection reset")
	}
	if s.maxIDLen > 0 && len(msg.ID) > s.maxIDLen {
		return false, fmt.Errorf("insert inbox message: %w: Error 1406: Data too long for column 'id'", inbox.ErrInvalidMessage)
	}
	if _, ok := s.byID[msg.ID]; ok {
		return false, nil
	}

	s.clock = s.clock.Add(time.Millisecond)
	row := *msg
	row.IsProcessed = false
	row.CreatedAt = s.clock
	row.UpdatedAt = s.clock
	s.rows = append(s.rows, &row)
	s.byID[row.ID] = &row
	return true, nil
}

func (s *memStore) ClaimNextUnprocessed(ctx context.Context) (*inbox.Message, error) {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return nil, inbox.ErrTxRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErrs > 0 {
		s.claimErrs--
		return nil, errors.New("too many connections")
	}

	for _, row := range s.rows {
		if row.IsProcessed || s.locks[row.ID] {
			continue
		}
		s.locks[row.ID] = true
		tx.locked = append(tx.locked, row.ID)
		cp := *row
		return &cp, nil
	}
	return nil, inbox.ErrNoMessages
}

func (s *memStore) MarkProcessed(ctx context.Context, ids []string) error {
	s.mu.Lock()
	if s.markErrs > 0 {
		s.markErrs--
		s.mu.Unlock()
		return errors.New("deadlock detected")
	}
	s.mu.Unlock()

	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok && tx.broken {
		return errConnClosed
	}

	apply := func() {
		for _, id := range ids {
			if row, ok := s.byID[id]; ok && !row.IsProcessed {
				s.clock = s.clock.Add(time.Millisecond)
				row.IsProcessed = true
				row.UpdatedAt = s.clock
			}
		}
	}

	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.ops = append(tx.ops, apply)
		return nil
	}
	s.mu.Lock()
	apply()
	s.mu.Unlock()
	return nil
}

// breakConn simulates the driver closing the connection under the context
// transaction.
func (s *memStore) breakConn(ctx context.Context) {
	ctx.Value(memTxKey{}).(*memTx).broken = true
}

// recordEffect stages a handler side effect in the context transaction.
func (s *memStore) recordEffect(ctx context.Context, effect string) {
	tx := ctx.Value(memTxKey{}).(*memTx)
	tx.ops = append(tx.ops, func() { s.effects = append(s.effects, effect) })
}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		mark := len(outer.ops)
		if err := fn(ctx); err != nil {
			if outer.broken {
				return errors.Join(err, fmt.Errorf("rollback savepoint: %w", errConnClosed))
			}
			outer.ops = outer.ops[:mark]
			return err
		}
		if outer.broken {
			return fmt.Errorf("release savepoint: %w", errConnClosed)
		}
		return nil
	}

	tx := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err == nil && tx.broken {
		err = fmt.Errorf("commit transaction: %w", errConnClosed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		for _, op := range tx.ops {
			op()
		}
	}
	for _, id := range tx.locked {
		delete(s.locks, id)
	}
	return err
}

func (s *memStore) get(id string) inbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.byID[id]
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) processedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.IsProcessed {
			n++
		}
	}
	return n
}

func (s *memStore) committedEffects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.effects...)
}

func (s *memStore) add(t interface{ Helper() }, id, eventType, payload string) {
	t.Helper()
	_, _ = s.InsertIfAbsent(context.Background(), &inbox.Message{
		ID:        id,
		Topic:     "orders",
		EventType: eventType,
		Payload:   payload,
	})
}

// recordingMetrics counts calls by name.
type recordingMetrics struct {
	NopMetrics
	mu       sync.Mutex
	dropped  map[string]int
	dupes    int
	written  int
	handled  map[Outcome]int
	storeErr int
	pubOK    int
	pubErr   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{dropped: map[string]int{}, handled: map[Outcome]int{}}
}

func (m *recordingMetrics) MessageDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

func (m *recordingMetrics) MessageDuplicate(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dupes++
}

func (m *recordingMetrics) MessageWritten(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written++
}

func (m *recordingMetrics) MessageHandled(_ string, o Outcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handled[o]++
}

func (m *recordingMetrics) StoreError(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErr++
}

func (m *recordingMetrics) EventsPublished(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubOK += n
}

func (m *recordingMetrics) PublishErrors(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubErr += n
}

// queueSource replays deliveries and then blocks until ctx is done.
type queueSource struct {
	mu        sync.Mutex
	queue     []event.Delivery
	committed []int64
	fetchErrs int
}

func (q *queueSource) Fetch(ctx context.Context) (event.Delivery, error) {
	q.mu.Lock()
	if q.fetchErrs > 0 {
		q.fetchErrs--
		q.mu.Unlock()
		return event.Delivery{}, errors.New("broker unavailable")
	}
	if len(q.queue) > 0 {
		d := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		return d, nil
	}
	q.mu.Unlock()

	<-ctx.Done()
	return event.Delivery{}, ctx.Err()
}

func (q *queueSource) Commit(_ context.Context, d event.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.committed = append(q.committed, d.Offset)
	return nil
}

func (q *queueSource) commits() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.committed...)
}

// memOutbox is an in-memory outbox keyed by status.
type memOutbox struct {
	mu         sync.Mutex
	events     []*outbox.Event
	released   time.Duration
	releaseN   int64
	fetchErr   error
	markErr    error
	failed     []string
	fetchLimit int
}

func (o *memOutbox) FetchBatch(_ context.Context, limit int) ([]*outbox.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.fetchLimit = limit
	if o.fetchErr != nil {
		return nil, o.fetchErr
	}

	var batch []*outbox.Event
	for _, e := range o.events {
		if len(batch) == limit {
			break
		}
		if e.Status == outbox.StatusNew {
			e.Status = outbox.StatusProcessing
			batch = append(batch, e)
		}
	}
	return batch, nil
}

func (o *memOutbox) MarkProcessed(_ context.Context, ids []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.markErr != nil {
		return o.markErr
	}
	o.setStatus(ids, outbox.StatusProcessed)
	return nil
}

func (o *memOutbox) MarkFailed(_ context.Context, ids []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.failed = append(o.failed, ids...)
	o.setStatus(ids, outbox.StatusNew)
	return nil
}

func (o *memOutbox) ReleaseStale(_ context.Context, olderThan time.Duration) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.released = olderThan
	return o.releaseN, nil
}

func (o *memOutbox) setStatus(ids []string, status string) {
	for _, id := range ids {
		for _, e := range o.events {
			if e.ID == id {
				e.Status = status
			}
		}
	}
}

func (o *memOutbox) status(id string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.events {
		if e.ID == id {
			return e.Status
		}
	}
	return ""
}

type published struct {
	key     string
	headers map[string]string
	value   []byte
}

// fakePublisher records messages and fails for keys listed in failKeys.
type fakePublisher struct {
	mu       sync.Mutex
	sent     []published
	failKeys map[string]bool
	deadline bool
}

func (p *fakePublisher) Publish(ctx context.Context, key []byte, headers map[string]string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, p.deadline = ctx.Deadline()
	if p.failKeys[string(key)] {
		return errors.New("leader not available")
	}
	p.sent = append(p.sent, published{key: string(key), headers: headers, value: value})
	return nil
}
