package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
	"github.com/radugaboost/message-inbox/internal/domain/outbox"
)

type fakeReader struct {
	messages  map[string]*inbox.Message
	stats     *inbox.Stats
	err       error
	lastLimit int
	getCalls  int
}

func (f *fakeReader) Get(_ context.Context, id string) (*inbox.Message, error) {
	f.getCalls++
	if f.err != nil {
		return nil, f.err
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, inbox.ErrNotFound
	}
	return msg, nil
}

func (f *fakeReader) Stats(context.Context) (*inbox.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func (f *fakeReader) ListPending(_ context.Context, limit int) ([]*inbox.Message, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []*inbox.Message
	for _, m := range f.messages {
		if !m.IsProcessed {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeReader) ListByTraceID(_ context.Context, traceID string) ([]*inbox.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*inbox.Message
	for _, m := range f.messages {
		if m.TraceID == traceID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeOutbox struct {
	events []*outbox.Event
	err    error
}

func (f *fakeOutbox) ListByCorrelationID(_ context.Context, correlationID string) ([]*outbox.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*outbox.Event
	for _, e := range f.events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestGetMessage(t *testing.T) {
	reader := &fakeReader{messages: map[string]*inbox.Message{
		"m1": {ID: "m1", EventType: "order.created", Payload: "{}"},
	}}
	uc := NewGetMessage(nil, reader, 0)

	msg, err := uc.Execute(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "order.created", msg.EventType)

	_, err = uc.Execute(context.Background(), "missing")
	require.ErrorIs(t, err, inbox.ErrNotFound)
}

func TestGetStatsComputesOldestPendingAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-90 * time.Second)
	reader := &fakeReader{stats: &inbox.Stats{Total: 3, Pending: 1, Processed: 2, OldestPendingAt: &oldest}}
	uc := NewGetStats(reader)
	uc.now = func() time.Time { return now }

	dto, err := uc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), dto.Total)
	assert.Equal(t, int64(1), dto.Pending)
	assert.Equal(t, "1m30s", dto.OldestPendingAge)
}

func TestGetStatsWithoutPending(t *testing.T) {
	reader := &fakeReader{stats: &inbox.Stats{Total: 2, Processed: 2}}

	dto, err := NewGetStats(reader).Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dto.OldestPendingAge)
}

func TestListPendingClampsLimit(t *testing.T) {
	reader := &fakeReader{messages: map[string]*inbox.Message{}}
	uc := NewListPending(reader)

	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultPendingLimit},
		{in: -1, want: DefaultPendingLimit},
		{in: 10, want: 10},
		{in: 10_000, want: MaxPendingLimit},
	}
	for _, tt := range tests {
		messages, err := uc.Execute(context.Background(), tt.in)
		require.NoError(t, err)
		assert.NotNil(t, messages)
		assert.Equal(t, tt.want, reader.lastLimit)
	}
}

func TestGetTrace(t *testing.T) {
	reader := &fakeReader{messages: map[string]*inbox.Message{
		"m1": {ID: "m1", TraceID: "t1"},
		"m2": {ID: "m2", TraceID: "t2"},
	}}
	ob := &fakeOutbox{events: []*outbox.Event{
		{ID: "e1", CorrelationID: "t1"},
		{ID: "e2", CorrelationID: "t2"},
	}}

	dto, err := NewGetTrace(reader, ob).Execute(context.Background(), "t1")
	require.NoError(t, err)

	require.Len(t, dto.Inbox, 1)
	assert.Equal(t, "m1", dto.Inbox[0].ID)
	require.Len(t, dto.Outbox, 1)
	assert.Equal(t, "e1", dto.Outbox[0].ID)
}

func TestGetTraceWithoutOutbox(t *testing.T) {
	reader := &fakeReader{messages: map[string]*inbox.Message{}}

	dto, err := NewGetTrace(reader, nil).Execute(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, dto.Inbox)
	assert.NotNil(t, dto.Outbox)
}

func TestGetTracePropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	reader := &fakeReader{messages: map[string]*inbox.Message{}}

	_, err := NewGetTrace(reader, &fakeOutbox{err: boom}).Execute(context.Background(), "t1")
	require.ErrorIs(t, err, boom)
}
