package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

type fakeReader struct {
	messages []*inbox.Message
}

func (f *fakeReader) Get(_ context.Context, id string) (*inbox.Message, error) {
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, inbox.ErrNotFound
}

func (f *fakeReader) Stats(context.Context) (*inbox.Stats, error) {
	s := &inbox.Stats{Total: int64(len(f.messages))}
	for _, m := range f.messages {
		if m.IsProcessed {
			s.Processed++
		} else {
			s.Pending++
		}
	}
	return s, nil
}

func (f *fakeReader) ListPending(_ context.Context, limit int) ([]*inbox.Message, error) {
	var out []*inbox.Message
	for _, m := range f.messages {
		if !m.IsProcessed && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeReader) ListByTraceID(context.Context, string) ([]*inbox.Message, error) {
	return nil, nil
}

type fakeOutbox struct {
	olderThan time.Duration
}

func (f *fakeOutbox) ReleaseStale(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 2, nil
}

type harness struct {
	reader  *fakeReader
	outbox  *fakeOutbox
	applied bool
	closed  bool
}

func (h *harness) connect(context.Context, *config.Config) (*Deps, error) {
	deps := &Deps{
		Reader: h.reader,
		ApplySchema: func(context.Context) error {
			h.applied = true
			return nil
		},
		Close: func() { h.closed = true },
	}
	if h.outbox != nil {
		deps.Outbox = h.outbox
	}
	return deps, nil
}

func newHarness() *harness {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &harness{
		reader: &fakeReader{messages: []*inbox.Message{
			{ID: "m1", Topic: "orders", EventType: "order.created", Payload: `{"order_id":1}`, IsProcessed: true, CreatedAt: created},
			{ID: "m2", Topic: "orders", TraceID: "t2", EventType: "order.created", Payload: `{"order_id":2}`, CreatedAt: created},
		}},
		outbox: &fakeOutbox{},
	}
}

func run(t *testing.T, h *harness, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(h.connect)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(newHarness().connect)
	for _, name := range []string{"stats", "pending", "show", "schema", "config", "outbox"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, newHarness(), "--format", "xml", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestStats(t *testing.T) {
	h := newHarness()

	out, err := run(t, h, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total:     2")
	assert.Contains(t, out, "pending:   1")
	assert.True(t, h.closed)
}

func TestPendingJSON(t *testing.T) {
	out, err := run(t, newHarness(), "--format", "json", "pending", "--limit", "5")
	require.NoError(t, err)

	var messages []inbox.Message
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "m2", messages[0].ID)
}

func TestPendingTable(t *testing.T) {
	out, err := run(t, newHarness(), "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "EVENT TYPE")
	assert.Contains(t, out, "m2")
	assert.NotContains(t, out, "m1")
}

func TestShow(t *testing.T) {
	out, err := run(t, newHarness(), "show", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "processed:    true")
	assert.Contains(t, out, `{"order_id":1}`)

	_, err = run(t, newHarness(), "show", "missing")
	require.ErrorIs(t, err, inbox.ErrNotFound)
}

func TestSchemaApply(t *testing.T) {
	h := newHarness()

	out, err := run(t, h, "schema", "apply")
	require.NoError(t, err)
	assert.True(t, h.applied)
	assert.Contains(t, out, "schema applied (postgres)")
}

func TestSchemaPrint(t *testing.T) {
	out, err := run(t, newHarness(), "schema", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS message_inbox")
}

func TestConfigPrint(t *testing.T) {
	out, err := run(t, newHarness(), "config", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "storage:")
	assert.Contains(t, out, "driver: postgres")
}

func TestOutboxReleaseStale(t *testing.T) {
	h := newHarness()

	out, err := run(t, h, "outbox", "release-stale", "--older-than", "10m")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, h.outbox.olderThan)
	assert.Contains(t, out, "released 2 events")
}

func TestOutboxReleaseStaleWithoutOutbox(t *testing.T) {
	h := newHarness()
	h.outbox = nil

	_, err := run(t, h, "outbox", "release-stale")
	require.ErrorIs(t, err, ErrNoOutbox)
}
