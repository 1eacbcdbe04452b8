package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
	"github.com/radugaboost/message-inbox/internal/domain/outbox"
	"github.com/radugaboost/message-inbox/internal/usecase"
)

type stubReader struct {
	messages []*inbox.Message
	err      error
	limit    int
}

func (s *stubReader) Get(_ context.Context, id string) (*inbox.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, inbox.ErrNotFound
}

func (s *stubReader) Stats(context.Context) (*inbox.Stats, error) {
	if s.err != nil {
		return nil, s.err
	}
	st := &inbox.Stats{Total: int64(len(s.messages))}
	for _, m := range s.messages {
		if m.IsProcessed {
			st.Processed++
		} else {
			st.Pending++
		}
	}
	return st, nil
}

func (s *stubReader) ListPending(_ context.Context, limit int) ([]*inbox.Message, error) {
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	var out []*inbox.Message
	for _, m := range s.messages {
		if !m.IsProcessed {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubReader) ListByTraceID(_ context.Context, traceID string) ([]*inbox.Message, error) {
	var out []*inbox.Message
	for _, m := range s.messages {
		if m.TraceID == traceID {
			out = append(out, m)
		}
	}
	return out, nil
}

type stubOutbox struct{}

func (stubOutbox) ListByCorrelationID(_ context.Context, id string) ([]*outbox.Event, error) {
	return []*outbox.Event{{ID: "e1", EventType: "order.accepted", CorrelationID: id, Status: outbox.StatusNew}}, nil
}

func newTestServer(t *testing.T, reader *stubReader) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(
		usecase.NewGetMessage(nil, reader, time.Second),
		usecase.NewGetStats(reader),
		usecase.NewListPending(reader),
		usecase.NewGetTrace(reader, stubOutbox{}),
		logger,
	)
	srv := httptest.NewServer(NewRouter(h, prometheus.NewRegistry()))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func fixtureMessages() []*inbox.Message {
	return []*inbox.Message{
		{ID: "m1", Topic: "orders", TraceID: "t1", EventType: "order.created", Payload: `{"order_id":1}`, IsProcessed: true},
		{ID: "m2", Topic: "orders", TraceID: "t1", EventType: "order.created", Payload: `{"order_id":2}`},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubReader{})

	resp, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestGetMessage(t *testing.T) {
	srv := newTestServer(t, &stubReader{messages: fixtureMessages()})

	resp, body := get(t, srv.URL+"/inbox/messages/m1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg inbox.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.TraceID)
	assert.True(t, msg.IsProcessed)
}

func TestGetMessageNotFound(t *testing.T) {
	srv := newTestServer(t, &stubReader{})

	resp, _ := get(t, srv.URL+"/inbox/messages/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStoreFailureIsInternalError(t *testing.T) {
	srv := newTestServer(t, &stubReader{err: errors.New("connection refused")})

	resp, body := get(t, srv.URL+"/inbox/stats")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "connection refused")
}

func TestStats(t *testing.T) {
	srv := newTestServer(t, &stubReader{messages: fixtureMessages()})

	resp, body := get(t, srv.URL+"/inbox/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats usecase.StatsDTO
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Processed)
}

func TestListPending(t *testing.T) {
	reader := &stubReader{messages: fixtureMessages()}
	srv := newTestServer(t, reader)

	resp, body := get(t, srv.URL+"/inbox/pending?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []inbox.Message
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "m2", messages[0].ID)
	assert.Equal(t, 5, reader.limit)
}

func TestListPendingRejectsBadLimit(t *testing.T) {
	srv := newTestServer(t, &stubReader{})

	resp, _ := get(t, srv.URL+"/inbox/pending?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTrace(t *testing.T) {
	srv := newTestServer(t, &stubReader{messages: fixtureMessages()})

	resp, body := get(t, srv.URL+"/traces/t1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var trace usecase.TraceDTO
	require.NoError(t, json.Unmarshal(body, &trace))
	assert.Equal(t, "t1", trace.TraceID)
	assert.Len(t, trace.Inbox, 2)
	require.Len(t, trace.Outbox, 1)
	assert.Equal(t, "order.accepted", trace.Outbox[0].EventType)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubReader{})

	resp, _ := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
