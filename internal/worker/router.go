package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Meta describes the inbox message being handled. It is passed explicitly to
// every handler so correlation data never lives in global state.
type Meta struct {
	MessageID string
	TraceID   string
	Topic     string
	EventType string
	CreatedAt time.Time
}

// DecodeFunc turns the stored payload into the value a handler expects.
type DecodeFunc func(payload string) (any, error)

// HandlerFunc processes one decoded payload. The context carries the
// transaction that claimed the message; writes made through it commit
// together with the processed flag.
type HandlerFunc func(ctx context.Context, meta Meta, payload any) error

// Route binds a decoder to a handler for one event type.
type Route struct {
	EventType string
	Decode    DecodeFunc
	Handler   HandlerFunc
}

// Router maps event types to routes.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Route
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Route)}
}

// Register binds decode and h to eventType. A later registration for the same
// event type replaces the earlier one. A nil decode passes the raw payload
// string through.
func (r *Router) Register(eventType string, decode DecodeFunc, h HandlerFunc) {
	if eventType == "" {
		panic("worker: empty event type")
	}
	if h == nil {
		panic(fmt.Sprintf("worker: nil handler for %q", eventType))
	}
	if decode == nil {
		decode = RawPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[eventType] = Route{EventType: eventType, Decode: decode, Handler: h}
}

// Handle registers fn for eventType with a JSON decoder for T.
func Handle[T any](r *Router, eventType string, fn func(ctx context.Context, meta Meta, payload T) error) {
	r.Register(eventType, DecodeJSON[T](), func(ctx context.Context, meta Meta, payload any) error {
		v, ok := payload.(T)
		if !ok {
			return fmt.Errorf("worker: payload for %q has type %T", eventType, payload)
		}
		return fn(ctx, meta, v)
	})
}

func (r *Router) Lookup(eventType string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[eventType]
	return route, ok
}

// EventTypes returns the registered event types in sorted order.
func (r *Router) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
