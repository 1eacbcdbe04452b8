package worker

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultMaxBackoff    = 30 * time.Second
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultWorkers       = 1
	defaultRelayBatch    = 10
	defaultRelayInterval = 2 * time.Second
	defaultStaleAfter    = 5 * time.Minute

	tracerName = "github.com/radugaboost/message-inbox/internal/worker"
)

// ProcessorConfig defines how a Processor polls and dispatches messages.
type ProcessorConfig struct {
	PollInterval   time.Duration
	MaxBackoff     time.Duration
	Workers        int
	HandlerTimeout time.Duration
	Unrouted       HandlerFunc
	Logger         *slog.Logger
	Metrics        Metrics
	Tracer         trace.Tracer
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxBackoff < c.PollInterval {
		c.MaxBackoff = max(defaultMaxBackoff, c.PollInterval)
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	return c
}

// ProcessorOption configures Processor behavior.
type ProcessorOption func(*ProcessorConfig)

// WithPollInterval sets the sleep between polls that found no message.
func WithPollInterval(d time.Duration) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.PollInterval = d
	}
}

// WithMaxBackoff caps the backoff applied after storage errors.
func WithMaxBackoff(d time.Duration) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.MaxBackoff = d
	}
}

// WithWorkers sets the number of concurrent polling loops.
func WithWorkers(n int) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Workers = n
	}
}

// WithHandlerTimeout bounds a single handler invocation.
func WithHandlerTimeout(d time.Duration) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.HandlerTimeout = d
	}
}

// WithUnroutedHandler sets the handler invoked for messages whose event type
// has no route, e.g. to dead-letter them. Without it such messages are
// dropped. Either way they are marked processed.
func WithUnroutedHandler(h HandlerFunc) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Unrouted = h
	}
}

func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Logger = l
	}
}

func WithProcessorMetrics(m Metrics) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Metrics = m
	}
}

func WithProcessorTracer(t trace.Tracer) ProcessorOption {
	return func(c *ProcessorConfig) {
		c.Tracer = t
	}
}

// WriterConfig defines how a Writer persists broker messages.
type WriterConfig struct {
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	Dedup        Dedup
	Logger       *slog.Logger
	Metrics      Metrics
	Tracer       trace.Tracer
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.MaxBackoff < c.RetryBackoff {
		c.MaxBackoff = max(defaultMaxBackoff, c.RetryBackoff)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	return c
}

// WriterOption configures Writer behavior.
type WriterOption func(*WriterConfig)

// WithRetryBackoff sets the initial delay before retrying a failed write.
func WithRetryBackoff(d time.Duration) WriterOption {
	return func(c *WriterConfig) {
		c.RetryBackoff = d
	}
}

// WithWriterMaxBackoff caps the delay between write retries.
func WithWriterMaxBackoff(d time.Duration) WriterOption {
	return func(c *WriterConfig) {
		c.MaxBackoff = d
	}
}

// WithDedup sets a fast-path cache consulted before touching the store.
func WithDedup(d Dedup) WriterOption {
	return func(c *WriterConfig) {
		c.Dedup = d
	}
}

func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(c *WriterConfig) {
		c.Logger = l
	}
}

func WithWriterMetrics(m Metrics) WriterOption {
	return func(c *WriterConfig) {
		c.Metrics = m
	}
}

func WithWriterTracer(t trace.Tracer) WriterOption {
	return func(c *WriterConfig) {
		c.Tracer = t
	}
}

// RelayConfig defines how the outbox relay polls and publishes events.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	StaleAfter   time.Duration
	Logger       *slog.Logger
	Metrics      Metrics
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultRelayInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultRelayBatch
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	return c
}

// RelayOption configures the outbox relay.
type RelayOption func(*RelayConfig)

func WithRelayInterval(d time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PollInterval = d
	}
}

func WithRelayBatchSize(n int) RelayOption {
	return func(c *RelayConfig) {
		c.BatchSize = n
	}
}

// WithStaleAfter sets how long an event may stay in processing before the
// relay hands it back to the queue.
func WithStaleAfter(d time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.StaleAfter = d
	}
}

func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(c *RelayConfig) {
		c.Logger = l
	}
}

func WithRelayMetrics(m Metrics) RelayOption {
	return func(c *RelayConfig) {
		c.Metrics = m
	}
}
