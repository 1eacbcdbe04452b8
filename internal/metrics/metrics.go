package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/radugaboost/message-inbox/internal/worker"
)

const namespace = "inbox"

// Prometheus records writer, processor and relay telemetry.
type Prometheus struct {
	received        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	written         *prometheus.CounterVec
	handled         *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	eventsPublished prometheus.Counter
	publishErrors   prometheus.Counter
}

var _ worker.Metrics = (*Prometheus)(nil)

// New registers the collectors on reg. Use prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)

	return &Prometheus{
		received: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "The total number of broker messages received by the writer",
		}, []string{"topic"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "The total number of malformed broker messages dropped by the writer",
		}, []string{"reason"}),
		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "The total number of redelivered messages recognised as duplicates",
		}, []string{"topic"}),
		written: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_written_total",
			Help:      "The total number of new messages written to the inbox",
		}, []string{"topic", "event_type"}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "The total number of inbox messages processed",
		}, []string{"event_type", "outcome"}),
		handleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent handling one inbox message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		storeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "The total number of failed storage operations",
		}, []string{"op"}),
		eventsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "The total number of outbox events published to Kafka",
		}),
		publishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_errors_total",
			Help:      "The total number of failed outbox publish attempts",
		}),
	}
}

func (p *Prometheus) MessageReceived(topic string) {
	p.received.WithLabelValues(topic).Inc()
}

func (p *Prometheus) MessageDropped(reason string) {
	p.dropped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) MessageDuplicate(topic string) {
	p.duplicates.WithLabelValues(topic).Inc()
}

func (p *Prometheus) MessageWritten(topic, eventType string) {
	p.written.WithLabelValues(topic, eventType).Inc()
}

func (p *Prometheus) MessageHandled(eventType string, outcome worker.Outcome, duration time.Duration) {
	p.handled.WithLabelValues(eventType, string(outcome)).Inc()
	p.handleDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (p *Prometheus) StoreError(op string) {
	p.storeErrors.WithLabelValues(op).Inc()
}

func (p *Prometheus) EventsPublished(count int) {
	p.eventsPublished.Add(float64(count))
}

func (p *Prometheus) PublishErrors(count int) {
	p.publishErrors.Add(float64(count))
}

