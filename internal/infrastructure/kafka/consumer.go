package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radugaboost/message-inbox/internal/domain/event"
)

type ConsumerConfig struct {
	Brokers []string
	Topics  []string
	GroupID string
	// StartOffset applies when the group has no committed offset yet:
	// "earliest" (default) or "latest".
	StartOffset string
}

// Consumer reads from a consumer group and commits offsets explicitly.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	startOffset := kafka.FirstOffset
	if strings.EqualFold(strings.TrimSpace(cfg.StartOffset), "latest") {
		startOffset = kafka.LastOffset
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: false,
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
		StartOffset: startOffset,
	})
	return &Consumer{reader: r}
}

// Fetch blocks until the next message is available.
func (c *Consumer) Fetch(ctx context.Context) (event.Delivery, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return event.Delivery{}, fmt.Errorf("fetch message: %w", err)
	}
	return toDelivery(m), nil
}

func (c *Consumer) Commit(ctx context.Context, d event.Delivery) error {
	err := c.reader.CommitMessages(ctx, kafka.Message{
		Topic:     d.Topic,
		Partition: d.Partition,
		Offset:    d.Offset,
	})
	if err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func toDelivery(m kafka.Message) event.Delivery {
	return event.Delivery{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Headers:   headersToMap(m.Headers),
		Value:     m.Value,
		Time:      m.Time,
	}
}

// headersToMap keeps the last value of a repeated header.
func headersToMap(hs []kafka.Header) map[string]string {
	if len(hs) == 0 {
		return nil
	}
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}

func headersFromMap(m map[string]string) []kafka.Header {
	if len(m) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
