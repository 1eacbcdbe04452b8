package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radugaboost/message-inbox/internal/application/factories/infrastructure"
	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/infrastructure/kafka"
	"github.com/radugaboost/message-inbox/internal/infrastructure/redis"
	applog "github.com/radugaboost/message-inbox/internal/logger"
	"github.com/radugaboost/message-inbox/internal/metrics"
	"github.com/radugaboost/message-inbox/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := applog.New(cfg.Log)
	if err != nil {
		slog.Error("failed to init logger", "error", err)
		os.Exit(1)
	}
	logger = logger.With("component", "writer")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	metrics.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logger)

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	inboxRepo, _, err := infraFactory.Inbox(ctx)
	if err != nil {
		logger.Error("failed to connect to storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	opts := []worker.WriterOption{
		worker.WithRetryBackoff(cfg.Inbox.RetryBackoff),
		worker.WithWriterMaxBackoff(cfg.Inbox.MaxBackoff),
		worker.WithWriterLogger(logger),
		worker.WithWriterMetrics(m),
	}

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		opts = append(opts, worker.WithDedup(redis.NewSeenCache(redisClient, cfg.Redis.SeenTTL)))
	}

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topics:      cfg.Kafka.Topics,
		GroupID:     cfg.Kafka.GroupID,
		StartOffset: cfg.Kafka.StartOffset,
	})
	defer consumer.Close()

	logger.Info("Inbox writer started", "topics", cfg.Kafka.Topics, "group_id", cfg.Kafka.GroupID, "driver", cfg.Storage.Driver)

	w := worker.NewWriter(consumer, inboxRepo, opts...)
	if err := w.Run(ctx); err != nil {
		logger.Error("writer stopped with error", "error", err)
	}

	logger.Info("writer exited")
}
