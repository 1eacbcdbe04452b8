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
	"github.com/radugaboost/message-inbox/internal/infrastructure/postgres"
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
	logger = logger.With("component", "relay")
	slog.SetDefault(logger)

	if cfg.Storage.Driver != config.DriverPostgres {
		logger.Error("the outbox relay requires the postgres driver", "driver", cfg.Storage.Driver)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	metrics.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logger)

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	kafkaProd := kafka.NewProducer(kafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OutboxTopic,
	})
	defer kafkaProd.Close()

	logger.Info("Outbox relay publishing", "topic", kafkaProd.Topic())

	r := worker.NewRelay(postgres.NewOutboxRepository(pgPool), kafkaProd,
		worker.WithRelayInterval(cfg.Relay.PollInterval),
		worker.WithRelayBatchSize(cfg.Relay.BatchSize),
		worker.WithStaleAfter(cfg.Relay.StaleAfter),
		worker.WithRelayLogger(logger),
		worker.WithRelayMetrics(m),
	)
	if err := r.Run(ctx); err != nil {
		logger.Error("relay stopped with error", "error", err)
	}

	logger.Info("relay exited")
}
