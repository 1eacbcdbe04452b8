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
	"github.com/radugaboost/message-inbox/internal/handlers"
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
	logger = logger.With("component", "processor")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	metrics.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logger)

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	inboxRepo, txManager, err := infraFactory.Inbox(ctx)
	if err != nil {
		logger.Error("failed to connect to storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	router := worker.NewRouter()
	opts := []worker.ProcessorOption{
		worker.WithPollInterval(cfg.Inbox.PollInterval),
		worker.WithMaxBackoff(cfg.Inbox.MaxBackoff),
		worker.WithWorkers(cfg.Inbox.Workers),
		worker.WithHandlerTimeout(cfg.Inbox.HandlerTimeout),
		worker.WithProcessorLogger(logger),
		worker.WithProcessorMetrics(m),
	}

	if cfg.Storage.Driver == config.DriverPostgres {
		pgPool, err := infraFactory.Postgres(ctx)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		outboxRepo := postgres.NewOutboxRepository(pgPool)

		handlers.NewOrders(postgres.NewOrderRepository(pgPool), outboxRepo, cfg.App.Name).Register(router)
		if cfg.Inbox.Unrouted == config.UnroutedDeadLetter {
			opts = append(opts, worker.WithUnroutedHandler(handlers.NewDeadLetter(outboxRepo, cfg.App.Name)))
		}
	} else {
		logger.Warn("Sample handlers need the postgres driver; unrouted messages will be dropped", "driver", cfg.Storage.Driver)
	}

	p := worker.NewProcessor(inboxRepo, txManager, router, opts...)
	if err := p.Run(ctx); err != nil {
		logger.Error("processor stopped with error", "error", err)
		infraFactory.Close()
		os.Exit(1)
	}

	logger.Info("processor exited")
}
