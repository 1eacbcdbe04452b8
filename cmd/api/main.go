package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/radugaboost/message-inbox/internal/api"
	"github.com/radugaboost/message-inbox/internal/application/factories/infrastructure"
	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/infrastructure/postgres"
	applog "github.com/radugaboost/message-inbox/internal/logger"
	"github.com/radugaboost/message-inbox/internal/usecase"
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
	logger = logger.With("component", "api")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	inboxRepo, _, err := infraFactory.Inbox(ctx)
	if err != nil {
		logger.Error("failed to connect to storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	var outboxLister usecase.OutboxLister
	if cfg.Storage.Driver == config.DriverPostgres {
		pgPool, err := infraFactory.Postgres(ctx)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		outboxLister = postgres.NewOutboxRepository(pgPool)
	}

	var cache redis.Cmdable
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		cache = redisClient
	}

	handlers := api.NewHandlers(
		usecase.NewGetMessage(cache, inboxRepo, cfg.Redis.CacheTTL),
		usecase.NewGetStats(inboxRepo),
		usecase.NewListPending(inboxRepo),
		usecase.NewGetTrace(inboxRepo, outboxLister),
		logger,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewRouter(handlers, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exiting")
}
