package main

import (
	"context"
	"fmt"
	"os"

	"github.com/radugaboost/message-inbox/internal/application/factories/infrastructure"
	"github.com/radugaboost/message-inbox/internal/cli"
	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/infrastructure/postgres"
)

func main() {
	if err := cli.NewRootCommand(connect).Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *config.Config) (*cli.Deps, error) {
	infraFactory := infrastructure.NewFactory(cfg, nil)

	inboxRepo, _, err := infraFactory.Inbox(ctx)
	if err != nil {
		infraFactory.Close()
		return nil, err
	}

	deps := &cli.Deps{
		Reader:      inboxRepo,
		ApplySchema: infraFactory.EnsureSchema,
		Close:       infraFactory.Close,
	}

	if cfg.Storage.Driver == config.DriverPostgres {
		pgPool, err := infraFactory.Postgres(ctx)
		if err != nil {
			infraFactory.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		deps.Outbox = postgres.NewOutboxRepository(pgPool)
	}

	return deps, nil
}
