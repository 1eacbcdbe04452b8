package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"

	"github.com/radugaboost/message-inbox/internal/config"
	"github.com/radugaboost/message-inbox/internal/domain/inbox"
	"github.com/radugaboost/message-inbox/internal/infrastructure/mysql"
	"github.com/radugaboost/message-inbox/internal/infrastructure/postgres"
	"github.com/radugaboost/message-inbox/internal/infrastructure/redis"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Factory lazily opens and caches infrastructure clients.
type Factory struct {
	cfg      *config.Config
	logger   *slog.Logger
	pgPool   *pgxpool.Pool
	mysqlDB  *sql.DB
	redisCli *go_redis.Client
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	pool, err := retry(ctx, f.logger, "postgres", func() (*pgxpool.Pool, error) {
		return postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
			SSLMode:  f.cfg.Postgres.SSLMode,
			MaxConns: f.cfg.Postgres.MaxConns,
		})
	})
	if err != nil {
		return nil, err
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) MySQL(ctx context.Context) (*sql.DB, error) {
	if f.mysqlDB != nil {
		return f.mysqlDB, nil
	}

	db, err := retry(ctx, f.logger, "mysql", func() (*sql.DB, error) {
		return mysql.NewClient(ctx, mysql.Config{
			Host:         f.cfg.MySQL.Host,
			Port:         f.cfg.MySQL.Port,
			User:         f.cfg.MySQL.User,
			Password:     f.cfg.MySQL.Password,
			DBName:       f.cfg.MySQL.DBName,
			MaxOpenConns: f.cfg.MySQL.MaxOpenConns,
		})
	})
	if err != nil {
		return nil, err
	}

	f.mysqlDB = db
	return db, nil
}

// Inbox returns the inbox repository and transaction manager for the
// configured storage driver.
func (f *Factory) Inbox(ctx context.Context) (inbox.Repository, inbox.Transactor, error) {
	switch f.cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := f.MySQL(ctx)
		if err != nil {
			return nil, nil, err
		}
		return mysql.NewInboxRepository(db), mysql.NewTxManager(db), nil
	default:
		pool, err := f.Postgres(ctx)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewInboxRepository(pool), postgres.NewTxManager(pool), nil
	}
}

// EnsureSchema applies the embedded DDL for the configured driver.
func (f *Factory) EnsureSchema(ctx context.Context) error {
	switch f.cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := f.MySQL(ctx)
		if err != nil {
			return err
		}
		return mysql.EnsureSchema(ctx, db)
	default:
		pool, err := f.Postgres(ctx)
		if err != nil {
			return err
		}
		return postgres.EnsureSchema(ctx, pool)
	}
}

// Redis returns nil without error when redis is disabled in config.
func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if !f.cfg.Redis.Enabled {
		return nil, nil
	}
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.mysqlDB != nil {
		_ = f.mysqlDB.Close()
	}
	if f.redisCli != nil {
		_ = f.redisCli.Close()
	}
}

func retry[T any](ctx context.Context, logger *slog.Logger, name string, connect func() (T, error)) (T, error) {
	var (
		client T
		err    error
	)
	for i := 0; i < connectAttempts; i++ {
		client, err = connect()
		if err == nil {
			return client, nil
		}
		if i == connectAttempts-1 {
			break
		}
		logger.Warn("Failed to connect, retrying", "store", name, "attempt", i+1, "max_attempts", connectAttempts, "error", err)

		select {
		case <-ctx.Done():
			return client, fmt.Errorf("failed to init %s: %w", name, ctx.Err())
		case <-time.After(connectDelay):
		}
	}
	return client, fmt.Errorf("failed to init %s after retries: %w", name, err)
}
