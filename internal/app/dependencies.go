package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/redisstore"
)

// runtimeDependencies хранит хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	storage         domain.Storage
	idempotencyRepo domain.IdempotencyRepository
	redisClient     *redis.Client
	closers         []func() error
}

// initRuntimeDependencies открывает хранилище и репозиторий ключей идемпотентности.
// При ошибке уже открытые подключения закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}
	if err := deps.open(ctx, cfg, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	return deps, nil
}

func (d *runtimeDependencies) open(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		d.storage = memory.NewStore()
		d.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		d.storage = store
		d.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		logger.Info("using postgres storage")

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.IdempotencyDriver {
	case "", IdempotencyDriverStorage:
	case IdempotencyDriverRedis:
		client, err := redisstore.Connect(ctx, cfg.RedisURL, cfg.RedisDB)
		if err != nil {
			return err
		}
		d.redisClient = client
		d.closers = append(d.closers, client.Close)
		d.idempotencyRepo = redisstore.NewIdempotencyRepository(client)
		logger.Info("using redis idempotency store")
	default:
		return fmt.Errorf("unsupported idempotency driver %q", cfg.IdempotencyDriver)
	}
	return nil
}

// registerHealthChecks регистрирует проверки открытых подключений.
func (d *runtimeDependencies) registerHealthChecks(h *healthcheck.Handler) {
	h.RegisterChecker("storage", healthcheck.NewPingChecker("storage", d.storage.Ping))
	if d.redisClient != nil {
		client := d.redisClient
		h.RegisterChecker("redis", healthcheck.NewPingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
}

// close закрывает подключения в обратном порядке.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}
