package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, ":50051", cfg.GRPCAddr)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	require.Equal(t, IdempotencyDriverStorage, cfg.IdempotencyDriver)
	require.True(t, cfg.PostgresAutoMigrate)
	require.Positive(t, cfg.OutboxPollInterval)
	require.Positive(t, cfg.OutboxBatchSize)
	require.Positive(t, cfg.OutboxMaxAttempts)
	require.Positive(t, cfg.IdempotencyCleanupInterval)
	require.Positive(t, cfg.IdempotencyCleanupBatchSize)
	require.Equal(t, 5, cfg.BreakerMaxFailures)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketplace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":18080"
storage_driver: postgres
postgres_dsn: postgres://file
default_store_id: store-1
kafka_brokers: [broker-a:9092]
outbox_poll_interval: 3s
breaker_reset_timeout: 1m
`), 0o600))

	t.Setenv("MARKET_POSTGRES_DSN", "postgres://env")
	t.Setenv("MARKET_KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("MARKET_OUTBOX_BATCH_SIZE", "25")
	t.Setenv("MARKET_POSTGRES_AUTO_MIGRATE", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ":18080", cfg.HTTPAddr)
	require.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	require.Equal(t, "postgres://env", cfg.PostgresDSN)
	require.Equal(t, "store-1", cfg.DefaultStoreID)
	require.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 3*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, time.Minute, cfg.BreakerResetTimeout)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.False(t, cfg.PostgresAutoMigrate)
	require.Equal(t, ":50051", cfg.GRPCAddr)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("http_addr: [unterminated"), 0o600))
	_, err = LoadConfig(bad)
	require.ErrorContains(t, err, "parse config file")

	t.Setenv("MARKET_OUTBOX_RETRY_DELAY", "soon")
	_, err = LoadConfig("")
	require.ErrorContains(t, err, "MARKET_OUTBOX_RETRY_DELAY")
}

func TestApplyEnv_FirstErrorWins(t *testing.T) {
	env := map[string]string{
		"MARKET_REDIS_DB":          "x",
		"MARKET_OUTBOX_BATCH_SIZE": "y",
		"MARKET_HTTP_ADDR":         "  ",
	}
	cfg := DefaultConfig()
	err := applyEnv(&cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.ErrorContains(t, err, "MARKET_REDIS_DB")
	require.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without dsn", func(c *Config) { c.StorageDriver = StorageDriverPostgres }, "postgres dsn is required"},
		{"unknown storage", func(c *Config) { c.StorageDriver = "sqlite" }, "unsupported storage driver"},
		{"redis without url", func(c *Config) { c.IdempotencyDriver = IdempotencyDriverRedis }, "redis url is required"},
		{"unknown idempotency", func(c *Config) { c.IdempotencyDriver = "memcached" }, "unsupported idempotency driver"},
		{"zero batch", func(c *Config) { c.OutboxBatchSize = 0 }, "outbox batch size"},
		{"zero breaker", func(c *Config) { c.BreakerMaxFailures = 0 }, "breaker max failures"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
