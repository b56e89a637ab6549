package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	// IdempotencyDriverStorage хранит ключи идемпотентности в основном хранилище.
	IdempotencyDriverStorage = "storage"
	IdempotencyDriverRedis   = "redis"

	envPrefix = "MARKET_"
)

// Config описывает настройки запуска сервисов маркетплейса.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StorageDriver       string `yaml:"storage_driver"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`
	DefaultStoreID      string `yaml:"default_store_id"`

	IdempotencyDriver           string        `yaml:"idempotency_driver"`
	RedisURL                    string        `yaml:"redis_url"`
	RedisDB                     int           `yaml:"redis_db"`
	IdempotencyCleanupInterval  time.Duration `yaml:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `yaml:"idempotency_cleanup_batch_size"`

	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
	KafkaDLQTopic string   `yaml:"kafka_dlq_topic"`
	KafkaGroupID  string   `yaml:"kafka_group_id"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`

	PaymentGatewayURL     string        `yaml:"payment_gateway_url"`
	PaymentGatewaySecret  string        `yaml:"payment_gateway_secret"`
	PaymentGatewayTimeout time.Duration `yaml:"payment_gateway_timeout"`
	BreakerMaxFailures    int           `yaml:"breaker_max_failures"`
	BreakerResetTimeout   time.Duration `yaml:"breaker_reset_timeout"`

	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	NotifyFrom     string `yaml:"notify_from"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		LogLevel:  "info",
		LogFormat: "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		IdempotencyDriver:           IdempotencyDriverStorage,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		KafkaTopic:    "marketplace.order.events",
		KafkaDLQTopic: "marketplace.dlq",
		KafkaGroupID:  "marketplace-notifier",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		PaymentGatewayURL:     "https://api.paystack.co",
		PaymentGatewayTimeout: 10 * time.Second,
		BreakerMaxFailures:    5,
		BreakerResetTimeout:   30 * time.Second,
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл
// (если path не пуст), затем переменные окружения MARKET_*.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres dsn is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.IdempotencyDriver {
	case "", IdempotencyDriverStorage:
	case IdempotencyDriverRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("redis url is required for idempotency driver %q", c.IdempotencyDriver)
		}
	default:
		return fmt.Errorf("unsupported idempotency driver %q", c.IdempotencyDriver)
	}

	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("outbox batch size and max attempts must be > 0")
	}
	if c.BreakerMaxFailures <= 0 {
		return fmt.Errorf("breaker max failures must be > 0")
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv переопределяет поля значениями MARKET_<NAME>.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("HTTP_ADDR", &cfg.HTTPAddr)
	env.str("GRPC_ADDR", &cfg.GRPCAddr)
	env.str("METRICS_ADDR", &cfg.MetricsAddr)
	env.str("LOG_LEVEL", &cfg.LogLevel)
	env.str("LOG_FORMAT", &cfg.LogFormat)

	env.str("STORAGE_DRIVER", &cfg.StorageDriver)
	env.str("POSTGRES_DSN", &cfg.PostgresDSN)
	env.boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	env.str("DEFAULT_STORE_ID", &cfg.DefaultStoreID)

	env.str("IDEMPOTENCY_DRIVER", &cfg.IdempotencyDriver)
	env.str("REDIS_URL", &cfg.RedisURL)
	env.integer("REDIS_DB", &cfg.RedisDB)
	env.duration("IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	env.list("KAFKA_BROKERS", &cfg.KafkaBrokers)
	env.str("KAFKA_TOPIC", &cfg.KafkaTopic)
	env.str("KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)
	env.str("KAFKA_GROUP_ID", &cfg.KafkaGroupID)

	env.duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	env.str("PAYMENT_GATEWAY_URL", &cfg.PaymentGatewayURL)
	env.str("PAYMENT_GATEWAY_SECRET", &cfg.PaymentGatewaySecret)
	env.duration("PAYMENT_GATEWAY_TIMEOUT", &cfg.PaymentGatewayTimeout)
	env.integer("BREAKER_MAX_FAILURES", &cfg.BreakerMaxFailures)
	env.duration("BREAKER_RESET_TIMEOUT", &cfg.BreakerResetTimeout)

	env.str("SENDGRID_API_KEY", &cfg.SendGridAPIKey)
	env.str("NOTIFY_FROM", &cfg.NotifyFrom)

	return env.err
}

// envReader запоминает первую ошибку разбора.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (r *envReader) value(name string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := r.lookup(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) fail(name, value string, err error) {
	r.err = fmt.Errorf("invalid %s%s=%q: %w", envPrefix, name, value, err)
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.value(name); ok {
		*dst = v
	}
}

func (r *envReader) list(name string, dst *[]string) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	items := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	*dst = items
}

func (r *envReader) integer(name string, dst *int) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = n
}

func (r *envReader) boolean(name string, dst *bool) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = b
}

func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := r.value(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = d
}
