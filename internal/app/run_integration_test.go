package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	require.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_ListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "bad-address"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
}

func TestRunNotifier_Validation(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorContains(t, RunNotifier(context.Background(), cfg), "kafka brokers are required")

	cfg.KafkaBrokers = []string{"127.0.0.1:1"}
	require.ErrorContains(t, RunNotifier(context.Background(), cfg), "sendgrid api key is empty")
}

func TestNewGRPCServer_RegistersServices(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "grpc"))
	require.NoError(t, err)
	services := buildServices(DefaultConfig(), deps, nil, log.WithField("test", "grpc"))

	server, healthServer := newGRPCServer(services.grpc, log.WithField("test", "grpc"))
	defer server.Stop()

	info := server.GetServiceInfo()
	require.Contains(t, info, "marketplace.v1.CheckoutService")
	require.Contains(t, info, "grpc.health.v1.Health")
	require.NotNil(t, healthServer)
	require.NotNil(t, services.http.Checkout)
	require.NotNil(t, services.http.Payments)
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("MARKET_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := log.WithField("test", "postgres-runtime")
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	require.NoError(t, err)
	defer deps.close(logger)

	require.NoError(t, deps.storage.Ping(ctx))
}
