package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/observability"
)

func testConfig(t *testing.T) (*config.Config, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.URL = mr.Addr()
	return cfg, mr
}

func TestConnectRedis(t *testing.T) {
	cfg, mr := testConfig(t)
	ctx := context.Background()

	client, err := ConnectRedis(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, mr.Addr(), client.Options().Addr)
	assert.Equal(t, cfg.Redis.PoolSize, client.Options().PoolSize)

	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	client2, err := ConnectRedis(ctx, cfg)
	require.NoError(t, err)
	defer client2.Close()
	assert.Equal(t, mr.Addr(), client2.Options().Addr)
}

func TestConnectRedis_ReadTimeoutCoversBlock(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Redis.ReadTimeout = time.Second
	cfg.Pool.BlockTimeout = 2 * time.Second

	client, err := ConnectRedis(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.Greater(t, client.Options().ReadTimeout, cfg.Pool.BlockTimeout)
}

func TestConnectRedis_Unreachable(t *testing.T) {
	cfg, mr := testConfig(t)
	mr.Close()

	_, err := ConnectRedis(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewMetricsProvider(t *testing.T) {
	cfg := config.Default()
	ctx := context.Background()

	provider, metrics, err := NewMetricsProvider(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, observability.NoopMetricsProvider{}, provider)
	assert.NotNil(t, metrics)

	cfg.Metrics.Provider = "bogus"
	_, _, err = NewMetricsProvider(ctx, cfg)
	assert.Error(t, err)
}

func TestNewTracingProvider(t *testing.T) {
	cfg := config.Default()
	ctx := context.Background()

	provider, tracer, err := NewTracingProvider(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, observability.NoopTracingProvider{}, provider)
	assert.NotNil(t, tracer)

	cfg.Tracing.Provider = "bogus"
	_, _, err = NewTracingProvider(ctx, cfg)
	assert.Error(t, err)
}

func TestInit_PrometheusExposesHandler(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Metrics.Provider = "prometheus"
	ctx := context.Background()

	svc, err := Init(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close(ctx)

	require.NotNil(t, svc.Streams)
	require.NoError(t, svc.Streams.Ping(ctx))

	svc.Metrics.PoolSize(ctx, 4)

	h := svc.MetricsHandler()
	require.NotNil(t, h)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "streampool_pool_consumers 4")
}

func TestInit_NoopHasNoHandler(t *testing.T) {
	cfg, _ := testConfig(t)
	ctx := context.Background()

	svc, err := Init(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close(ctx)

	assert.Nil(t, svc.MetricsHandler())
}

func TestInit_UnreachableRedis(t *testing.T) {
	cfg, mr := testConfig(t)
	mr.Close()

	_, err := Init(context.Background(), cfg)
	assert.Error(t, err)
}
