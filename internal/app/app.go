// Package app provides shared application setup and lifecycle management.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	_ "github.com/stiffinWanjohi/streampool/internal/observability/otel"       // Register OTel providers
	_ "github.com/stiffinWanjohi/streampool/internal/observability/prometheus" // Register Prometheus provider
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

var log = logging.Component("app")

// Services holds all initialized application services.
type Services struct {
	Config  *config.Config
	Redis   *redis.Client
	Streams *stream.Client
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	metricsProvider observability.MetricsProvider
	tracingProvider observability.TracingProvider
}

// MetricsHandler returns the scrape handler of a pull-based metrics provider, or nil.
func (s *Services) MetricsHandler() http.Handler {
	if h, ok := s.metricsProvider.(interface{ Handler() http.Handler }); ok {
		return h.Handler()
	}
	return nil
}

// Close flushes telemetry and closes the Redis connection.
func (s *Services) Close(ctx context.Context) {
	if s.metricsProvider != nil {
		_ = s.metricsProvider.Flush(ctx)
		_ = s.metricsProvider.Close(ctx)
	}
	if s.tracingProvider != nil {
		_ = s.tracingProvider.Shutdown(ctx)
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

// InitLogging configures the root log handler from configuration.
func InitLogging(cfg *config.Config) {
	logging.Init(logging.Options{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
	})
}

// ConnectRedis connects to Redis with the provided configuration. The URL may
// be a plain host:port or a redis:// URL.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts := &redis.Options{Addr: cfg.Redis.URL}
	if strings.Contains(cfg.Redis.URL, "://") {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	}
	opts.PoolSize = cfg.Redis.PoolSize
	opts.ReadTimeout = cfg.Redis.ReadTimeout
	opts.WriteTimeout = cfg.Redis.WriteTimeout
	// blocking group reads must outlive the socket read timeout
	if block := cfg.Pool.BlockTimeout; block > 0 && opts.ReadTimeout > 0 && opts.ReadTimeout <= block {
		opts.ReadTimeout = block + opts.ReadTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewMetricsProvider creates a metrics provider based on configuration.
func NewMetricsProvider(ctx context.Context, cfg *config.Config) (observability.MetricsProvider, *observability.Metrics, error) {
	provider, err := observability.NewMetricsProviderByName(ctx, cfg.Metrics.Provider, observability.ProviderConfig{
		ServiceName:    cfg.Metrics.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Metrics.Environment,
		Endpoint:       cfg.Metrics.Endpoint,
		ExportInterval: cfg.Metrics.ExportInterval,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// prometheus namespaces its own collectors
	namespace := cfg.Metrics.ServiceName
	if _, ok := provider.(interface{ Handler() http.Handler }); ok {
		namespace = ""
	}
	return provider, observability.NewMetrics(provider, namespace), nil
}

// NewTracingProvider creates a tracing provider based on configuration.
func NewTracingProvider(ctx context.Context, cfg *config.Config) (observability.TracingProvider, *observability.Tracer, error) {
	provider, err := observability.NewTracingProviderByName(ctx, cfg.Tracing.Provider, observability.ProviderConfig{
		ServiceName:    cfg.Metrics.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Metrics.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return provider, observability.NewTracer(provider), nil
}

// Init connects to Redis and builds the telemetry providers.
// Returns Services which should be closed with Close() when done.
func Init(ctx context.Context, cfg *config.Config) (*Services, error) {
	redisClient, err := ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("connected to redis", "addr", redisClient.Options().Addr, "pool_size", cfg.Redis.PoolSize)

	metricsProvider, metrics, err := NewMetricsProvider(ctx, cfg)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	if cfg.Metrics.Provider != "" {
		log.Info("metrics enabled", "provider", cfg.Metrics.Provider, "endpoint", cfg.Metrics.Endpoint)
	}

	tracingProvider, tracer, err := NewTracingProvider(ctx, cfg)
	if err != nil {
		_ = metricsProvider.Close(ctx)
		_ = redisClient.Close()
		return nil, err
	}
	if cfg.Tracing.Provider != "" {
		log.Info("tracing enabled", "provider", cfg.Tracing.Provider, "sample_rate", cfg.Tracing.SampleRate)
	}

	return &Services{
		Config:          cfg,
		Redis:           redisClient,
		Streams:         stream.NewClient(redisClient).WithMetrics(metrics),
		Metrics:         metrics,
		Tracer:          tracer,
		metricsProvider: metricsProvider,
		tracingProvider: tracingProvider,
	}, nil
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
