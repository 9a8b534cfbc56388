package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConsumers is the default pool size.
	DefaultConsumers = 1

	// DefaultBlockTimeout is how long a claim waits for an entry.
	DefaultBlockTimeout = 2 * time.Second

	// DefaultProcessingDelay simulates per-message work.
	DefaultProcessingDelay = 10 * time.Millisecond

	// DefaultMonitorInterval is the period between throughput reports.
	DefaultMonitorInterval = 3 * time.Second

	// DefaultMonitorPageSize is the number of entries fetched per range call.
	DefaultMonitorPageSize = 1000

	// ConfigFileEnv names the environment variable holding the YAML config path.
	ConfigFileEnv = "STREAMPOOL_CONFIG"
)

// Config holds all application configuration.
type Config struct {
	Redis     RedisConfig     `yaml:"redis"`
	Streams   StreamsConfig   `yaml:"streams"`
	Pool      PoolConfig      `yaml:"pool"`
	Reclaim   ReclaimConfig   `yaml:"reclaim"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Publisher PublisherConfig `yaml:"publisher"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StreamsConfig names the streams, the consumer group and the roster key.
type StreamsConfig struct {
	Source         string `yaml:"source"`
	Target         string `yaml:"target"`
	Group          string `yaml:"group"`
	ConsumerIDsKey string `yaml:"consumer_ids_key"`
}

// PoolConfig holds consumer pool configuration.
type PoolConfig struct {
	Consumers       int           `yaml:"consumers"`
	BlockTimeout    time.Duration `yaml:"block_timeout"`
	BatchSize       int64         `yaml:"batch_size"`
	ProcessingDelay time.Duration `yaml:"processing_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ReclaimConfig holds pending-entry reclaim configuration.
type ReclaimConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MinIdle  time.Duration `yaml:"min_idle"`
	Count    int64         `yaml:"count"`
}

// MonitorConfig holds throughput monitor configuration.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	PageSize int64         `yaml:"page_size"`
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig selects the metrics provider.
type MetricsConfig struct {
	Provider       string        `yaml:"provider"`
	Endpoint       string        `yaml:"endpoint"`
	ServiceName    string        `yaml:"service_name"`
	Environment    string        `yaml:"environment"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// TracingConfig selects the tracing provider.
type TracingConfig struct {
	Provider   string  `yaml:"provider"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// LoggingConfig holds log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PublisherConfig holds load generator configuration.
type PublisherConfig struct {
	Duration  time.Duration `yaml:"duration"`
	BatchSize int           `yaml:"batch_size"`
	MinPause  time.Duration `yaml:"min_pause"`
	MaxPause  time.Duration `yaml:"max_pause"`
}

// Validation errors.
var (
	ErrInvalidConsumerCount = errors.New("number of consumers must be a positive integer")
	ErrStreamNameRequired   = errors.New("source and target stream names are required")
	ErrSameStreams          = errors.New("source and target streams must differ")
	ErrGroupNameRequired    = errors.New("consumer group name is required")
	ErrRosterKeyRequired    = errors.New("consumer ids key is required")
	ErrInvalidInterval      = errors.New("intervals and timeouts must be positive")
	ErrInvalidBatchSize     = errors.New("batch and page sizes must be positive")
	ErrInvalidPause         = errors.New("publisher min pause must not exceed max pause")
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			URL:          "localhost:6379",
			PoolSize:     20,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Streams: StreamsConfig{
			Source:         "messages:published",
			Target:         "messages:processed",
			Group:          "consumer-group",
			ConsumerIDsKey: "consumer-ids",
		},
		Pool: PoolConfig{
			Consumers:       DefaultConsumers,
			BlockTimeout:    DefaultBlockTimeout,
			BatchSize:       1,
			ProcessingDelay: DefaultProcessingDelay,
			ShutdownTimeout: 10 * time.Second,
		},
		Reclaim: ReclaimConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
			MinIdle:  time.Minute,
			Count:    100,
		},
		Monitor: MonitorConfig{
			Interval: DefaultMonitorInterval,
			PageSize: DefaultMonitorPageSize,
		},
		API: APIConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			ServiceName:    "streampool",
			Environment:    "development",
			ExportInterval: 15 * time.Second,
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "color",
		},
		Publisher: PublisherConfig{
			Duration:  time.Minute,
			BatchSize: 1000,
			MinPause:  100 * time.Millisecond,
			MaxPause:  500 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $STREAMPOOL_CONFIG when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", c.Redis.ReadTimeout)
	c.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", c.Redis.WriteTimeout)

	c.Streams.Source = getEnv("PUBLISHED_MESSAGES_STREAM_NAME", c.Streams.Source)
	c.Streams.Target = getEnv("PROCESSED_MESSAGES_STREAM_NAME", c.Streams.Target)
	c.Streams.Group = getEnv("CONSUMER_GROUP_NAME", c.Streams.Group)
	c.Streams.ConsumerIDsKey = getEnv("CONSUMER_IDS_KEY", c.Streams.ConsumerIDsKey)

	c.Pool.Consumers = getEnvInt("NUMBER_OF_CONSUMERS", c.Pool.Consumers)
	c.Pool.BlockTimeout = getEnvDuration("CONSUMER_BLOCK_TIMEOUT", c.Pool.BlockTimeout)
	c.Pool.BatchSize = int64(getEnvInt("CONSUMER_BATCH_SIZE", int(c.Pool.BatchSize)))
	c.Pool.ProcessingDelay = getEnvDuration("PROCESSING_DELAY", c.Pool.ProcessingDelay)
	c.Pool.ShutdownTimeout = getEnvDuration("POOL_SHUTDOWN_TIMEOUT", c.Pool.ShutdownTimeout)

	c.Reclaim.Enabled = getEnvBool("RECLAIM_ENABLED", c.Reclaim.Enabled)
	c.Reclaim.Interval = getEnvDuration("RECLAIM_INTERVAL", c.Reclaim.Interval)
	c.Reclaim.MinIdle = getEnvDuration("RECLAIM_MIN_IDLE", c.Reclaim.MinIdle)
	c.Reclaim.Count = int64(getEnvInt("RECLAIM_COUNT", int(c.Reclaim.Count)))

	c.Monitor.Interval = getEnvDuration("MONITOR_INTERVAL", c.Monitor.Interval)
	c.Monitor.PageSize = int64(getEnvInt("MONITOR_PAGE_SIZE", int(c.Monitor.PageSize)))

	c.API.Addr = getEnv("API_ADDR", c.API.Addr)
	c.API.ShutdownTimeout = getEnvDuration("API_SHUTDOWN_TIMEOUT", c.API.ShutdownTimeout)

	c.Metrics.Provider = getEnv("METRICS_PROVIDER", c.Metrics.Provider)
	c.Metrics.Endpoint = getEnv("METRICS_ENDPOINT", c.Metrics.Endpoint)
	c.Metrics.ServiceName = getEnv("METRICS_SERVICE_NAME", c.Metrics.ServiceName)
	c.Metrics.Environment = getEnv("ENVIRONMENT", c.Metrics.Environment)
	c.Metrics.ExportInterval = getEnvDuration("METRICS_EXPORT_INTERVAL", c.Metrics.ExportInterval)

	c.Tracing.Provider = getEnv("TRACING_PROVIDER", c.Tracing.Provider)
	c.Tracing.Endpoint = getEnv("TRACING_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", c.Tracing.SampleRate)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Logging.Format))

	c.Publisher.Duration = getEnvDuration("PUBLISH_DURATION", c.Publisher.Duration)
	c.Publisher.BatchSize = getEnvInt("PUBLISH_BATCH_SIZE", c.Publisher.BatchSize)
	c.Publisher.MinPause = getEnvDuration("PUBLISH_MIN_PAUSE", c.Publisher.MinPause)
	c.Publisher.MaxPause = getEnvDuration("PUBLISH_MAX_PAUSE", c.Publisher.MaxPause)
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	if c.Pool.Consumers <= 0 {
		return ErrInvalidConsumerCount
	}
	if c.Streams.Source == "" || c.Streams.Target == "" {
		return ErrStreamNameRequired
	}
	if c.Streams.Source == c.Streams.Target {
		return ErrSameStreams
	}
	if c.Streams.Group == "" {
		return ErrGroupNameRequired
	}
	if c.Streams.ConsumerIDsKey == "" {
		return ErrRosterKeyRequired
	}
	if c.Pool.BlockTimeout <= 0 || c.Monitor.Interval <= 0 || c.Reclaim.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.Pool.BatchSize <= 0 || c.Monitor.PageSize <= 0 || c.Publisher.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Pool.ProcessingDelay < 0 || c.Reclaim.MinIdle < 0 {
		return ErrInvalidInterval
	}
	if c.Publisher.MinPause > c.Publisher.MaxPause {
		return ErrInvalidPause
	}
	return nil
}

// WithConsumers returns a copy of the config with the pool size overridden,
// as done by the positional CLI argument.
func (c *Config) WithConsumers(raw string) (*Config, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConsumerCount, raw)
	}
	next := *c
	next.Pool.Consumers = n
	return &next, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}
