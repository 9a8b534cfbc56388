package observability

import (
	"context"
	"strconv"
	"time"
)

// MetricsProvider defines the interface for recording metrics.
// Implementations exist for Prometheus and OpenTelemetry; the noop provider is the default.
type MetricsProvider interface {
	// Counter increments a counter metric
	Counter(ctx context.Context, name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric value
	Gauge(ctx context.Context, name string, value float64, tags map[string]string)

	// Histogram records a value in a histogram/distribution
	Histogram(ctx context.Context, name string, value float64, tags map[string]string)

	// Timing records a duration
	Timing(ctx context.Context, name string, duration time.Duration, tags map[string]string)

	// Flush ensures all metrics are sent (for buffered providers)
	Flush(ctx context.Context) error

	// Close shuts down the metrics provider
	Close(ctx context.Context) error
}

// Metrics provides a convenient wrapper for recording application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	provider  MetricsProvider
	namespace string
}

// NewMetrics creates a new Metrics instance with the given provider.
func NewMetrics(provider MetricsProvider, namespace string) *Metrics {
	return &Metrics{
		provider:  provider,
		namespace: namespace,
	}
}

// Provider returns the underlying provider.
func (m *Metrics) Provider() MetricsProvider {
	if m == nil {
		return nil
	}
	return m.provider
}

func (m *Metrics) prefixName(name string) string {
	if m.namespace == "" {
		return name
	}
	return m.namespace + "." + name
}

// HTTP metrics

func (m *Metrics) HTTPRequestTotal(ctx context.Context, method, path, status string) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("http.requests.total"), 1, map[string]string{
		"method": method,
		"path":   path,
		"status": status,
	})
}

func (m *Metrics) HTTPRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	if m == nil {
		return
	}
	m.provider.Timing(ctx, m.prefixName("http.request.duration"), duration, map[string]string{
		"method": method,
		"path":   path,
	})
}

// Consumer metrics

func (m *Metrics) MessageClaimed(ctx context.Context, consumerID string) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("messages.claimed"), 1, map[string]string{
		"consumer_id": consumerID,
	})
}

func (m *Metrics) MessageProcessed(ctx context.Context, consumerID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("messages.processed"), 1, map[string]string{
		"consumer_id": consumerID,
	})
	m.provider.Timing(ctx, m.prefixName("messages.handle.duration"), duration, map[string]string{
		"consumer_id": consumerID,
	})
}

// ConsumeFailed counts a failed loop step; stage is one of claim, decode, process, publish or ack.
func (m *Metrics) ConsumeFailed(ctx context.Context, consumerID, stage string) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("messages.failed"), 1, map[string]string{
		"consumer_id": consumerID,
		"stage":       stage,
	})
}

func (m *Metrics) MessageReclaimed(ctx context.Context, consumerID string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.provider.Counter(ctx, m.prefixName("messages.reclaimed"), int64(count), map[string]string{
		"consumer_id": consumerID,
	})
}

// Pool metrics

func (m *Metrics) PoolSize(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.provider.Gauge(ctx, m.prefixName("pool.consumers"), float64(size), nil)
}

func (m *Metrics) PoolRestart(ctx context.Context, consumerID string, attempt int) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("pool.backoffs"), 1, map[string]string{
		"consumer_id": consumerID,
		"attempt":     strconv.Itoa(attempt),
	})
}

// Throughput metrics

func (m *Metrics) ThroughputOverall(ctx context.Context, rate float64) {
	if m == nil {
		return
	}
	m.provider.Gauge(ctx, m.prefixName("throughput.overall"), rate, nil)
}

func (m *Metrics) ThroughputConsumer(ctx context.Context, consumerID string, rate float64) {
	if m == nil {
		return
	}
	m.provider.Gauge(ctx, m.prefixName("throughput.consumer"), rate, map[string]string{
		"consumer_id": consumerID,
	})
}

func (m *Metrics) MonitorTick(ctx context.Context, duration time.Duration, skipped int) {
	if m == nil {
		return
	}
	m.provider.Timing(ctx, m.prefixName("monitor.tick.duration"), duration, nil)
	if skipped > 0 {
		m.provider.Counter(ctx, m.prefixName("monitor.skipped"), int64(skipped), nil)
	}
}

// Stream metrics

func (m *Metrics) StreamLength(ctx context.Context, stream string, length int64) {
	if m == nil {
		return
	}
	m.provider.Gauge(ctx, m.prefixName("stream.length"), float64(length), map[string]string{
		"stream": stream,
	})
}

func (m *Metrics) StreamPending(ctx context.Context, stream string, pending int64) {
	if m == nil {
		return
	}
	m.provider.Gauge(ctx, m.prefixName("stream.pending"), float64(pending), map[string]string{
		"stream": stream,
	})
}

func (m *Metrics) MessagesPublished(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.provider.Counter(ctx, m.prefixName("publisher.messages"), int64(count), nil)
}

// Redis metrics

func (m *Metrics) RedisCommandDuration(ctx context.Context, command string, duration time.Duration) {
	if m == nil {
		return
	}
	m.provider.Timing(ctx, m.prefixName("redis.command.duration"), duration, map[string]string{
		"command": command,
	})
}

// Flush flushes all pending metrics.
func (m *Metrics) Flush(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Flush(ctx)
}

// Close shuts down the metrics provider.
func (m *Metrics) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Close(ctx)
}
