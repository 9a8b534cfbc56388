// Package monitor reports message processing throughput from the target stream.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

var log = logging.Component("monitor")

// ErrShutdownTimeout is returned by StopAndWait when the tick loop outlives the timeout.
var ErrShutdownTimeout = errors.New("monitor shutdown timed out")

// Config holds the monitored stream and scan settings.
type Config struct {
	Stream   string
	Interval time.Duration
	PageSize int64
}

// ConfigFrom extracts monitor settings from the application configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Stream:   cfg.Streams.Target,
		Interval: cfg.Monitor.Interval,
		PageSize: cfg.Monitor.PageSize,
	}
}

// Monitor rescans the whole target stream every interval and reports the
// overall and per-consumer processing rate. No state is carried between ticks
// except the latest report.
type Monitor struct {
	client  *stream.Client
	decoder *Decoder
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time

	mu     sync.RWMutex
	latest *Report

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a monitor of cfg.Stream.
func New(client *stream.Client, cfg Config) (*Monitor, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	return &Monitor{
		client:  client,
		decoder: decoder,
		cfg:     cfg,
		logger:  log.With("stream", cfg.Stream),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}, nil
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(logger *slog.Logger) *Monitor {
	m.logger = logger.With("stream", m.cfg.Stream)
	return m
}

// WithMetrics sets a metrics provider.
func (m *Monitor) WithMetrics(metrics *observability.Metrics) *Monitor {
	m.metrics = metrics
	return m
}

// WithTracer sets a tracer.
func (m *Monitor) WithTracer(tracer *observability.Tracer) *Monitor {
	m.tracer = tracer
	return m
}

// Start runs a tick every interval until ctx is cancelled or Stop is called.
// Ticks run on a single goroutine so they never overlap; ticks missed while
// one is running are dropped.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.logger.Info("monitor started", "interval", m.cfg.Interval)

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if _, err := m.Tick(ctx); err != nil && ctx.Err() == nil {
					m.logger.Error("monitor tick failed", "error", err)
				}
			}
		}
	}()
}

// Tick scans the stream once, logs the rates and stores the report.
func (m *Monitor) Tick(ctx context.Context) (Report, error) {
	start := time.Now()
	ctx, span := m.tracer.StartSpan(ctx, observability.SpanMonitorTick,
		observability.WithAttributes(map[string]any{
			observability.AttrStream: m.cfg.Stream,
		}),
	)
	defer span.End()

	agg := newAggregator(m.decoder)
	err := m.client.Scan(ctx, m.cfg.Stream, m.cfg.PageSize, func(page []domain.Entry) error {
		for _, entry := range page {
			if err := agg.add(entry); err != nil {
				m.logger.Warn("skipped malformed entry", "entry_id", entry.ID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.SpanStatusError, "scan failed")
		return Report{}, err
	}

	report := agg.report(m.now())
	m.store(report)
	m.record(ctx, report, time.Since(start))
	span.SetAttribute(observability.AttrEntryCount, report.Total)

	if report.Empty() {
		m.logger.Info("no processed messages", "skipped", report.Skipped)
		return report, nil
	}

	m.logger.Info("overall throughput",
		"rate", report.Overall,
		"total", report.Total,
		"seconds", report.Seconds,
		"skipped", report.Skipped,
	)
	for _, c := range report.Consumers {
		m.logger.Info("consumer throughput",
			"consumer_id", c.ID,
			"rate", c.Rate,
			"total", c.Total,
			"seconds", c.Seconds,
		)
	}
	return report, nil
}

func (m *Monitor) record(ctx context.Context, r Report, d time.Duration) {
	m.metrics.MonitorTick(ctx, d, r.Skipped)
	m.metrics.StreamLength(ctx, m.cfg.Stream, int64(r.Total+r.Skipped))
	if r.Empty() {
		return
	}
	m.metrics.ThroughputOverall(ctx, r.Overall)
	for _, c := range r.Consumers {
		m.metrics.ThroughputConsumer(ctx, c.ID, c.Rate)
	}
}

func (m *Monitor) store(r Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = &r
}

// Latest returns the report of the most recent successful tick.
func (m *Monitor) Latest() (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Report{}, false
	}
	return *m.latest, true
}

// Stop signals the tick loop to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// StopAndWait stops the loop and waits up to timeout for a running tick to finish.
func (m *Monitor) StopAndWait(timeout time.Duration) error {
	m.Stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
