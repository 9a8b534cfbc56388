// Package publisher generates load on the source stream.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

var log = logging.Component("publisher")

// Config holds load generator settings.
type Config struct {
	Stream    string
	Duration  time.Duration
	BatchSize int
	MinPause  time.Duration
	MaxPause  time.Duration
}

// ConfigFrom extracts publisher settings from the application configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Stream:    cfg.Streams.Source,
		Duration:  cfg.Publisher.Duration,
		BatchSize: cfg.Publisher.BatchSize,
		MinPause:  cfg.Publisher.MinPause,
		MaxPause:  cfg.Publisher.MaxPause,
	}
}

// Publisher appends batches of fresh messages to the source stream.
type Publisher struct {
	client  *stream.Client
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	newID   func() string
	now     func() time.Time
}

// New creates a publisher writing to cfg.Stream.
func New(client *stream.Client, cfg Config) *Publisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Publisher{
		client: client,
		cfg:    cfg,
		logger: log.With("stream", cfg.Stream),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// WithLogger sets the logger.
func (p *Publisher) WithLogger(logger *slog.Logger) *Publisher {
	p.logger = logger.With("stream", p.cfg.Stream)
	return p
}

// WithMetrics sets a metrics provider.
func (p *Publisher) WithMetrics(metrics *observability.Metrics) *Publisher {
	p.metrics = metrics
	return p
}

// WithTracer sets a tracer.
func (p *Publisher) WithTracer(tracer *observability.Tracer) *Publisher {
	p.tracer = tracer
	return p
}

// PublishBatch appends n messages with fresh ids in one round trip and
// returns the message ids.
func (p *Publisher) PublishBatch(ctx context.Context, n int) ([]string, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanPublishBatch,
		observability.WithSpanKind(observability.SpanKindProducer),
		observability.WithAttributes(map[string]any{
			observability.AttrStream:     p.cfg.Stream,
			observability.AttrEntryCount: n,
		}),
	)
	defer span.End()

	ids := make([]string, n)
	batch := make([]map[string]any, n)
	for i := range batch {
		ids[i] = p.newID()
		batch[i] = map[string]any{domain.MessageIDField: ids[i]}
	}

	if _, err := p.client.AppendBatch(ctx, p.cfg.Stream, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(observability.SpanStatusError, "append failed")
		return nil, fmt.Errorf("publish batch to %s: %w", p.cfg.Stream, err)
	}

	p.metrics.MessagesPublished(ctx, n)
	return ids, nil
}

// Run publishes batches until the configured duration elapses or ctx is
// cancelled, pausing a random interval between batches. It returns the number
// of messages published.
func (p *Publisher) Run(ctx context.Context) (int, error) {
	start := p.now()
	deadline := start.Add(p.cfg.Duration)
	total := 0

	p.logger.Info("publishing started",
		"duration", p.cfg.Duration,
		"batch_size", p.cfg.BatchSize,
	)

	for p.now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		if _, err := p.PublishBatch(ctx, p.cfg.BatchSize); err != nil {
			if ctx.Err() != nil {
				break
			}
			return total, err
		}
		total += p.cfg.BatchSize
		p.logger.Debug("published batch", "count", p.cfg.BatchSize, "total", total)

		if !p.now().Before(deadline) || !sleep(ctx, p.pause()) {
			break
		}
	}

	p.logger.Info("publishing finished",
		"total", total,
		"elapsed", p.now().Sub(start).Round(time.Millisecond),
	)
	return total, nil
}

// pause returns a random duration in [MinPause, MaxPause].
func (p *Publisher) pause() time.Duration {
	span := p.cfg.MaxPause - p.cfg.MinPause
	if span <= 0 {
		return p.cfg.MinPause
	}
	return p.cfg.MinPause + rand.N(span+1)
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
