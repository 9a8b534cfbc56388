// Package consumer runs the claim, process, publish and acknowledge loop
// over a Redis stream consumer group.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/processor"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

var log = logging.Component("consumer")

// Failure stages reported to metrics.
const (
	stageClaim   = "claim"
	stageDecode  = "decode"
	stageProcess = "process"
	stagePublish = "publish"
	stageAck     = "ack"
)

// Broker is the subset of stream operations a consumer needs.
// *stream.Client implements it.
type Broker interface {
	Claim(ctx context.Context, args stream.ClaimArgs) ([]domain.Entry, error)
	Append(ctx context.Context, stream string, fields map[string]any) (string, error)
	Ack(ctx context.Context, stream, group string, ids ...string) (int64, error)
}

// Config holds the stream names and claim parameters shared by every consumer.
type Config struct {
	Source          string
	Target          string
	Group           string
	BatchSize       int64
	BlockTimeout    time.Duration
	ProcessingDelay time.Duration
}

// ConfigFrom extracts consumer settings from the application configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Source:          cfg.Streams.Source,
		Target:          cfg.Streams.Target,
		Group:           cfg.Streams.Group,
		BatchSize:       cfg.Pool.BatchSize,
		BlockTimeout:    cfg.Pool.BlockTimeout,
		ProcessingDelay: cfg.Pool.ProcessingDelay,
	}
}

// StreamConsumer is one member of the consumer group bound to a single identity.
type StreamConsumer struct {
	broker    Broker
	processor *processor.Processor
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// NewStreamConsumer creates a consumer whose group identity is the processor's identity.
func NewStreamConsumer(broker Broker, proc *processor.Processor, cfg Config) *StreamConsumer {
	return &StreamConsumer{
		broker:    broker,
		processor: proc,
		cfg:       cfg,
		logger:    log.With("consumer_id", proc.Identity()),
	}
}

// WithLogger sets the logger; the consumer_id attribute is added.
func (c *StreamConsumer) WithLogger(logger *slog.Logger) *StreamConsumer {
	c.logger = logger.With("consumer_id", c.ID())
	return c
}

// WithMetrics sets a metrics provider.
func (c *StreamConsumer) WithMetrics(metrics *observability.Metrics) *StreamConsumer {
	c.metrics = metrics
	return c
}

// WithTracer sets a tracer.
func (c *StreamConsumer) WithTracer(tracer *observability.Tracer) *StreamConsumer {
	c.tracer = tracer
	return c
}

// ID returns the consumer identity.
func (c *StreamConsumer) ID() string {
	return c.processor.Identity()
}

// Consume claims up to the batch size of new entries and handles each of them.
// It returns domain.ErrNoMessages when nothing arrived within the block timeout.
// A failing entry does not stop the rest of the batch; the errors are joined.
func (c *StreamConsumer) Consume(ctx context.Context) error {
	entries, err := c.broker.Claim(ctx, stream.ClaimArgs{
		Stream:   c.cfg.Source,
		Group:    c.cfg.Group,
		Consumer: c.ID(),
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.BlockTimeout,
	})
	if errors.Is(err, domain.ErrNoMessages) {
		return err
	}
	if err != nil {
		if ctx.Err() == nil {
			c.metrics.ConsumeFailed(ctx, c.ID(), stageClaim)
		}
		return fmt.Errorf("claim from %s: %w", c.cfg.Source, err)
	}

	var errs []error
	for _, entry := range entries {
		if err := c.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handle processes an entry already delivered to this consumer, publishes the
// result to the target stream and acknowledges the entry. The acknowledgment
// is only sent after the publish succeeded. Cancellation of ctx does not
// interrupt a started entry.
func (c *StreamConsumer) Handle(ctx context.Context, entry domain.Entry) error {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanConsumerHandle,
		observability.WithSpanKind(observability.SpanKindConsumer),
		observability.WithAttributes(map[string]any{
			observability.AttrEntryID:    entry.ID,
			observability.AttrConsumerID: c.ID(),
			observability.AttrStream:     c.cfg.Source,
			observability.AttrGroup:      c.cfg.Group,
		}),
	)
	defer span.End()

	logger := c.logger.With("entry_id", entry.ID)
	c.metrics.MessageClaimed(ctx, c.ID())

	fail := func(stage string, err error) error {
		c.metrics.ConsumeFailed(ctx, c.ID(), stage)
		span.RecordError(err)
		span.SetStatus(observability.SpanStatusError, stage)
		logger.Error("failed to handle entry", "stage", stage, "error", err)
		return err
	}

	msg, err := domain.MessageFromEntry(entry)
	if err != nil {
		return fail(stageDecode, err)
	}
	span.SetAttribute(observability.AttrMessageID, msg.ID)
	logger = logger.With("message_id", msg.ID)

	processed, err := c.processor.Process(ctx, msg)
	if err != nil {
		return fail(stageProcess, fmt.Errorf("process entry %s: %w", entry.ID, err))
	}

	payload, err := processed.Encode()
	if err != nil {
		return fail(stagePublish, fmt.Errorf("%w: encode entry %s: %v", domain.ErrPublishFailed, entry.ID, err))
	}

	targetID, err := c.broker.Append(ctx, c.cfg.Target, map[string]any{
		domain.ProcessedMessageField: payload,
	})
	if err != nil {
		return fail(stagePublish, fmt.Errorf("%w: entry %s to %s: %v", domain.ErrPublishFailed, entry.ID, c.cfg.Target, err))
	}

	if _, err := c.broker.Ack(ctx, c.cfg.Source, c.cfg.Group, entry.ID); err != nil {
		return fail(stageAck, fmt.Errorf("%w: entry %s published as %s: %v", domain.ErrAckFailed, entry.ID, targetID, err))
	}

	c.metrics.MessageProcessed(ctx, c.ID(), time.Since(start))
	span.SetStatus(observability.SpanStatusOK, "")
	logger.Debug("processed message", "target_entry_id", targetID)
	return nil
}
