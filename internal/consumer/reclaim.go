package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/processor"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

const (
	defaultReclaimCount = 100
	reclaimRetries      = 3
)

// ReclaimConfig controls how pending entries of dead consumers are recovered.
type ReclaimConfig struct {
	Interval time.Duration
	MinIdle  time.Duration
	Count    int64
}

// ReclaimConfigFrom extracts reclaim settings from the application configuration.
func ReclaimConfigFrom(cfg *config.Config) ReclaimConfig {
	return ReclaimConfig{
		Interval: cfg.Reclaim.Interval,
		MinIdle:  cfg.Reclaim.MinIdle,
		Count:    cfg.Reclaim.Count,
	}
}

// Reclaimer periodically transfers entries that stayed pending longer than
// MinIdle to its own consumer and handles them. It recovers entries left
// behind by crashed consumers or by a failed acknowledgment.
type Reclaimer struct {
	client   *stream.Client
	consumer *StreamConsumer
	cfg      ReclaimConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReclaimer creates a reclaimer whose consumer uses identity id.
func NewReclaimer(client *stream.Client, cfg Config, rc ReclaimConfig, id string) *Reclaimer {
	if rc.Count <= 0 {
		rc.Count = defaultReclaimCount
	}
	proc := processor.New(id).WithDelay(cfg.ProcessingDelay)
	return &Reclaimer{
		client:   client,
		consumer: NewStreamConsumer(client, proc, cfg),
		cfg:      rc,
		logger:   log.With("consumer_id", id, "role", "reclaimer"),
		stopCh:   make(chan struct{}),
	}
}

// WithLogger sets the logger.
func (r *Reclaimer) WithLogger(logger *slog.Logger) *Reclaimer {
	r.logger = logger.With("consumer_id", r.consumer.ID(), "role", "reclaimer")
	r.consumer.WithLogger(logger)
	return r
}

// WithMetrics sets a metrics provider.
func (r *Reclaimer) WithMetrics(metrics *observability.Metrics) *Reclaimer {
	r.metrics = metrics
	r.consumer.WithMetrics(metrics)
	return r
}

// WithTracer sets a tracer.
func (r *Reclaimer) WithTracer(tracer *observability.Tracer) *Reclaimer {
	r.tracer = tracer
	r.consumer.WithTracer(tracer)
	return r
}

// ID returns the reclaimer's consumer identity.
func (r *Reclaimer) ID() string {
	return r.consumer.ID()
}

// Start runs a reclaim pass every interval until ctx is cancelled or Stop is called.
func (r *Reclaimer) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		r.logger.Info("reclaimer started", "interval", r.cfg.Interval, "min_idle", r.cfg.MinIdle)

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.runWithRetry(ctx)
			}
		}
	}()
}

func (r *Reclaimer) runWithRetry(ctx context.Context) {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), reclaimRetries), ctx)

	op := func() error {
		_, err := r.ReclaimOnce(ctx)
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("reclaim pass failed", "error", err, "retry_in", wait)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil && ctx.Err() == nil {
		r.logger.Error("reclaim pass gave up", "error", err)
	}
}

// ReclaimOnce claims every pending entry idle for at least MinIdle and handles it.
// It returns the number of entries successfully published and acknowledged.
// Entries that can never be processed are acknowledged and dropped.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanConsumerReclaim,
		observability.WithAttributes(map[string]any{
			observability.AttrConsumerID: r.ID(),
			observability.AttrStream:     r.consumer.cfg.Source,
		}),
	)
	defer span.End()

	cursor := "0-0"
	handled := 0
	for {
		entries, next, err := r.client.AutoClaim(ctx, stream.AutoClaimArgs{
			Stream:   r.consumer.cfg.Source,
			Group:    r.consumer.cfg.Group,
			Consumer: r.ID(),
			MinIdle:  r.cfg.MinIdle,
			Start:    cursor,
			Count:    r.cfg.Count,
		})
		if err != nil {
			span.RecordError(err)
			return handled, err
		}

		for _, entry := range entries {
			err := r.consumer.Handle(ctx, entry)
			switch {
			case err == nil:
				handled++
			case errors.Is(err, domain.ErrMalformedEntry), errors.Is(err, domain.ErrInvalidMessage):
				r.drop(ctx, entry)
			}
		}

		if next == "" || next == "0-0" || len(entries) == 0 {
			break
		}
		cursor = next
	}

	if handled > 0 {
		r.metrics.MessageReclaimed(ctx, r.ID(), handled)
		r.logger.Info("reclaimed pending entries", "count", handled)
	}
	span.SetAttribute(observability.AttrEntryCount, handled)
	return handled, nil
}

func (r *Reclaimer) drop(ctx context.Context, entry domain.Entry) {
	cfg := r.consumer.cfg
	if _, err := r.client.Ack(ctx, cfg.Source, cfg.Group, entry.ID); err != nil {
		r.logger.Error("failed to drop malformed entry", "entry_id", entry.ID, "error", err)
		return
	}
	r.logger.Warn("dropped malformed entry", "entry_id", entry.ID)
}

// Stop signals the reclaim loop to exit.
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// StopAndWait stops the loop and waits up to timeout for it to exit.
func (r *Reclaimer) StopAndWait(timeout time.Duration) error {
	r.Stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("reclaimer shutdown timed out")
	}
}
