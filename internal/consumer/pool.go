package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/processor"
	"github.com/stiffinWanjohi/streampool/internal/roster"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

const (
	// Pacing after a failed consume cycle.
	minErrorBackoff = 100 * time.Millisecond
	maxErrorBackoff = 5 * time.Second
)

var (
	// ErrPoolStarted is returned by Start on a pool that is already running.
	ErrPoolStarted = errors.New("consumer pool already started")

	// ErrShutdownTimeout is returned by StopAndWait when loops outlive the timeout.
	ErrShutdownTimeout = errors.New("consumer pool shutdown timed out")
)

// Pool runs a fixed number of StreamConsumers, each in its own goroutine,
// all competing for entries of the same consumer group.
type Pool struct {
	client  *stream.Client
	roster  *roster.Roster
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	newID   func() string

	mu        sync.Mutex
	consumers []*StreamConsumer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPool creates a pool over client whose identities are tracked in r.
func NewPool(client *stream.Client, r *roster.Roster, cfg Config) *Pool {
	return &Pool{
		client: client,
		roster: r,
		cfg:    cfg,
		logger: log,
		newID:  uuid.NewString,
	}
}

// WithLogger sets the logger used by the pool and its consumers.
func (p *Pool) WithLogger(logger *slog.Logger) *Pool {
	p.logger = logger
	return p
}

// WithMetrics sets a metrics provider.
func (p *Pool) WithMetrics(metrics *observability.Metrics) *Pool {
	p.metrics = metrics
	return p
}

// WithTracer sets a tracer.
func (p *Pool) WithTracer(tracer *observability.Tracer) *Pool {
	p.tracer = tracer
	return p
}

// EnsureGroup creates the consumer group on the source stream, creating the
// stream if needed. An existing group is success.
func (p *Pool) EnsureGroup(ctx context.Context) error {
	created, err := p.client.CreateGroup(ctx, p.cfg.Source, p.cfg.Group, stream.StartNew)
	if err != nil {
		return err
	}
	if created {
		p.logger.Info("consumer group created", "group", p.cfg.Group, "stream", p.cfg.Source)
	} else {
		p.logger.Info("consumer group already exists", "group", p.cfg.Group, "stream", p.cfg.Source)
	}
	return nil
}

// Start resets the roster and launches n consumers with fresh identities.
// The loops run until ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", config.ErrInvalidConsumerCount, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrPoolStarted
	}

	if err := p.roster.Reset(ctx); err != nil {
		return err
	}

	consumers := make([]*StreamConsumer, 0, n)
	for i := 0; i < n; i++ {
		c := p.newConsumer(p.newID())
		if err := p.roster.Register(ctx, c.ID()); err != nil {
			// leave no partial roster behind so a later Start begins clean
			_ = p.roster.Reset(context.WithoutCancel(ctx))
			return err
		}
		consumers = append(consumers, c)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.consumers = consumers

	for _, c := range consumers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(runCtx, c)
		}()
	}

	p.metrics.PoolSize(ctx, n)
	p.logger.Info("consumer pool started", "count", n, "group", p.cfg.Group, "stream", p.cfg.Source)
	return nil
}

func (p *Pool) newConsumer(id string) *StreamConsumer {
	proc := processor.New(id).WithDelay(p.cfg.ProcessingDelay)
	return NewStreamConsumer(p.client, proc, p.cfg).
		WithLogger(p.logger).
		WithMetrics(p.metrics).
		WithTracer(p.tracer)
}

func (p *Pool) loop(ctx context.Context, c *StreamConsumer) {
	logger := p.logger.With("consumer_id", c.ID())
	logger.Debug("consumer started")
	defer logger.Debug("consumer stopped")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minErrorBackoff
	b.MaxInterval = maxErrorBackoff
	b.MaxElapsedTime = 0
	attempt := 0

	for ctx.Err() == nil {
		err := c.Consume(ctx)
		switch {
		case err == nil, errors.Is(err, domain.ErrNoMessages):
			// the claim already blocked for the timeout, so there is nothing to wait for
			if attempt > 0 {
				b.Reset()
				attempt = 0
			}
			continue
		case ctx.Err() != nil:
			return
		}

		attempt++
		wait := b.NextBackOff()
		logger.Error("consume failed", "error", err, "attempt", attempt, "retry_in", wait)
		p.metrics.PoolRestart(ctx, c.ID(), attempt)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Stop cancels every consumer loop. Entries already claimed are still
// published and acknowledged.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		p.logger.Info("stopping consumer pool")
		cancel()
	}
}

// Wait blocks until all consumer loops have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// StopAndWait stops the pool and waits up to timeout for the loops to exit.
func (p *Pool) StopAndWait(timeout time.Duration) error {
	p.Stop()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Roster returns the identities of the started consumers in start order.
func (p *Pool) Roster() []string {
	return p.roster.List()
}

// Size returns the number of started consumers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.consumers)
}
