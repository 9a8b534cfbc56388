// Package processor turns claimed messages into processed records.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/stiffinWanjohi/streampool/internal/domain"
)

// Processor stamps a message with the identity of the consumer that handled it.
// It is safe for concurrent use.
type Processor struct {
	identity string
	delay    time.Duration
	now      func() time.Time
}

// New creates a processor for the given consumer identity with no delay.
func New(identity string) *Processor {
	return &Processor{identity: identity, now: time.Now}
}

// WithDelay returns a copy that waits d before building each record. Zero disables the wait.
func (p *Processor) WithDelay(d time.Duration) *Processor {
	next := *p
	next.delay = d
	return &next
}

// WithClock returns a copy that reads completion time from now.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	next := *p
	next.now = now
	return &next
}

// Identity returns the processedBy value stamped on every record.
func (p *Processor) Identity() string {
	return p.identity
}

// Process waits the configured delay and returns the processed record.
// processedAt is read after the delay.
func (p *Processor) Process(ctx context.Context, msg domain.Message) (domain.ProcessedMessage, error) {
	if msg.ID == "" {
		return domain.ProcessedMessage{}, fmt.Errorf("%w: empty message id", domain.ErrInvalidMessage)
	}
	if p.identity == "" {
		return domain.ProcessedMessage{}, fmt.Errorf("%w: empty consumer identity", domain.ErrInvalidMessage)
	}

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.ProcessedMessage{}, ctx.Err()
		case <-timer.C:
		}
	}

	return domain.NewProcessedMessage(msg, p.identity, p.now()), nil
}
