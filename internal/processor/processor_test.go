package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/streampool/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestProcess(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 123_000_000, time.UTC)
	p := New("consumer-a").WithClock(fixedClock(at))

	got, err := p.Process(context.Background(), domain.Message{ID: "m-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.ProcessedMessage{
		ID:          "m-1",
		ProcessedAt: "2024-03-01T12:00:00.123Z",
		ProcessedBy: "consumer-a",
	}, got)
}

func TestProcess_InvalidInput(t *testing.T) {
	_, err := New("consumer-a").Process(context.Background(), domain.Message{})
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)

	_, err = New("").Process(context.Background(), domain.Message{ID: "m-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestProcess_TimestampAfterDelay(t *testing.T) {
	start := time.Now()
	p := New("consumer-a").WithDelay(20 * time.Millisecond)

	got, err := p.Process(context.Background(), domain.Message{ID: "m-1"})
	require.NoError(t, err)

	at, err := time.Parse(domain.TimestampLayout, got.ProcessedAt)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, at.Sub(start.Truncate(time.Millisecond)), 20*time.Millisecond)
}

func TestProcess_DelayHonorsCancellation(t *testing.T) {
	p := New("consumer-a").WithDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, domain.Message{ID: "m-1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithOptions_DoNotMutateReceiver(t *testing.T) {
	base := New("consumer-a")
	_ = base.WithDelay(time.Second)

	assert.Zero(t, base.delay)
	assert.Equal(t, "consumer-a", base.Identity())
}
