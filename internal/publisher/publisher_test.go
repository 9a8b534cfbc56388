package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

const testStream = "messages:published"

func setupTestPublisher(t *testing.T, cfg Config) (*Publisher, *stream.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg.Stream = testStream
	client := stream.NewClient(rdb)
	return New(client, cfg), client, mr
}

func TestPublishBatch(t *testing.T) {
	p, client, _ := setupTestPublisher(t, Config{BatchSize: 5})
	provider := &observability.RecordingProvider{}
	p.WithMetrics(observability.NewMetrics(provider, ""))
	ctx := context.Background()

	ids, err := p.PublishBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, ids, 5)

	entries, err := client.Range(ctx, testStream, "-", "+", 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	seen := map[string]bool{}
	for i, entry := range entries {
		msg, err := domain.MessageFromEntry(entry)
		require.NoError(t, err)
		assert.Equal(t, ids[i], msg.ID)
		_, err = uuid.Parse(msg.ID)
		assert.NoError(t, err)
		seen[msg.ID] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, float64(5), provider.CounterTotal("publisher.messages"))
}

func TestPublishBatch_WrongTypeFails(t *testing.T) {
	p, _, mr := setupTestPublisher(t, Config{BatchSize: 1})
	require.NoError(t, mr.Set(testStream, "not a stream"))

	_, err := p.PublishBatch(context.Background(), 1)
	assert.Error(t, err)
}

func TestRun_PublishesWholeBatchesUntilDeadline(t *testing.T) {
	p, client, _ := setupTestPublisher(t, Config{
		Duration:  100 * time.Millisecond,
		BatchSize: 10,
		MinPause:  5 * time.Millisecond,
		MaxPause:  15 * time.Millisecond,
	})
	rec := logging.NewRecorder()
	p.WithLogger(rec.Logger())

	total, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, total)
	assert.Zero(t, total%10)

	n, err := client.Len(context.Background(), testStream)
	require.NoError(t, err)
	assert.Equal(t, int64(total), n)

	finished := rec.Find("publishing finished")
	require.Len(t, finished, 1)
	assert.Equal(t, int64(total), finished[0].Attrs["total"])
}

func TestRun_StopsOnCancel(t *testing.T) {
	p, client, _ := setupTestPublisher(t, Config{
		Duration:  time.Hour,
		BatchSize: 3,
		MinPause:  time.Hour,
		MaxPause:  time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	total, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	n, err := client.Len(context.Background(), testStream)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRun_ZeroDurationPublishesNothing(t *testing.T) {
	p, client, _ := setupTestPublisher(t, Config{BatchSize: 3})

	total, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)

	n, err := client.Len(context.Background(), testStream)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPause_StaysWithinBounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max time.Duration
	}{
		{"range", 10 * time.Millisecond, 20 * time.Millisecond},
		{"fixed", 7 * time.Millisecond, 7 * time.Millisecond},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(nil, Config{MinPause: tt.min, MaxPause: tt.max})
			for i := 0; i < 100; i++ {
				d := p.pause()
				assert.GreaterOrEqual(t, d, tt.min)
				assert.LessOrEqual(t, d, tt.max)
			}
		})
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	got := ConfigFrom(cfg)

	assert.Equal(t, cfg.Streams.Source, got.Stream)
	assert.Equal(t, cfg.Publisher.Duration, got.Duration)
	assert.Equal(t, cfg.Publisher.BatchSize, got.BatchSize)
	assert.Equal(t, cfg.Publisher.MinPause, got.MinPause)
	assert.Equal(t, cfg.Publisher.MaxPause, got.MaxPause)
}
