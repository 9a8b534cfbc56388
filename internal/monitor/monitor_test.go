package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/streampool/internal/domain"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

const testStream = "messages:processed"

func setupTestMonitor(t *testing.T) (*Monitor, *redis.Client, *logging.Recorder) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m, err := New(stream.NewClient(rdb), Config{Stream: testStream, Interval: 20 * time.Millisecond, PageSize: 4})
	require.NoError(t, err)

	rec := logging.NewRecorder()
	m.WithLogger(rec.Logger())
	return m, rdb, rec
}

func addProcessed(t *testing.T, rdb *redis.Client, id, messageID, by string) {
	t.Helper()
	payload, err := domain.ProcessedMessage{
		ID:          messageID,
		ProcessedAt: "2024-03-01T12:00:00.000Z",
		ProcessedBy: by,
	}.Encode()
	require.NoError(t, err)

	require.NoError(t, rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: testStream,
		ID:     id,
		Values: map[string]any{domain.ProcessedMessageField: payload},
	}).Err())
}

func addRaw(t *testing.T, rdb *redis.Client, id string, values map[string]any) {
	t.Helper()
	require.NoError(t, rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: testStream,
		ID:     id,
		Values: values,
	}).Err())
}

func TestTick_EmptyStream(t *testing.T) {
	m, _, rec := setupTestMonitor(t)

	report, err := m.Tick(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Empty())
	assert.Len(t, rec.Find("no processed messages"), 1)
	assert.Empty(t, rec.Find("overall throughput"))
	assert.Empty(t, rec.Find("consumer throughput"))

	latest, ok := m.Latest()
	assert.True(t, ok)
	assert.True(t, latest.Empty())
}

func TestTick_TwoSecondsOneConsumer(t *testing.T) {
	m, rdb, rec := setupTestMonitor(t)

	// five entries in second 100 and five in second 101
	for i := 0; i < 10; i++ {
		ms := 100_000 + (i/5)*1000 + i
		addProcessed(t, rdb, fmt.Sprintf("%d-0", ms), fmt.Sprintf("m-%d", i), "A")
	}

	report, err := m.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 2, report.Seconds)
	assert.Equal(t, 5.0, report.Overall)
	rate, ok := report.Rate("A")
	require.True(t, ok)
	assert.Equal(t, 5.0, rate)

	overall := rec.Find("overall throughput")
	require.Len(t, overall, 1)
	assert.Equal(t, 5.0, overall[0].Attrs["rate"])

	consumers := rec.Find("consumer throughput")
	require.Len(t, consumers, 1)
	assert.Equal(t, "A", consumers[0].Attrs["consumer_id"])
	assert.Equal(t, 5.0, consumers[0].Attrs["rate"])
}

func TestTick_PerConsumerDistinctSeconds(t *testing.T) {
	m, rdb, _ := setupTestMonitor(t)

	// A: 3 entries in second 100, 1 in 102 -> 4/2
	// B: 2 entries in second 101 -> 2/1
	addProcessed(t, rdb, "100001-0", "m1", "A")
	addProcessed(t, rdb, "100002-0", "m2", "A")
	addProcessed(t, rdb, "100003-0", "m3", "A")
	addProcessed(t, rdb, "101000-0", "m4", "B")
	addProcessed(t, rdb, "101000-1", "m5", "B")
	addProcessed(t, rdb, "102500-0", "m6", "A")

	report, err := m.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 3, report.Seconds)
	assert.Equal(t, 2.0, report.Overall)

	require.Len(t, report.Consumers, 2)
	assert.Equal(t, ConsumerRate{ID: "A", Total: 4, Seconds: 2, Rate: 2.0}, report.Consumers[0])
	assert.Equal(t, ConsumerRate{ID: "B", Total: 2, Seconds: 1, Rate: 2.0}, report.Consumers[1])
}

func TestTick_SkipsMalformedEntries(t *testing.T) {
	m, rdb, rec := setupTestMonitor(t)

	addProcessed(t, rdb, "100000-0", "m1", "A")
	addRaw(t, rdb, "100000-1", map[string]any{domain.ProcessedMessageField: "{not json"})
	addRaw(t, rdb, "100000-2", map[string]any{domain.ProcessedMessageField: `{"id":"m3","processedAt":"yesterday","processedBy":"A"}`})
	addRaw(t, rdb, "100000-3", map[string]any{domain.ProcessedMessageField: `{"id":"m4","processedAt":"2024-03-01T12:00:00.000Z"}`})
	addRaw(t, rdb, "100000-4", map[string]any{"other": "x"})
	addProcessed(t, rdb, "101000-0", "m6", "A")

	provider := &observability.RecordingProvider{}
	m.WithMetrics(observability.NewMetrics(provider, ""))

	report, err := m.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, 2, report.Seconds)
	assert.Equal(t, 1.0, report.Overall)
	assert.Len(t, rec.Find("skipped malformed entry"), 4)

	assert.Equal(t, float64(4), provider.CounterTotal("monitor.skipped"))
	v, ok := provider.LastGauge("throughput.overall", nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = provider.LastGauge("throughput.consumer", map[string]string{"consumer_id": "A"})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestTick_OnlyMalformedEntriesReportsSkipped(t *testing.T) {
	m, rdb, rec := setupTestMonitor(t)

	addRaw(t, rdb, "100000-0", map[string]any{domain.ProcessedMessageField: "{not json"})
	addRaw(t, rdb, "100000-1", map[string]any{"other": "x"})

	report, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, 2, report.Skipped)

	events := rec.Find("no processed messages")
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Attrs["skipped"])

	rec.Reset()
	require.NoError(t, rdb.Del(context.Background(), testStream).Err())
	_, err = m.Tick(context.Background())
	require.NoError(t, err)

	events = rec.Find("no processed messages")
	require.Len(t, events, 1)
	assert.Equal(t, int64(0), events[0].Attrs["skipped"])
}

func TestTick_ScansAcrossPages(t *testing.T) {
	m, rdb, _ := setupTestMonitor(t)

	// page size is 4, so 9 entries need three range calls
	for i := 0; i < 9; i++ {
		addProcessed(t, rdb, fmt.Sprintf("200000-%d", i), fmt.Sprintf("m-%d", i), "A")
	}

	report, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, report.Total)
	assert.Equal(t, 9.0, report.Overall)
}

func TestTick_NoStateBetweenTicks(t *testing.T) {
	m, rdb, _ := setupTestMonitor(t)
	addProcessed(t, rdb, "100000-0", "m1", "A")

	first, err := m.Tick(context.Background())
	require.NoError(t, err)
	second, err := m.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Overall, second.Overall)
}

func TestLatest_BeforeFirstTick(t *testing.T) {
	m, _, _ := setupTestMonitor(t)
	_, ok := m.Latest()
	assert.False(t, ok)
}

func TestStart_TicksUntilStopped(t *testing.T) {
	m, rdb, rec := setupTestMonitor(t)
	addProcessed(t, rdb, "100000-0", "m1", "A")

	m.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(rec.Find("overall throughput")) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.StopAndWait(time.Second))
	count := len(rec.Find("overall throughput"))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, len(rec.Find("overall throughput")), "no ticks after stop")
}

func TestCompute(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)

	entry := func(id, by string) domain.Entry {
		payload, err := domain.ProcessedMessage{ID: id, ProcessedAt: "2024-03-01T12:00:00.000Z", ProcessedBy: by}.Encode()
		require.NoError(t, err)
		return domain.Entry{ID: id, Fields: map[string]string{domain.ProcessedMessageField: payload}}
	}

	at := time.Unix(1_700_000_000, 0)
	report := Compute(dec, []domain.Entry{
		entry("5000-0", "b"),
		entry("5001-0", "a"),
		{ID: "garbage", Fields: map[string]string{}},
	}, at)

	assert.Equal(t, at, report.At)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2.0, report.Overall)
	require.Len(t, report.Consumers, 2)
	assert.Equal(t, "a", report.Consumers[0].ID, "sorted by identity")

	empty := Compute(dec, nil, at)
	assert.True(t, empty.Empty())
	assert.Zero(t, empty.Overall)
	assert.Empty(t, empty.Consumers)
}

func TestDecoder(t *testing.T) {
	dec, err := NewDecoder()
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"id":"m1","processedAt":"2024-03-01T12:00:00.123Z","processedBy":"c1"}`, false},
		{"extra field", `{"id":"m1","processedAt":"2024-03-01T12:00:00Z","processedBy":"c1","x":1}`, false},
		{"not json", `nope`, true},
		{"array", `[]`, true},
		{"missing processedBy", `{"id":"m1","processedAt":"2024-03-01T12:00:00Z"}`, true},
		{"empty id", `{"id":"","processedAt":"2024-03-01T12:00:00Z","processedBy":"c1"}`, true},
		{"bad timestamp", `{"id":"m1","processedAt":"01/03/2024","processedBy":"c1"}`, true},
		{"numeric id", `{"id":7,"processedAt":"2024-03-01T12:00:00Z","processedBy":"c1"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Decode(domain.Entry{ID: "1-0", Fields: map[string]string{domain.ProcessedMessageField: tt.payload}})
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
