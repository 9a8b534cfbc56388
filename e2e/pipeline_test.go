package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/streampool/internal/api"
	"github.com/stiffinWanjohi/streampool/internal/app"
	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/consumer"
	"github.com/stiffinWanjohi/streampool/internal/monitor"
	"github.com/stiffinWanjohi/streampool/internal/publisher"
	"github.com/stiffinWanjohi/streampool/internal/roster"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

func setupServices(t *testing.T) *app.Services {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.URL = mr.Addr()
	cfg.Pool.Consumers = 3
	cfg.Pool.BlockTimeout = 20 * time.Millisecond
	cfg.Pool.ProcessingDelay = 0
	cfg.Metrics.Provider = "prometheus"
	require.NoError(t, cfg.Validate())

	svc, err := app.Init(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// TestPipelineE2E publishes a load, runs the pool over it, and checks the
// throughput report and the HTTP views of the result.
func TestPipelineE2E(t *testing.T) {
	svc := setupServices(t)
	cfg := svc.Config
	ctx := context.Background()

	pool := consumer.NewPool(svc.Streams, roster.New(svc.Redis, cfg.Streams.ConsumerIDsKey), consumer.ConfigFrom(cfg)).
		WithMetrics(svc.Metrics).
		WithTracer(svc.Tracer)
	require.NoError(t, pool.EnsureGroup(ctx))
	require.NoError(t, pool.Start(ctx, cfg.Pool.Consumers))

	pub := publisher.New(svc.Streams, publisher.ConfigFrom(cfg)).WithMetrics(svc.Metrics)
	const batches, batchSize = 3, 10
	for i := 0; i < batches; i++ {
		_, err := pub.PublishBatch(ctx, batchSize)
		require.NoError(t, err)
	}
	const total = batches * batchSize

	require.Eventually(t, func() bool {
		n, err := svc.Streams.Len(ctx, cfg.Streams.Target)
		return err == nil && n == total
	}, 10*time.Second, 20*time.Millisecond)
	require.NoError(t, pool.StopAndWait(time.Second))

	m, err := monitor.New(svc.Streams, monitor.ConfigFrom(cfg))
	require.NoError(t, err)
	m.WithMetrics(svc.Metrics)

	server := api.ServerConfigFrom(cfg)
	server.MetricsHandler = svc.MetricsHandler()
	server.Metrics = svc.Metrics
	server.Throughput = m
	ts := httptest.NewServer(api.NewServer(svc.Streams, server).Handler())
	defer ts.Close()

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/throughput", nil))

	report, err := m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, report.Total)
	assert.Zero(t, report.Skipped)
	assert.Positive(t, report.Overall)

	members := map[string]bool{}
	for _, id := range pool.Roster() {
		members[id] = true
	}
	sum := 0
	for _, c := range report.Consumers {
		assert.True(t, members[c.ID], "unknown consumer %s", c.ID)
		sum += c.Total
	}
	assert.Equal(t, total, sum)

	var served monitor.Report
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/throughput", &served))
	assert.Equal(t, total, served.Total)

	var consumers api.ConsumersResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/consumers", &consumers))
	assert.ElementsMatch(t, pool.Roster(), consumers.Consumers)

	var streams api.StreamsResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/streams", &streams))
	assert.Equal(t, int64(total), streams.Source.Length)
	assert.Equal(t, int64(total), streams.Target.Length)
	require.NotNil(t, streams.Source.Pending)
	assert.Zero(t, *streams.Source.Pending)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestReclaimAfterCrashE2E strands entries on a consumer that never acks and
// checks that the reclaimer completes them.
func TestReclaimAfterCrashE2E(t *testing.T) {
	svc := setupServices(t)
	cfg := svc.Config
	ctx := context.Background()

	pool := consumer.NewPool(svc.Streams, roster.New(svc.Redis, cfg.Streams.ConsumerIDsKey), consumer.ConfigFrom(cfg))
	require.NoError(t, pool.EnsureGroup(ctx))

	_, err := publisher.New(svc.Streams, publisher.ConfigFrom(cfg)).PublishBatch(ctx, 4)
	require.NoError(t, err)

	// a claim without processing models a consumer that died mid-flight
	stranded, err := svc.Streams.Claim(ctx, stream.ClaimArgs{
		Stream:   cfg.Streams.Source,
		Group:    cfg.Streams.Group,
		Consumer: "crashed",
		Count:    10,
		Block:    cfg.Pool.BlockTimeout,
	})
	require.NoError(t, err)
	require.Len(t, stranded, 4)

	rc := consumer.ReclaimConfigFrom(cfg)
	rc.MinIdle = 0
	r := consumer.NewReclaimer(svc.Streams, consumer.ConfigFrom(cfg), rc, "reclaimer-e2e")
	n, err := r.ReclaimOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	length, err := svc.Streams.Len(ctx, cfg.Streams.Target)
	require.NoError(t, err)
	assert.Equal(t, int64(4), length)

	pending, err := svc.Streams.Pending(ctx, cfg.Streams.Source, cfg.Streams.Group)
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
