package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/stiffinWanjohi/streampool/internal/observability"
)

func init() {
	observability.RegisterMetricsProvider("otel", newMetricsProviderFromConfig)
	observability.RegisterMetricsProvider("otlp", newMetricsProviderFromConfig)
}

func newMetricsProviderFromConfig(ctx context.Context, cfg observability.ProviderConfig) (observability.MetricsProvider, error) {
	return NewMetricsProvider(ctx, MetricsConfig{
		Service:        serviceFrom(cfg),
		OTLPEndpoint:   cfg.Endpoint,
		ExportInterval: cfg.ExportInterval,
	})
}

const defaultExportInterval = 15 * time.Second

// MetricsConfig configures the OTLP metrics pipeline.
type MetricsConfig struct {
	Service        Service
	OTLPEndpoint   string
	ExportInterval time.Duration
}

// MetricsProvider pushes the pipeline's counters, gauges and timings to an
// OTLP collector. Instruments are created on first use and cached by name.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

var _ observability.MetricsProvider = (*MetricsProvider)(nil)

// NewMetricsProvider creates a meter provider exporting over OTLP/gRPC when an endpoint is set.
func NewMetricsProvider(ctx context.Context, cfg MetricsConfig) (*MetricsProvider, error) {
	res, err := cfg.Service.resource()
	if err != nil {
		return nil, err
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = defaultExportInterval
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &MetricsProvider{
		provider:   provider,
		meter:      provider.Meter(cfg.Service.Name),
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

func (p *MetricsProvider) Counter(ctx context.Context, name string, value int64, tags map[string]string) {
	c := cached(&p.mu, p.counters, name, func(n string) (metric.Int64Counter, error) {
		return p.meter.Int64Counter(n)
	})
	c.Add(ctx, value, withTags(tags))
}

func (p *MetricsProvider) Gauge(ctx context.Context, name string, value float64, tags map[string]string) {
	g := cached(&p.mu, p.gauges, name, func(n string) (metric.Float64Gauge, error) {
		return p.meter.Float64Gauge(n)
	})
	g.Record(ctx, value, withTags(tags))
}

func (p *MetricsProvider) Histogram(ctx context.Context, name string, value float64, tags map[string]string) {
	p.histogram(name, "").Record(ctx, value, withTags(tags))
}

// Timing records seconds, matching the prometheus provider's *_seconds histograms.
func (p *MetricsProvider) Timing(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	p.histogram(name, "s").Record(ctx, duration.Seconds(), withTags(tags))
}

func (p *MetricsProvider) histogram(name, unit string) metric.Float64Histogram {
	return cached(&p.mu, p.histograms, name, func(n string) (metric.Float64Histogram, error) {
		if unit == "" {
			return p.meter.Float64Histogram(n)
		}
		return p.meter.Float64Histogram(n, metric.WithUnit(unit))
	})
}

func (p *MetricsProvider) Flush(ctx context.Context) error {
	return p.provider.ForceFlush(ctx)
}

func (p *MetricsProvider) Close(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// cached returns the instrument registered under name, creating it on first use.
func cached[T any](mu *sync.RWMutex, instruments map[string]T, name string, create func(string) (T, error)) T {
	mu.RLock()
	inst, ok := instruments[name]
	mu.RUnlock()
	if ok {
		return inst
	}

	mu.Lock()
	defer mu.Unlock()
	if inst, ok = instruments[name]; ok {
		return inst
	}
	inst, _ = create(name)
	instruments[name] = inst
	return inst
}

func withTags(tags map[string]string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return metric.WithAttributes(attrs...)
}
