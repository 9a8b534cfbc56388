package observability

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// ProviderConfig is handed to the registered factories. Metrics providers read
// ExportInterval, tracing providers read SampleRate.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP collector address; unused by prometheus
	ExportInterval time.Duration
	SampleRate     float64
}

// MetricsProviderFactory builds a MetricsProvider.
type MetricsProviderFactory func(ctx context.Context, cfg ProviderConfig) (MetricsProvider, error)

// TracingProviderFactory builds a TracingProvider.
type TracingProviderFactory func(ctx context.Context, cfg ProviderConfig) (TracingProvider, error)

var (
	registryMu       sync.RWMutex
	metricsFactories = make(map[string]MetricsProviderFactory)
	tracingFactories = make(map[string]TracingProviderFactory)
)

// RegisterMetricsProvider makes a metrics backend selectable by name.
// The prometheus and otel packages call it from init.
func RegisterMetricsProvider(name string, factory MetricsProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	metricsFactories[name] = factory
}

// RegisterTracingProvider makes a tracing backend selectable by name.
func RegisterTracingProvider(name string, factory TracingProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	tracingFactories[name] = factory
}

// NewMetricsProviderByName builds the named metrics provider.
// An empty name or "noop" selects NoopMetricsProvider.
func NewMetricsProviderByName(ctx context.Context, name string, cfg ProviderConfig) (MetricsProvider, error) {
	if name == "" || name == "noop" {
		return NoopMetricsProvider{}, nil
	}

	registryMu.RLock()
	factory, ok := metricsFactories[name]
	known := slices.Sorted(maps.Keys(metricsFactories))
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown metrics provider %q (registered: %v)", name, known)
	}
	return factory(ctx, cfg)
}

// NewTracingProviderByName builds the named tracing provider.
// An empty name or "noop" selects NoopTracingProvider.
func NewTracingProviderByName(ctx context.Context, name string, cfg ProviderConfig) (TracingProvider, error) {
	if name == "" || name == "noop" {
		return NoopTracingProvider{}, nil
	}

	registryMu.RLock()
	factory, ok := tracingFactories[name]
	known := slices.Sorted(maps.Keys(tracingFactories))
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown tracing provider %q (registered: %v)", name, known)
	}
	return factory(ctx, cfg)
}
