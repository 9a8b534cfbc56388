// Package prometheus exposes metrics in the Prometheus text format.
// Importing it registers the provider under the name "prometheus".
package prometheus

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stiffinWanjohi/streampool/internal/observability"
)

func init() {
	observability.RegisterMetricsProvider("prometheus", NewPrometheusProvider)
}

// Provider implements observability.MetricsProvider on a private registry.
// Collectors are created on first use; their label names come from the first call's tags.
type Provider struct {
	registry  *prometheus.Registry
	namespace string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var _ observability.MetricsProvider = (*Provider)(nil)

// NewPrometheusProvider creates a provider with Go runtime and process collectors registered.
func NewPrometheusProvider(_ context.Context, cfg observability.ProviderConfig) (observability.MetricsProvider, error) {
	return New(cfg.ServiceName), nil
}

// New creates a provider whose metric names are prefixed with namespace.
func New(namespace string) *Provider {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Provider{
		registry:   registry,
		namespace:  sanitizeName(namespace),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler serves the registry for scraping.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (p *Provider) Counter(_ context.Context, name string, value int64, tags map[string]string) {
	p.counter(name, tags).With(toLabels(tags)).Add(float64(value))
}

func (p *Provider) Gauge(_ context.Context, name string, value float64, tags map[string]string) {
	p.gauge(name, tags).With(toLabels(tags)).Set(value)
}

func (p *Provider) Histogram(_ context.Context, name string, value float64, tags map[string]string) {
	p.histogram(name, tags).With(toLabels(tags)).Observe(value)
}

// Timing observes the duration in seconds under name suffixed with "_seconds".
func (p *Provider) Timing(_ context.Context, name string, duration time.Duration, tags map[string]string) {
	p.histogram(name+"_seconds", tags).With(toLabels(tags)).Observe(duration.Seconds())
}

// Flush is a no-op; Prometheus pulls.
func (p *Provider) Flush(context.Context) error { return nil }

func (p *Provider) Close(context.Context) error { return nil }

func (p *Provider) counter(name string, tags map[string]string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitizeName(name)
	if c, ok := p.counters[key]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      key,
		Help:      "Counter for " + name,
	}, labelNames(tags))
	p.registry.MustRegister(c)
	p.counters[key] = c
	return c
}

func (p *Provider) gauge(name string, tags map[string]string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitizeName(name)
	if g, ok := p.gauges[key]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      key,
		Help:      "Gauge for " + name,
	}, labelNames(tags))
	p.registry.MustRegister(g)
	p.gauges[key] = g
	return g
}

func (p *Provider) histogram(name string, tags map[string]string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sanitizeName(name)
	if h, ok := p.histograms[key]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      key,
		Help:      "Histogram for " + name,
		Buckets:   prometheus.DefBuckets,
	}, labelNames(tags))
	p.registry.MustRegister(h)
	p.histograms[key] = h
	return h
}

// sanitizeName maps name onto [a-zA-Z_:][a-zA-Z0-9_:]*.
func sanitizeName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, sanitizeName(k))
	}
	sort.Strings(names)
	return names
}

func toLabels(tags map[string]string) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags))
	for k, v := range tags {
		labels[sanitizeName(k)] = v
	}
	return labels
}
