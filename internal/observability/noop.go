package observability

import (
	"context"
	"net/http"
	"time"
)

// NoopMetricsProvider discards every sample. It is selected when
// metrics.provider is empty or "noop".
type NoopMetricsProvider struct{}

var _ MetricsProvider = NoopMetricsProvider{}

func (NoopMetricsProvider) Counter(context.Context, string, int64, map[string]string)        {}
func (NoopMetricsProvider) Gauge(context.Context, string, float64, map[string]string)        {}
func (NoopMetricsProvider) Histogram(context.Context, string, float64, map[string]string)    {}
func (NoopMetricsProvider) Timing(context.Context, string, time.Duration, map[string]string) {}
func (NoopMetricsProvider) Flush(context.Context) error                                      { return nil }
func (NoopMetricsProvider) Close(context.Context) error                                      { return nil }

// NoopTracingProvider hands out spans that record nothing. It is selected
// when tracing.provider is empty or "noop".
type NoopTracingProvider struct{}

var _ TracingProvider = NoopTracingProvider{}

func (NoopTracingProvider) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracingProvider) Extract(ctx context.Context, _ http.Header) context.Context { return ctx }
func (NoopTracingProvider) Shutdown(context.Context) error                             { return nil }

type noopSpan struct{}

func (noopSpan) End()                         {}
func (noopSpan) SetAttribute(string, any)     {}
func (noopSpan) SetStatus(SpanStatus, string) {}
func (noopSpan) RecordError(error)            {}
