package otel

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/stiffinWanjohi/streampool/internal/observability"
)

func init() {
	observability.RegisterTracingProvider("otel", newTracingProvider)
	observability.RegisterTracingProvider("otlp", newTracingProvider)
}

func newTracingProvider(ctx context.Context, cfg observability.ProviderConfig) (observability.TracingProvider, error) {
	return NewTracingProvider(ctx, TracingConfig{
		Service:      serviceFrom(cfg),
		OTLPEndpoint: cfg.Endpoint,
		SampleRate:   cfg.SampleRate,
	})
}

// TracingConfig configures the span pipeline.
type TracingConfig struct {
	Service      Service
	OTLPEndpoint string
	SampleRate   float64
}

// TracingProvider starts OpenTelemetry spans for consumer handles, monitor
// ticks, publisher batches and API requests.
type TracingProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	prop     propagation.TextMapPropagator
}

var _ observability.TracingProvider = (*TracingProvider)(nil)

// NewTracingProvider builds the tracer provider and installs it globally.
// Without an endpoint spans are sampled but not exported.
func NewTracingProvider(ctx context.Context, cfg TracingConfig) (*TracingProvider, error) {
	res, err := cfg.Service.resource()
	if err != nil {
		return nil, err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	prop := propagation.TraceContext{}
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(prop)

	return &TracingProvider{
		provider: provider,
		tracer:   provider.Tracer(cfg.Service.Name),
		prop:     prop,
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func (p *TracingProvider) StartSpan(ctx context.Context, name string, opts ...observability.SpanOption) (context.Context, observability.Span) {
	o := observability.ApplyOptions(opts...)

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(spanKind(o.Kind))}
	if len(o.Attributes) > 0 {
		attrs := make([]attribute.KeyValue, 0, len(o.Attributes))
		for k, v := range o.Attributes {
			attrs = append(attrs, toAttribute(k, v))
		}
		startOpts = append(startOpts, trace.WithAttributes(attrs...))
	}

	ctx, span := p.tracer.Start(ctx, name, startOpts...)
	return ctx, otelSpan{span: span}
}

func (p *TracingProvider) Extract(ctx context.Context, header http.Header) context.Context {
	return p.prop.Extract(ctx, propagation.HeaderCarrier(header))
}

func (p *TracingProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() {
	s.span.End()
}

func (s otelSpan) SetAttribute(key string, value any) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s otelSpan) SetStatus(status observability.SpanStatus, description string) {
	switch status {
	case observability.SpanStatusOK:
		s.span.SetStatus(codes.Ok, "")
	case observability.SpanStatusError:
		s.span.SetStatus(codes.Error, description)
	}
}

func (s otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func spanKind(kind observability.SpanKind) trace.SpanKind {
	switch kind {
	case observability.SpanKindServer:
		return trace.SpanKindServer
	case observability.SpanKindProducer:
		return trace.SpanKindProducer
	case observability.SpanKindConsumer:
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}

// toAttribute covers the value types the pipeline sets: ids and names,
// counts and status codes.
func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
