package observability

import (
	"context"
	"net/http"
)

// SpanKind says which side of an exchange a span covers.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer            // API requests
	SpanKindProducer          // publisher batches
	SpanKindConsumer          // handled stream entries
)

// SpanStatus is the outcome recorded on a span. The zero value leaves it unset.
type SpanStatus int

const (
	SpanStatusOK SpanStatus = iota + 1
	SpanStatusError
)

// Span is the subset of a trace span the pipeline writes to.
type Span interface {
	End()
	SetAttribute(key string, value any)
	SetStatus(status SpanStatus, description string)
	RecordError(err error)
}

// TracingProvider starts spans on a tracing backend.
type TracingProvider interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// Extract continues a trace whose context arrived in request headers.
	Extract(ctx context.Context, header http.Header) context.Context

	Shutdown(ctx context.Context) error
}

// SpanOption configures a span at start.
type SpanOption func(*SpanOptions)

// SpanOptions is the resolved set of SpanOption values.
type SpanOptions struct {
	Kind       SpanKind
	Attributes map[string]any
}

// ApplyOptions resolves opts for a provider implementation.
func ApplyOptions(opts ...SpanOption) SpanOptions {
	var o SpanOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithSpanKind(kind SpanKind) SpanOption {
	return func(o *SpanOptions) { o.Kind = kind }
}

// WithAttributes merges attrs into the span's start attributes.
func WithAttributes(attrs map[string]any) SpanOption {
	return func(o *SpanOptions) {
		if o.Attributes == nil {
			o.Attributes = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			o.Attributes[k] = v
		}
	}
}

// Tracer is what components hold. A nil *Tracer starts noop spans, so
// consumers, the monitor and the publisher never check for tracing being off.
type Tracer struct {
	provider TracingProvider
}

func NewTracer(provider TracingProvider) *Tracer {
	return &Tracer{provider: provider}
}

func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	if t == nil {
		return ctx, noopSpan{}
	}
	return t.provider.StartSpan(ctx, name, opts...)
}

func (t *Tracer) Extract(ctx context.Context, header http.Header) context.Context {
	if t == nil {
		return ctx
	}
	return t.provider.Extract(ctx, header)
}

// Span names.
const (
	SpanHTTPRequest     = "http.request"
	SpanConsumerHandle  = "consumer.handle"
	SpanConsumerReclaim = "consumer.reclaim"
	SpanMonitorTick     = "monitor.tick"
	SpanPublishBatch    = "publisher.batch"
)

// Attribute keys.
const (
	AttrEntryID        = "streampool.entry.id"
	AttrMessageID      = "streampool.message.id"
	AttrConsumerID     = "streampool.consumer.id"
	AttrStream         = "streampool.stream"
	AttrGroup          = "streampool.group"
	AttrEntryCount     = "streampool.entries"
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
)
