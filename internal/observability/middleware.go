package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMiddleware records request counts, latencies and a server span per request.
// Either argument may be nil.
func HTTPMiddleware(metrics *Metrics, tracer *Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := tracer.Extract(r.Context(), r.Header)
			ctx, span := tracer.StartSpan(ctx, SpanHTTPRequest,
				WithSpanKind(SpanKindServer),
				WithAttributes(map[string]any{
					AttrHTTPMethod: r.Method,
					AttrHTTPRoute:  r.URL.Path,
				}),
			)
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			metrics.HTTPRequestTotal(ctx, r.Method, r.URL.Path, strconv.Itoa(status))
			metrics.HTTPRequestDuration(ctx, r.Method, r.URL.Path, time.Since(start))

			span.SetAttribute(AttrHTTPStatusCode, status)
			if status >= 500 {
				span.SetStatus(SpanStatusError, http.StatusText(status))
			}
		})
	}
}
