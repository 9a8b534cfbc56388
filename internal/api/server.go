// Package api serves health, metrics and pool status over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/logging"
	"github.com/stiffinWanjohi/streampool/internal/monitor"
	"github.com/stiffinWanjohi/streampool/internal/observability"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

var apiLog = logging.Component("api")

const requestTimeout = 30 * time.Second

// ThroughputSource provides the most recent throughput report.
type ThroughputSource interface {
	Latest() (monitor.Report, bool)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Source         string
	Target         string
	Group          string
	ConsumerIDsKey string

	MetricsHandler http.Handler           // Optional Prometheus handler for /metrics
	Metrics        *observability.Metrics // Optional request metrics
	Tracer         *observability.Tracer  // Optional request tracing
	Throughput     ThroughputSource       // Optional monitor for /api/v1/throughput
}

// ServerConfigFrom extracts stream names from the application configuration.
func ServerConfigFrom(cfg *config.Config) ServerConfig {
	return ServerConfig{
		Source:         cfg.Streams.Source,
		Target:         cfg.Streams.Target,
		Group:          cfg.Streams.Group,
		ConsumerIDsKey: cfg.Streams.ConsumerIDsKey,
	}
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	client *stream.Client
	cfg    ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(client *stream.Client, cfg ServerConfig) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(loggingMiddleware())
	r.Use(observability.HTTPMiddleware(cfg.Metrics, cfg.Tracer))

	s := &Server{
		router: r,
		client: client,
		cfg:    cfg,
	}

	r.Get("/health", s.healthHandler)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/consumers", s.consumersHandler)
		r.Get("/throughput", s.throughputHandler)
		r.Get("/streams", s.streamsHandler)
	})

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on srv until ctx is cancelled, then shuts down within timeout.
func Run(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		apiLog.Info("starting API server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	apiLog.Info("HTTP server stopped")
	return nil
}

func loggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			apiLog.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
