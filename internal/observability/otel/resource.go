// Package otel provides OpenTelemetry metrics and tracing providers.
// Importing it registers both under the names "otel" and "otlp".
package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/stiffinWanjohi/streampool/internal/observability"
)

// Service identifies the process in exported telemetry.
type Service struct {
	Name        string
	Version     string
	Environment string
}

func serviceFrom(cfg observability.ProviderConfig) Service {
	return Service{Name: cfg.ServiceName, Version: cfg.ServiceVersion, Environment: cfg.Environment}
}

func (s Service) resource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		// Merge fails on differing schema URLs, so this side stays schemaless.
		resource.NewSchemaless(
			semconv.ServiceName(s.Name),
			semconv.ServiceVersion(s.Version),
			attribute.String("deployment.environment", s.Environment),
		),
	)
}
