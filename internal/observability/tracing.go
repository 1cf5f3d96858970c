// Package observability wires distributed tracing for the pipeline. Spans
// are exported over OTLP HTTP so any OTel-compatible backend can consume
// them.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tessera-ai/tessera/internal/log"
)

// Config for the tracing setup.
type Config struct {
	// Enabled turns span export on. When false, Setup returns a no-op
	// tracer and nothing is exported.
	Enabled bool
	// Endpoint is the OTLP HTTP collector host:port (default: localhost:4318).
	Endpoint string
	// ServiceName identifies this service in trace backends.
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
}

// DefaultEndpoint is the conventional local OTLP HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// Setup configures the global tracer provider and returns a tracer plus a
// shutdown function that flushes pending spans. Export failures disable
// tracing rather than failing startup: observability is never load-bearing.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (trace.Tracer, func(context.Context) error, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	noopShutdown := func(context.Context) error { return nil }

	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer("tessera"), noopShutdown, nil
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tessera"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return noop.NewTracerProvider().Tracer("tessera"), noopShutdown, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)
	return tp.Tracer("tessera"), tp.Shutdown, nil
}
