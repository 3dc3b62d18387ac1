package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ExporterConfig configures where dispatch spans are exported.
type ExporterConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port, e.g. "localhost:4318".
	Endpoint string

	// ServiceName tags the exported resource. Defaults to "cwproxy".
	ServiceName string

	// Insecure disables TLS for the exporter connection.
	Insecure bool
}

// Exporter owns the process-wide TracerProvider installed by Install.
type Exporter struct {
	provider *sdktrace.TracerProvider
}

// Install configures otel's global TracerProvider to batch-export spans
// over OTLP/HTTP to cfg.Endpoint. Callers should defer Shutdown at
// process exit to flush pending spans.
func Install(ctx context.Context, cfg ExporterConfig) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry: Endpoint is required")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cwproxy"
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Exporter{provider: provider}, nil
}

// Shutdown flushes and stops the underlying TracerProvider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil || e.provider == nil {
		return nil
	}
	if err := e.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	return nil
}
