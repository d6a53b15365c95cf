// Package tracing wires an OpenTelemetry TracerProvider for the reply loop,
// grounded on the teacher's pkg/observability/tracer.go (exporter selection,
// sdktrace.TracerProvider with a ratio sampler, otel.SetTracerProvider),
// trimmed to two exporters: stdout (debugging, needs no collector running)
// and otlpgrpc (sends to a real OTLP collector).
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures tracing. Exporter is "stdout", "otlpgrpc", or "" (disabled).
type Config struct {
	Exporter     string
	Endpoint     string
	SamplingRate float64
	ServiceName  string
}

// Init builds and installs a global TracerProvider per cfg, returning a
// shutdown func. If cfg.Exporter is empty, tracing is a no-op and Init
// still installs a real (sampling-rate-zero) provider so spans started via
// otel.Tracer never panic, matching the teacher's always-callable GetTracer.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	rate := cfg.SamplingRate
	if cfg.Exporter == "" {
		rate = 0
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "", "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlpgrpc":
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("tracing: unknown exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "goosecore"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer off the globally installed provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
