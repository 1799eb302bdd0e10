// Package tracing configures the OpenTelemetry tracer provider and offers the
// span helpers used by the application service and the gateway.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used across the module.
const InstrumentationName = "github.com/turtacn/KeyIP-FamilyExplorer"

// Config mirrors config.TracingConfig so that this package stays free of the
// config import.
type Config struct {
	Enabled     bool
	ServiceName string
	SampleRatio float64
}

// Setup installs a global tracer provider. Exporters are attached by the
// caller through opts (none by default, spans stay in-process). The returned
// function flushes and shuts the provider down.
func Setup(cfg Config, opts ...sdktrace.TracerProviderOption) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		res = resource.Default()
	}

	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	tp := sdktrace.NewTracerProvider(append(base, opts...)...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Start opens a span named name with the given attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span (when non-nil) and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Attribute helpers for the explorer's common keys.
func ExplorationID(id string) attribute.KeyValue { return attribute.String("exploration.id", id) }
func PatentID(id string) attribute.KeyValue      { return attribute.String("patent.id", id) }
func Operation(op string) attribute.KeyValue     { return attribute.String("operation", op) }
func Count(key string, n int) attribute.KeyValue { return attribute.Int(key, n) }
