package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const connectTimeout = 10 * time.Second

type Options struct {
	// Endpoint is the OTLP gRPC collector address, e.g. "otel-collector:4317".
	// Tracing stays disabled when it is empty.
	Endpoint    string
	ServiceName string
	Version     string
	Insecure    bool
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(ctx context.Context) error

// Setup installs the global tracer provider. Without an endpoint the global
// no-op provider is left in place.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	tp := NewProvider(exporter, opts)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewProvider builds a batching tracer provider tagged with the service name.
func NewProvider(exporter sdktrace.SpanExporter, opts Options) *sdktrace.TracerProvider {
	if opts.ServiceName == "" {
		opts.ServiceName = "interview-service"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.Version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
}
