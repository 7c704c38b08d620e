// Package telemetry wires OpenTelemetry tracing and metrics into brm.
//
// Everything here is opt-in: without BRM_OTEL_ENABLED=true, Init installs
// no-op providers and instrumented code paths cost nothing.
//
// Environment:
//
//	BRM_OTEL_ENABLED=true                turn telemetry on
//	BRM_OTEL_STDOUT=true                 pretty-print spans and metrics (dev mode)
//	OTEL_EXPORTER_OTLP_ENDPOINT          OTLP gRPC collector, e.g. localhost:4317
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT  metrics-only collector override
//	OTEL_SERVICE_NAME                    override the reported service name
//
// With telemetry on but no exporter configured, spans fall back to stdout so
// a bare BRM_OTEL_ENABLED=true run still shows something.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/brmkit/brm"

// teardown collects provider shutdown hooks registered by Init.
var teardown []func(context.Context) error

// Enabled reports whether BRM_OTEL_ENABLED=true.
func Enabled() bool {
	return os.Getenv("BRM_OTEL_ENABLED") == "true"
}

// Init installs the global tracer and meter providers. Disabled telemetry
// gets no-op providers; enabled telemetry gets SDK providers with the
// exporters the environment selects.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	if err := installTraces(ctx, res); err != nil {
		return fmt.Errorf("telemetry: traces: %w", err)
	}
	if err := installMetrics(ctx, res); err != nil {
		return fmt.Errorf("telemetry: metrics: %w", err)
	}
	return nil
}

func installTraces(ctx context.Context, res *resource.Resource) error {
	exporters, err := spanExporters(ctx)
	if err != nil {
		return err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	for _, exp := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	teardown = append(teardown, tp.Shutdown)
	return nil
}

func installMetrics(ctx context.Context, res *resource.Resource) error {
	readers, err := metricReaders(ctx)
	if err != nil {
		return err
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	teardown = append(teardown, mp.Shutdown)
	return nil
}

// Tracer returns a tracer for name, defaulting to the module scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for name, defaulting to the module scope.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics and tears the providers down.
// Call once on process exit with a bounded context.
func Shutdown(ctx context.Context) {
	for _, fn := range teardown {
		_ = fn(ctx)
	}
	teardown = nil
}
