package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// defaultServiceName is reported in telemetry when no name is configured.
const defaultServiceName = "loreweave"

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is reported in telemetry. Default: "loreweave".
	ServiceName string

	// ServiceVersion is reported in telemetry.
	ServiceVersion string

	// TraceExporter optionally exports spans (typically OTLP in production).
	// When nil, spans are still recorded in-process so correlation IDs and
	// span-enriched logging keep working, but nothing leaves the process.
	TraceExporter sdktrace.SpanExporter
}

// shutdownGroup collects provider shutdown hooks so InitProvider can hand a
// single close function back to main.
type shutdownGroup []func(context.Context) error

func (g shutdownGroup) close(ctx context.Context) error {
	var errs []error
	for _, fn := range g {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// InitProvider wires the global OTel meter and tracer providers: metrics go
// through a Prometheus exporter (scraped via GET /metrics), traces through
// cfg.TraceExporter when one is given. The returned function flushes and
// closes both providers; call it deferred from main.
func InitProvider(_ context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	res, err := serviceResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var hooks shutdownGroup

	bridge, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(bridge),
	)
	otel.SetMeterProvider(mp)
	hooks = append(hooks, mp.Shutdown)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)
	hooks = append(hooks, tp.Shutdown)

	return hooks.close, nil
}

// serviceResource describes this process to telemetry backends.
func serviceResource(cfg ProviderConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}
