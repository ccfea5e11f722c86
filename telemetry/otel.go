package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

const instrumentationName = "github.com/yairfalse/lambdaterm"

// Config for OTEL initialization
type Config struct {
	ServiceName    string
	ServiceVersion string
	// OTLP gRPC endpoint, e.g. "localhost:4317". Empty disables OTLP export.
	Endpoint string
	Insecure bool
	// Pushgateway URL. Empty disables the push on Shutdown.
	PushgatewayURL string
}

// Provider owns the tracer and meter providers for one CLI run
type Provider struct {
	cfg            Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *promclient.Registry
	tracer         trace.Tracer

	*Metrics
}

// NewProvider creates the providers and registers them globally
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lambdaterm"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{cfg: cfg}

	if err := p.setupTracing(ctx, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, res); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, err
	}

	p.Metrics, err = NewMetrics(p.meterProvider.Meter(instrumentationName))
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if p.cfg.Endpoint != "" {
		traceOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(p.cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent(p.cfg))),
		}
		if p.cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		opts = append(opts,
			sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	return nil
}

// setupMetrics wires a Prometheus registry reader (flushed to the
// Pushgateway on Shutdown) and, when configured, an OTLP periodic reader.
func (p *Provider) setupMetrics(ctx context.Context, res *resource.Resource) error {
	p.registry = promclient.NewRegistry()

	promExporter, err := prometheus.New(prometheus.WithRegisterer(p.registry))
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}

	if p.cfg.Endpoint != "" {
		metricOpts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(p.cfg.Endpoint),
			otlpmetricgrpc.WithDialOption(grpc.WithUserAgent(userAgent(p.cfg))),
		}
		if p.cfg.Insecure {
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)

	return nil
}

func userAgent(cfg Config) string {
	if cfg.ServiceVersion == "" {
		return cfg.ServiceName
	}
	return cfg.ServiceName + "/" + cfg.ServiceVersion
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Registry returns the Prometheus registry backing the OTEL exporter.
func (p *Provider) Registry() *promclient.Registry {
	return p.registry
}

// Push sends the current metric snapshot to the configured Pushgateway.
// A no-op when no Pushgateway is configured.
func (p *Provider) Push(ctx context.Context) error {
	if p.cfg.PushgatewayURL == "" {
		return nil
	}
	err := push.New(p.cfg.PushgatewayURL, p.cfg.ServiceName).
		Gatherer(p.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.cfg.PushgatewayURL, err)
	}
	return nil
}

// Shutdown pushes metrics, then flushes and shuts down the providers.
// The push must precede the meter shutdown: the Prometheus reader stops
// collecting once its provider is gone.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.registry != nil {
		if err := p.Push(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter: %w", err))
		}
	}
	return errors.Join(errs...)
}
