// Package telemetry provides OpenTelemetry tracing and metrics for adapter
// operations.
//
// A nil *Provider is valid and records nothing, so adapters can call it
// unconditionally.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the telemetry configuration.
type Config struct {
	// ServiceName is the name of the service (e.g., "kcasbin").
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP exporter endpoint for traces.
	// Leave empty to disable trace export.
	OTLPEndpoint string

	// SamplingRate is the trace sampling rate (0.0-1.0).
	SamplingRate float64

	// Enabled determines if telemetry is active.
	Enabled bool
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "kcasbin",
		ServiceVersion: "1.0.0",
		SamplingRate:   1.0,
		Enabled:        true,
	}
}

// Provider manages OpenTelemetry tracer and meter providers.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	operationCounter  metric.Int64Counter
	operationDuration metric.Float64Histogram
	rulesAffected     metric.Int64Counter
}

// NewProvider creates a provider exporting traces over OTLP (when an endpoint
// is set) and metrics through the Prometheus exporter. It installs itself as
// the global otel provider.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{config: cfg}, nil
	}

	p := &Provider{config: cfg}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if err := p.setupTracing(res); err != nil {
		return nil, err
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)

	if err := p.initMetrics(p.meterProvider.Meter(cfg.ServiceName)); err != nil {
		return nil, err
	}

	return p, nil
}

// NewProviderWith builds a provider from existing SDK providers without
// touching the otel globals.
func NewProviderWith(name string, tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) (*Provider, error) {
	p := &Provider{
		config:         Config{ServiceName: name, Enabled: true},
		tracerProvider: tp,
		meterProvider:  mp,
	}
	if tp != nil {
		p.tracer = tp.Tracer(name)
	}
	if mp != nil {
		if err := p.initMetrics(mp.Meter(name)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Provider) setupTracing(res *resource.Resource) error {
	var sampler sdktrace.Sampler
	if p.config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if p.config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(p.config.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}

	if p.config.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(p.config.ServiceName)

	return nil
}

func (p *Provider) initMetrics(meter metric.Meter) error {
	var err error
	p.meter = meter

	p.operationCounter, err = meter.Int64Counter(
		"kcasbin.operation.total",
		metric.WithDescription("Total number of adapter operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.operationDuration, err = meter.Float64Histogram(
		"kcasbin.operation.duration",
		metric.WithDescription("Adapter operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	p.rulesAffected, err = meter.Int64Counter(
		"kcasbin.rules.affected",
		metric.WithDescription("Rules read, written or deleted by adapter operations"),
		metric.WithUnit("1"),
	)
	return err
}

// Shutdown gracefully shuts down the telemetry providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Tracer returns the tracer instance.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return otel.Tracer("kcasbin")
	}
	return p.tracer
}

// RecordOperation records the outcome of one adapter operation.
func (p *Provider) RecordOperation(ctx context.Context, op string, rules int64, duration time.Duration, err error) {
	if p == nil || p.operationCounter == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", status),
	)
	p.operationCounter.Add(ctx, 1, attrs)
	p.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("operation", op)))
	if err == nil && rules > 0 {
		p.rulesAffected.Add(ctx, rules, metric.WithAttributes(attribute.String("operation", op)))
	}
}
