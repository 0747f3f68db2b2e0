// Package observability provides OpenTelemetry tracing and metrics for the
// deidentification pipeline, exported over OTLP gRPC. Telemetry is optional;
// with Enabled false the provider degrades to no-op instruments.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port for OTLP gRPC
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns local-development defaults with telemetry off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "gopnik",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider manages trace and metric providers plus the pipeline instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	documentsProcessed metric.Int64Counter
	detectionsFound    metric.Int64Counter
	redactionsApplied  metric.Int64Counter
	auditFailures      metric.Int64Counter
	processingDuration metric.Float64Histogram
}

// New creates an observability provider. With telemetry disabled every
// recording method is a cheap no-op.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, err
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, err
	}

	p.tracer = otel.Tracer("gopnik", trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter("gopnik", metric.WithInstrumentationVersion(config.ServiceVersion))
	if err := p.initInstruments(); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("observability: trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("observability: metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error

	p.documentsProcessed, err = p.meter.Int64Counter("gopnik.documents.processed",
		metric.WithDescription("Documents that completed the pipeline"),
		metric.WithUnit("{document}"))
	if err != nil {
		return err
	}
	p.detectionsFound, err = p.meter.Int64Counter("gopnik.detections.found",
		metric.WithDescription("PII detections produced by the hybrid engine"),
		metric.WithUnit("{detection}"))
	if err != nil {
		return err
	}
	p.redactionsApplied, err = p.meter.Int64Counter("gopnik.redactions.applied",
		metric.WithDescription("Redaction regions painted into output documents"),
		metric.WithUnit("{redaction}"))
	if err != nil {
		return err
	}
	p.auditFailures, err = p.meter.Int64Counter("gopnik.audit.failures",
		metric.WithDescription("Audit log writes that failed after retry"),
		metric.WithUnit("{failure}"))
	if err != nil {
		return err
	}
	p.processingDuration, err = p.meter.Float64Histogram("gopnik.processing.duration",
		metric.WithDescription("End-to-end document processing duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120))
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "meter provider shutdown failed", "error", err)
		}
	}
	return nil
}

// StartSpan starts a pipeline span.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if p.tracer == nil {
		return otel.Tracer("gopnik").Start(ctx, name, opts...)
	}
	return p.tracer.Start(ctx, name, opts...)
}

// RecordDocument counts a finished document and its duration.
func (p *Provider) RecordDocument(ctx context.Context, duration time.Duration) {
	if p.documentsProcessed == nil {
		return
	}
	p.documentsProcessed.Add(ctx, 1)
	p.processingDuration.Record(ctx, duration.Seconds())
}

// RecordDetections counts detections from one document.
func (p *Provider) RecordDetections(ctx context.Context, n int) {
	if p.detectionsFound == nil {
		return
	}
	p.detectionsFound.Add(ctx, int64(n))
}

// RecordRedactions counts applied redactions.
func (p *Provider) RecordRedactions(ctx context.Context, n int) {
	if p.redactionsApplied == nil {
		return
	}
	p.redactionsApplied.Add(ctx, int64(n))
}

// RecordAuditFailure counts an audit persistence failure.
func (p *Provider) RecordAuditFailure(ctx context.Context) {
	if p.auditFailures == nil {
		return
	}
	p.auditFailures.Add(ctx, 1)
}
