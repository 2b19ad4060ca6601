// Package telemetry implements core.Telemetry with OpenTelemetry, exporting
// traces and metrics over OTLP/HTTP. Grounded on the teacher's
// telemetry/otel.go (OTelProvider: HTTP exporters, batched trace export,
// periodic metric export, global-provider registration) — trimmed of the
// teacher's name-pattern metric-type heuristic and global Registry
// singleton, since spec.md §9's design note ("no global service locator")
// argues against a package-level telemetry registry. NewProvider registers
// its tracer and meter providers as the OpenTelemetry globals; no pipeline
// component takes a *Provider or records through its Instruments.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kevinhagel/northstar-funding/core"
)

// Provider implements core.Telemetry and owns the pipeline-specific
// Instruments (see metrics.go).
type Provider struct {
	tracer         trace.Tracer
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	instruments    *Instruments

	mu           sync.RWMutex
	shutdown     bool
	shutdownOnce sync.Once
}

// NewProvider creates a Provider exporting to endpoint (an OTLP/HTTP
// collector address, e.g. "localhost:4318") tagged with serviceName.
func NewProvider(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	ctx := context.Background()

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter for %s: %w", endpoint, err)
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter for %s: %w", endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	meter := mp.Meter("northstar-funding")
	instruments, err := newInstruments(meter)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("create metric instruments: %w", err)
	}

	return &Provider{
		tracer:         tp.Tracer("northstar-funding"),
		traceProvider:  tp,
		metricProvider: mp,
		instruments:    instruments,
	}, nil
}

// Instruments exposes the pipeline-specific counters/histograms so
// components can record them directly rather than through the generic
// name-string RecordMetric (SPEC_FULL §4: candidates_created,
// duplicates_detected, blacklisted_dropped, results_scored counters, and a
// per-stage latency histogram).
func (p *Provider) Instruments() *Instruments { return p.instruments }

// StartSpan starts a span named for one stage-processing call
// (SPEC_FULL §4: "span per stage-processing call").
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shutdown || p.tracer == nil {
		return ctx, core.NoOpSpan{}
	}
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records an ad-hoc metric as a histogram observation, for
// call sites that don't have a dedicated Instruments method. Named pipeline
// metrics should prefer Instruments() directly.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shutdown || p.instruments == nil {
		return
	}
	p.instruments.recordAdHoc(context.Background(), name, value, labels)
}

// Shutdown flushes and closes the trace/metric providers. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		var errs []error
		if p.metricProvider != nil {
			if err := p.metricProvider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if p.traceProvider != nil {
			if err := p.traceProvider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("telemetry shutdown: %v", errs)
		}
	})
	return shutdownErr
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }
func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attributeFor(key, value))
}
func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
