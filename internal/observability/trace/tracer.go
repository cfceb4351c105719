// Package trace provides tracing capabilities for gradkit.
// It integrates the OpenTelemetry API to create spans around epochs and
// other long-running phases of a training run. Exporter wiring is left to
// the embedding application; by default the global (no-op) provider is used.
package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer defines the tracing interface consumed by the training core
type Tracer interface {
	// Start creates a new span
	Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// Span is the subset of the OpenTelemetry span surface used by gradkit
type Span interface {
	// End completes the span
	End()

	// SetAttributes sets attributes on the span
	SetAttributes(attrs ...attribute.KeyValue)

	// RecordError records an error on the span
	RecordError(err error)
}

// OtelTracer wraps an OpenTelemetry tracer
type OtelTracer struct {
	tracer oteltrace.Tracer
}

// NewTracer creates a tracer backed by the global OpenTelemetry provider.
// If the application never installs a real provider this is a no-op tracer.
func NewTracer(instrumentationName string) *OtelTracer {
	return &OtelTracer{tracer: otel.GetTracerProvider().Tracer(instrumentationName)}
}

// Start creates a new span
func (t *OtelTracer) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, spanName, oteltrace.WithAttributes(attrs...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// NoopTracer is a tracer that does nothing
type NoopTracer struct{}

// NewNoopTracer creates a no-op tracer
func NewNoopTracer() Tracer {
	return &NoopTracer{}
}

// Start returns the context unchanged and a no-op span
func (t *NoopTracer) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, Span) {
	_, span := noop.NewTracerProvider().Tracer("noop").Start(ctx, spanName)
	return ctx, &otelSpan{span: span}
}
