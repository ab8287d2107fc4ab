package kernelevents

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer opens a real OpenTelemetry span for each nested operation (a
// provider call, a tool call, a planning step) and derives the kernel's
// SpanID from it, so the causality plumbing and any attached trace backend
// describe the same spans. With no TracerProvider configured, spans are
// created against otel's global no-op provider — cheap, and carrying no
// valid SpanContext, the same fallback the teacher's
// observability.NewTracer takes when no OTLP endpoint is set.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps the given OpenTelemetry TracerProvider under the given
// instrumentation name. A nil provider falls back to otel.GetTracerProvider,
// the process-wide default (a no-op unless the caller has called
// otel.SetTracerProvider with a real one).
func NewTracer(name string, provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(name)}
}

// NewInProcessTracerProvider builds a TracerProvider with no exporter
// attached: spans are created, attributed, and ended, but never shipped
// anywhere. Callers that want real export should build their own
// sdktrace.TracerProvider with a batcher/exporter and pass it to NewTracer.
func NewInProcessTracerProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider()
}

// Start opens a span for a nested operation and returns the span-bearing
// context, the span itself (the caller must End it), and the SpanID
// derived from the span's SpanContext. parentSpan, if non-empty, is
// recorded as a span attribute for correlation in exported traces — OTel's
// own span parentage is driven by the context passed in, not this string.
func (t *Tracer) Start(ctx context.Context, name string, parentSpan SpanID) (context.Context, trace.Span, SpanID) {
	ctx, span := t.tracer.Start(ctx, name)
	if parentSpan != "" {
		span.SetAttributes(attribute.String("kernel.parent_span_id", string(parentSpan)))
	}
	id := NewSpanID()
	if sc := span.SpanContext(); sc.HasSpanID() {
		id = SpanID(sc.SpanID().String())
	}
	return ctx, span, id
}

// End closes the span, recording err as a span error when non-nil.
func (t *Tracer) End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
