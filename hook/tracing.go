package hook

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing is a Hook that opens an OTel span in HandlePre and closes it with
// a status in HandlePost, adapted from the teacher's tracing package (which
// spans a gRPC call) to span a worker action instead. Because the hook
// dispatcher delivers pre/post events for one action strictly before the
// next action's pre event (the worker is single-writer, spec.md §4.2), one
// in-flight span is enough — no correlation key is needed.
type Tracing struct {
	cacheName string
	tracer    trace.Tracer

	ctx  context.Context
	span trace.Span
}

// NewTracing creates a Tracing hook for cacheName. If tp is nil the global
// otel.GetTracerProvider() is used, matching tracing.TracingConfig's
// nil-means-global convention.
func NewTracing(cacheName string, tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{
		cacheName: cacheName,
		tracer:    tp.Tracer("github.com/burrowcache/burrow/hook"),
		ctx:       context.Background(),
	}
}

func (h *Tracing) HandlePre(action string, args []any) {
	ctx, span := h.tracer.Start(h.ctx, fmt.Sprintf("%s.%s", h.cacheName, action),
		trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("burrow.cache", h.cacheName),
		attribute.String("burrow.action", action),
	)
	h.ctx, h.span = ctx, span
}

func (h *Tracing) HandlePost(action string, args []any, result Result) {
	if h.span == nil {
		return
	}
	h.span.SetAttributes(attribute.String("burrow.status", result.Status))
	if result.Status == "error" {
		h.span.SetStatus(otelcodes.Error, fmt.Sprintf("%v", result.Err))
	} else {
		h.span.SetStatus(otelcodes.Ok, "")
	}
	h.span.End()
	h.span = nil
}
