// Package trace provides tracing instrumentation for CDP commands and page
// navigations.
package trace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/grafana/downstage/log"
)

const tracerName = "downstage"

// liveSpan represents an active span associated with a page navigation.
// API calls made on a page after a navigation are parented to it.
type liveSpan struct {
	ctx  context.Context
	span trace.Span
}

// Tracer generates spans for CDP commands, navigations and page API calls.
// A nil *Tracer is valid and generates noop spans.
type Tracer struct {
	logger *log.Logger

	trace.Tracer

	metadata []attribute.KeyValue

	liveSpansMu sync.Mutex
	liveSpans   map[string]*liveSpan
}

// NewTracer creates a new Tracer from the given TracerProvider.
func NewTracer(
	logger *log.Logger, tp trace.TracerProvider, metadata map[string]string, options ...trace.TracerOption,
) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracer{
		logger:    logger,
		Tracer:    tp.Tracer(tracerName, options...),
		metadata:  buildMetadataAttributes(metadata),
		liveSpans: make(map[string]*liveSpan),
	}
}

// Start overrides the underlying OTEL tracer method to include the tracer metadata.
func (t *Tracer) Start(
	ctx context.Context, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(t.metadata...))
	return t.Tracer.Start(ctx, spanName, opts...)
}

// TraceCommand starts a client span for one CDP command. It's the caller's
// responsibility to end it, usually through End.
func (t *Tracer) TraceCommand(
	ctx context.Context, method, sessionID string, id int64,
) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noop.Span{}
	}
	return t.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cdp.method", method),
			attribute.String("cdp.session_id", sessionID),
			attribute.Int64("cdp.message_id", id),
		),
	)
}

// TraceNavigation records a new liveSpan for targetID. A previous liveSpan
// of the same target is ended first. Later TraceAPICall calls for the
// target are parented to this span until the next navigation or End.
func (t *Tracer) TraceNavigation(
	ctx context.Context, targetID, url string,
) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noop.Span{}
	}

	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	ls := t.liveSpans[targetID]
	if ls != nil {
		ls.span.End()
	} else {
		ls = &liveSpan{}
	}

	ls.ctx, ls.span = t.Start(ctx, "navigation", trace.WithAttributes(
		attribute.String("page.target_id", targetID),
		attribute.String("page.url", url),
	))
	t.liveSpans[targetID] = ls

	t.logger.Debugf("Tracer:TraceNavigation", "tid:%v traceID:%q", targetID, GetTraceID(ls.span.SpanContext()))

	return ls.ctx, ls.span
}

// TraceAPICall starts a span for a page-level operation of targetID. It is
// the caller's responsibility to end it.
func (t *Tracer) TraceAPICall(
	ctx context.Context, targetID, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noop.Span{}
	}

	t.liveSpansMu.Lock()
	ls := t.liveSpans[targetID]
	t.liveSpansMu.Unlock()

	if ls == nil {
		return t.Start(ctx, spanName, opts...)
	}
	// Keep the caller's cancellation but the navigation's parent span.
	return t.Start(trace.ContextWithSpan(ctx, ls.span), spanName, opts...)
}

// EndTarget ends and forgets the live span of targetID, if any.
func (t *Tracer) EndTarget(targetID string) {
	if t == nil {
		return
	}

	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	if ls, ok := t.liveSpans[targetID]; ok {
		ls.span.End()
		delete(t.liveSpans, targetID)
	}
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetTraceID returns the trace ID of spanCtx or an empty string.
func GetTraceID(spanCtx trace.SpanContext) string {
	if spanCtx.HasTraceID() {
		traceID := spanCtx.TraceID()
		return traceID.String()
	}
	return ""
}

func buildMetadataAttributes(metadata map[string]string) []attribute.KeyValue {
	meta := make([]attribute.KeyValue, 0, len(metadata))
	for mk, mv := range metadata {
		meta = append(meta, attribute.String(mk, mv))
	}

	return meta
}
