package ygggo_sql

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/yggai/ygggo_sql"
	instrumentationVersion = "v0.1.0"
)

// TracingObserver opens a span on query-before and ends it on query-after.
type TracingObserver struct {
	tracer trace.Tracer
	system string
	spans  sync.Map // query ID -> trace.Span
}

// NewTracingObserver creates an observer using tp, or the global tracer
// provider when tp is nil. system is reported as db.system.
func NewTracingObserver(tp trace.TracerProvider, system string) *TracingObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingObserver{
		tracer: tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion)),
		system: system,
	}
}

// HandleEvent implements Observer.
func (o *TracingObserver) HandleEvent(ctx context.Context, e Event) {
	switch e.Type {
	case EventQueryBefore:
		o.startSpan(ctx, e)
	case EventQueryAfter:
		if v, ok := o.spans.LoadAndDelete(e.QueryID); ok {
			finishSpan(v.(trace.Span), e.Err)
		}
	}
}

// startSpan creates a new span with common database attributes.
func (o *TracingObserver) startSpan(ctx context.Context, e Event) {
	op := operationName(e.Query)
	_, span := o.tracer.Start(ctx, "ygggo_sql."+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(e.Time),
	)
	span.SetAttributes(
		attribute.String("db.system", o.system),
		attribute.String("db.operation", op),
		attribute.String("db.statement", e.Query),
		attribute.String("db.client_id", e.ClientID),
	)
	o.spans.Store(e.QueryID, span)
}

// finishSpan completes a span with error handling.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// operationName returns the leading SQL keyword of query, upper-cased.
func operationName(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}
