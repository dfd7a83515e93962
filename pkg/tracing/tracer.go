// Package tracing provides the shared OTel tracer helper for the store layers.
//
// Without a registered TracerProvider (tests, local runs without OTel) the
// global no-op provider is used and every call is inert.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dualstore"

// Start creates a span as a child of the span in ctx. The caller must End it.
//
//	ctx, span := tracing.Start(ctx, "graph.traverse",
//	    attribute.String("dualstore.entity.id", params.StartEntityID),
//	)
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it as errored. A nil err is a no-op.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
