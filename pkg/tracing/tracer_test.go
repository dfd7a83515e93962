package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartAndFail(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Start(context.Background(), "graph.traverse", attribute.Int("dualstore.depth", 3))
	Fail(span, errors.New("bolt: connection reset"))
	Fail(span, nil)
	span.End()

	ended := rec.Ended()
	if assert.Len(t, ended, 1) {
		assert.Equal(t, "graph.traverse", ended[0].Name())
		assert.Equal(t, codes.Error, ended[0].Status().Code)
		assert.Contains(t, ended[0].Attributes(), attribute.Int("dualstore.depth", 3))
	}
}
