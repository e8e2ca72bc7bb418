package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("gmail_trash_message").
		WithResource("m0001").
		WithStrategy("token_file").
		WithReadOnly(false).
		Build()

	got := make(map[string]interface{})
	for _, attr := range attrs {
		got[string(attr.Key)] = attr.Value.AsInterface()
	}
	assert.Equal(t, map[string]interface{}{
		SpanAttrTool:       "gmail_trash_message",
		SpanAttrResourceID: "m0001",
		SpanAttrStrategy:   "token_file",
		SpanAttrReadOnly:   false,
	}, got)

	assert.Len(t, NewSpanAttributeBuilder().WithTool("t").WithResource("").WithStrategy("").Build(), 1)
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestStartToolSpan(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartToolSpan(context.Background(), "gmail_get_message")
	assert.NotEmpty(t, GetTraceID(ctx))
	SetSpanError(span, "not_found", errors.New("missing"))
	span.End()

	ended := recorder.Ended()
	assert.Len(t, ended, 1)
	assert.Equal(t, "tool.gmail_get_message", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	var kind string
	for _, attr := range ended[0].Attributes() {
		if string(attr.Key) == SpanAttrErrorKind {
			kind = attr.Value.AsString()
		}
	}
	assert.Equal(t, "not_found", kind)
}

func TestStartSpan_Success(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSpan(context.Background(), "credentials.resolve")
	SetSpanError(span, "auth", nil)
	SetSpanSuccess(span)
	span.End()

	ended := recorder.Ended()
	assert.Len(t, ended, 1)
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}
