package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanRecordsErrors(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	c := NewClientWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	ctx := context.Background()

	require.NoError(t, c.Span(ctx, SpanLift, func(context.Context) error { return nil }, attribute.String("loki.func", "f")))
	boom := errors.New("boom")
	require.ErrorIs(t, c.Span(ctx, SpanRun, func(context.Context) error { return boom }), boom)
	require.NoError(t, c.Shutdown(ctx))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, SpanLift, spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, SpanRun, spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestNoOpClient(t *testing.T) {
	c, err := NewClient(context.Background(), "", false)
	require.NoError(t, err)
	require.False(t, c.Enabled())
	called := false
	require.NoError(t, c.Span(context.Background(), SpanBuild, func(context.Context) error {
		called = true
		return nil
	}))
	require.True(t, called)
	require.NoError(t, c.Shutdown(context.Background()))
}
