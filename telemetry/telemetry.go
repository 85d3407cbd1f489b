// Package telemetry exports pipeline spans (lift, build, install, run) over
// OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentation = "github.com/colorfulnotion/loki"

// Span names.
const (
	SpanLift    = "loki.lift"
	SpanBuild   = "loki.build"
	SpanInstall = "loki.install"
	SpanRun     = "loki.run"
)

// Client owns a tracer provider. A disabled client hands out no-op spans.
type Client struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error
	disabled bool
}

func NewNoOpClient() *Client {
	p := noop.NewTracerProvider()
	return &Client{provider: p, tracer: p.Tracer(instrumentation), disabled: true}
}

// NewClient exports to an OTLP/HTTP collector at endpoint (host:port). An
// empty endpoint gives a no-op client.
func NewClient(ctx context.Context, endpoint string, insecure bool) (*Client, error) {
	if endpoint == "" {
		return NewNoOpClient(), nil
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter for %s: %w", endpoint, err)
	}
	return NewClientWithProvider(sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))), nil
}

// NewClientWithProvider wraps an existing SDK provider and makes it global.
func NewClientWithProvider(tp *sdktrace.TracerProvider) *Client {
	otel.SetTracerProvider(tp)
	return &Client{provider: tp, tracer: tp.Tracer(instrumentation), shutdown: tp.Shutdown}
}

func (c *Client) Enabled() bool { return !c.disabled }

func (c *Client) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Span runs fn inside a span named name and records its error.
func (c *Client) Span(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := c.Start(ctx, name, attrs...)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Int64("loki.elapsed_us", time.Since(start).Microseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Shutdown flushes pending spans.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.shutdown == nil {
		return nil
	}
	return c.shutdown(ctx)
}
