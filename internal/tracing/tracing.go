// Package tracing wires an OpenTelemetry tracer provider for tool-call spans.
//
// Export is off unless explicitly enabled; stdio transports must keep stdout
// clean for the protocol stream, so spans go to stderr.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider owns the tracer used for tool-call spans.
type Provider struct {
	tracer trace.Tracer
	sdk    *sdktrace.TracerProvider
}

// New returns a Provider. When enabled is false spans are no-ops; when true
// they are exported to stderr as single-line JSON.
func New(service string, enabled bool) (*Provider, error) {
	if !enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(service)}, nil
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tracer: tp.Tracer(service), sdk: tp}, nil
}

// StartToolSpan opens a span for one tool invocation.
func (p *Provider) StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "mcp.tool/"+tool,
		trace.WithAttributes(attribute.String("mcp.tool.name", tool)),
	)
}

// EndToolSpan finishes a tool span, recording the error if the call failed.
func EndToolSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Shutdown flushes pending spans. Safe to call on a disabled provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
