package observability

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Chain runs an ordered list of trace codecs against a carrier. Unlike the
// stock composite propagator, the first codec to yield a valid parent span
// context wins: later codecs still run so they can contribute baggage, but
// they can never replace an already-extracted parent. This keeps the
// proprietary sentry-trace header authoritative when a request carries both
// it and a standard traceparent.
type Chain struct {
	codecs []propagation.TextMapPropagator
}

var _ propagation.TextMapPropagator = Chain{}

// NewChain builds a Chain that tries codecs in the given order.
func NewChain(codecs ...propagation.TextMapPropagator) Chain {
	return Chain{codecs: codecs}
}

// Extract applies each codec in order, accumulating baggage while preserving
// the first parent span context that was successfully extracted. A codec that
// finds nothing (or fails to decode) simply leaves the context as it was.
func (c Chain) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	for _, codec := range c.codecs {
		parent := trace.SpanContextFromContext(ctx)
		next := codec.Extract(ctx, carrier)
		if parent.IsValid() {
			extracted := trace.SpanContextFromContext(next)
			if !extracted.Equal(parent) {
				next = trace.ContextWithRemoteSpanContext(next, parent)
			}
		}
		ctx = next
	}
	return ctx
}

// Inject delegates to every codec; extraction-only codecs no-op here.
func (c Chain) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	for _, codec := range c.codecs {
		codec.Inject(ctx, carrier)
	}
}

// Fields reports the union of header keys the chained codecs touch.
func (c Chain) Fields() []string {
	seen := make(map[string]struct{})
	fields := make([]string, 0, len(c.codecs)*2)
	for _, codec := range c.codecs {
		for _, field := range codec.Fields() {
			if _, ok := seen[field]; ok {
				continue
			}
			seen[field] = struct{}{}
			fields = append(fields, field)
		}
	}
	return fields
}
