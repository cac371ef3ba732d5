// Package sentrytrace converts the compact trace header emitted by Sentry
// client SDKs into a W3C-shaped remote span context so that spans created by
// this service nest under the caller's trace.
//
// The inbound format is:
//
//	sentry-trace: <32 hex trace id>-<16 hex span id>-<sampled flag>
//
// together with a companion `baggage` header that a separate propagator
// handles. Extraction is one-way: this service never writes sentry-trace
// headers back out, so Inject is a no-op rather than an error.
package sentrytrace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceHeader is the proprietary compact trace header.
	TraceHeader = "sentry-trace"
	// BaggageHeader travels alongside TraceHeader; it is declared in Fields
	// so instrumentation knows we read it, but the W3C baggage propagator in
	// the chain owns its parsing.
	BaggageHeader = "baggage"
)

var (
	// ErrMalformedHeader reports a header that does not split into the three
	// expected segments.
	ErrMalformedHeader = errors.New("malformed sentry-trace header")
	// ErrInvalidTraceID reports a trace id segment that is not 32 hex characters.
	ErrInvalidTraceID = errors.New("invalid trace id in sentry-trace header")
	// ErrInvalidSpanID reports a span id segment that is not 16 hex characters.
	ErrInvalidSpanID = errors.New("invalid span id in sentry-trace header")
)

// Propagator extracts a remote span context from the sentry-trace header.
// The zero value is ready to use. A nil logger suppresses decode warnings.
type Propagator struct {
	Logger *slog.Logger
}

var _ propagation.TextMapPropagator = Propagator{}

// Extract parses the sentry-trace header from the carrier and, on success,
// returns a context carrying the decoded remote span context as parent.
// Any decode failure leaves the inbound context untouched; a malformed header
// must never fail the request it arrived on.
func (p Propagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	header := lookupHeader(carrier, TraceHeader)
	if header == "" {
		return ctx
	}

	spanContext, err := Decode(header)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("discarding undecodable sentry-trace header", "header", header, "error", err)
		}
		return ctx
	}

	return trace.ContextWithRemoteSpanContext(ctx, spanContext)
}

// Inject is intentionally a no-op: the sentry-trace format is extraction-only
// for this service. Outgoing requests carry W3C traceparent instead.
func (p Propagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {}

// Fields reports the header keys this propagator reads.
func (p Propagator) Fields() []string {
	return []string{TraceHeader, BaggageHeader}
}

// Decode parses a sentry-trace header value into a remote span context.
//
// The sampled flag must be the literal "1" or "0"; any other value is treated
// as not-sampled rather than rejected, because older SDK versions send "true"
// and deferred-sampling headers omit a usable flag.
func Decode(header string) (trace.SpanContext, error) {
	segments := strings.Split(strings.TrimSpace(header), "-")
	if len(segments) != 3 {
		return trace.SpanContext{}, fmt.Errorf("%w: got %d segments, want 3", ErrMalformedHeader, len(segments))
	}

	traceID, err := trace.TraceIDFromHex(segments[0])
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("%w: %q", ErrInvalidTraceID, segments[0])
	}
	spanID, err := trace.SpanIDFromHex(segments[1])
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("%w: %q", ErrInvalidSpanID, segments[1])
	}

	var flags trace.TraceFlags
	if segments[2] == "1" {
		flags = trace.FlagsSampled
	}

	spanContext := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	if !spanContext.IsValid() {
		return trace.SpanContext{}, fmt.Errorf("%w: all-zero identifiers", ErrMalformedHeader)
	}
	return spanContext, nil
}

// lookupHeader reads a carrier key, falling back to the lower-cased variant
// when the exact-case key is absent. Carriers backed by http.Header
// canonicalize on Get, but map-backed carriers used in tests and non-HTTP
// transports do not.
func lookupHeader(carrier propagation.TextMapCarrier, key string) string {
	if value := carrier.Get(key); value != "" {
		return value
	}
	if lower := strings.ToLower(key); lower != key {
		return carrier.Get(lower)
	}
	return ""
}
