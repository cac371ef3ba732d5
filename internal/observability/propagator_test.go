package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/strivehq/assistant/internal/observability/sentrytrace"
)

const (
	chainTraceID      = "771a43a4192642f0b136d5159a501701"
	chainSentrySpanID = "b6e54397b12b41ed"
	chainW3CSpanID    = "00f067aa0ba902b7"
)

func newTestChain() Chain {
	return NewChain(
		sentrytrace.Propagator{},
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func TestChainExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		carrier     propagation.MapCarrier
		wantValid   bool
		wantTraceID string
		wantSpanID  string
	}{
		{
			name: "both headers, proprietary wins",
			carrier: propagation.MapCarrier{
				"sentry-trace": chainTraceID + "-" + chainSentrySpanID + "-1",
				"traceparent":  "00-" + chainTraceID + "-" + chainW3CSpanID + "-01",
			},
			wantValid:   true,
			wantTraceID: chainTraceID,
			wantSpanID:  chainSentrySpanID,
		},
		{
			name: "only standard header",
			carrier: propagation.MapCarrier{
				"traceparent": "00-" + chainTraceID + "-" + chainW3CSpanID + "-01",
			},
			wantValid:   true,
			wantTraceID: chainTraceID,
			wantSpanID:  chainW3CSpanID,
		},
		{
			name: "malformed proprietary header falls through",
			carrier: propagation.MapCarrier{
				"sentry-trace": "garbage",
				"traceparent":  "00-" + chainTraceID + "-" + chainW3CSpanID + "-01",
			},
			wantValid:   true,
			wantTraceID: chainTraceID,
			wantSpanID:  chainW3CSpanID,
		},
		{
			name:      "no trace headers",
			carrier:   propagation.MapCarrier{},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := newTestChain().Extract(context.Background(), tt.carrier)
			parent := trace.SpanContextFromContext(ctx)
			if parent.IsValid() != tt.wantValid {
				t.Fatalf("parent valid = %v, want %v", parent.IsValid(), tt.wantValid)
			}
			if !tt.wantValid {
				return
			}
			if got := parent.TraceID().String(); got != tt.wantTraceID {
				t.Errorf("trace id = %q, want %q", got, tt.wantTraceID)
			}
			if got := parent.SpanID().String(); got != tt.wantSpanID {
				t.Errorf("span id = %q, want %q", got, tt.wantSpanID)
			}
		})
	}
}

func TestChainAccumulatesBaggage(t *testing.T) {
	t.Parallel()

	carrier := propagation.MapCarrier{
		"sentry-trace": chainTraceID + "-" + chainSentrySpanID + "-1",
		"baggage":      "tenant=acme",
	}
	ctx := newTestChain().Extract(context.Background(), carrier)

	parent := trace.SpanContextFromContext(ctx)
	if got := parent.SpanID().String(); got != chainSentrySpanID {
		t.Errorf("span id = %q, want %q", got, chainSentrySpanID)
	}
	if got := baggage.FromContext(ctx).Member("tenant").Value(); got != "acme" {
		t.Errorf("baggage tenant = %q, want %q", got, "acme")
	}
}

func TestChainFieldsDeduplicated(t *testing.T) {
	t.Parallel()

	fields := newTestChain().Fields()
	seen := make(map[string]int)
	for _, field := range fields {
		seen[field]++
	}
	for field, count := range seen {
		if count > 1 {
			t.Errorf("field %q listed %d times", field, count)
		}
	}
	for _, want := range []string{"sentry-trace", "traceparent", "baggage"} {
		if seen[want] == 0 {
			t.Errorf("field %q missing from %v", want, fields)
		}
	}
}
