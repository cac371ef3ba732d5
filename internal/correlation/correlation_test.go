package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEnsureRequest(t *testing.T) {
	t.Parallel()

	t.Run("mints an identifier when none supplied", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req, id := EnsureRequest(req)
		if id == "" {
			t.Fatal("expected a minted identifier")
		}
		if got := req.Header.Get(HeaderName); got != id {
			t.Errorf("header = %q, want %q", got, id)
		}
		if got, ok := FromContext(req.Context()); !ok || got != id {
			t.Errorf("context id = %q (%v), want %q", got, ok, id)
		}
	})

	t.Run("reuses a valid client identifier", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderName, "client-id-42")
		_, id := EnsureRequest(req)
		if id != "client-id-42" {
			t.Errorf("id = %q, want the client's value", id)
		}
	})

	t.Run("accepts aliases", func(t *testing.T) {
		t.Parallel()

		for _, header := range []string{"X-Request-ID", "X-Correlation-ID"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(header, "aliased-id")
			if _, id := EnsureRequest(req); id != "aliased-id" {
				t.Errorf("header %s: id = %q, want aliased-id", header, id)
			}
		}
	})

	t.Run("replaces an unsafe client identifier", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderName, "bad id\nwith newline")
		_, id := EnsureRequest(req)
		if id == "" || strings.Contains(id, "\n") {
			t.Errorf("id = %q, want a freshly minted safe identifier", id)
		}
	})
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "abc-123", want: "abc-123"},
		{name: "trims whitespace", input: "  abc  ", want: "abc"},
		{name: "allows dots and colons", input: "svc:req.7", want: "svc:req.7"},
		{name: "rejects empty", input: "   ", want: ""},
		{name: "rejects control characters", input: "abc\ndef", want: ""},
		{name: "rejects spaces inside", input: "a b", want: ""},
		{name: "rejects oversize", input: strings.Repeat("a", 129), want: ""},
		{name: "keeps max length", input: strings.Repeat("a", 128), want: strings.Repeat("a", 128)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := normalizeID(tt.input); got != tt.want {
				t.Errorf("normalizeID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithContext(context.Background(), "round-trip")
	if id, ok := FromContext(ctx); !ok || id != "round-trip" {
		t.Errorf("FromContext = %q (%v)", id, ok)
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Error("empty context should carry no identifier")
	}

	// Invalid identifiers are dropped rather than stored.
	ctx = WithContext(context.Background(), "bad\nid")
	if _, ok := FromContext(ctx); ok {
		t.Error("invalid identifier should not be stored")
	}
}
