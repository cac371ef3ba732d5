// Package api is the HTTP boundary: routing, request decoding, and the
// mapping of domain errors onto status codes. Handlers stay thin; the
// conversation flows live in internal/assistant.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/strivehq/assistant/internal/assistant"
	"github.com/strivehq/assistant/internal/correlation"
)

type RouterOptions struct {
	AppVersion  string
	ServiceName string
	Service     *assistant.Service
}

func NewRouter(options RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/v1/chat/message", ChatMessageHandler(options.Service))
	mux.Handle("/api/v1/action-plan/generate", GeneratePlanHandler(options.Service))
	mux.Handle("/api/v1/action-plan/update", UpdatePlanHandler(options.Service))
	mux.Handle("/api/v1/action-plan/commit", CommitPlanHandler(options.Service))
	mux.Handle("/api/v1/health", HealthHandler(options.ServiceName, options.AppVersion))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"name":    options.ServiceName,
			"version": options.AppVersion,
			"status":  "ok",
		})
	})

	return withCORS(mux)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("{\"error\":\"internal server error\"}\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", OPTIONS")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func withCORS(next http.Handler) http.Handler {
	allowedHeaders := strings.Join([]string{
		"Content-Type",
		"Authorization",
		correlation.HeaderName,
		"X-Request-ID",
		"X-Correlation-ID",
		"sentry-trace",
		"traceparent",
		"baggage",
	}, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
