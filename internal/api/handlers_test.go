package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/strivehq/assistant/internal/assistant"
	"github.com/strivehq/assistant/internal/config"
	"github.com/strivehq/assistant/internal/llm"
	"github.com/strivehq/assistant/internal/plan"
)

type stubClient struct {
	response string
	err      error
}

func (c *stubClient) Kind() string    { return "openai" }
func (c *stubClient) Model() string   { return "gpt-4-turbo-preview" }
func (c *stubClient) Streaming() bool { return false }

func (c *stubClient) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Completion{Text: c.response}, nil
}

func (c *stubClient) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	return nil, errors.New("stub client does not stream")
}

func newTestRouter(client llm.Client, store plan.Store) http.Handler {
	service := assistant.New(client, store, nil, config.ProviderConfig{
		Kind:          config.ProviderOpenAI,
		Model:         "gpt-4-turbo-preview",
		Temperature:   0.7,
		MaxTokens:     1500,
		PlanMaxTokens: 2000,
		TimeoutMS:     60000,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return NewRouter(RouterOptions{
		AppVersion:  "test",
		ServiceName: "strive-assistant",
		Service:     service,
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	decoded := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response body is not JSON: %v (%q)", err, recorder.Body.String())
		}
	}
	return recorder, decoded
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubClient{}, plan.NewMemoryStore())
	recorder, body := doJSON(t, router, http.MethodGet, "/api/v1/health", "")

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if body["status"] != "healthy" || body["service"] != "strive-assistant" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
}

func TestRootBanner(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubClient{}, plan.NewMemoryStore())

	recorder, body := doJSON(t, router, http.MethodGet, "/", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if body["name"] != "strive-assistant" || body["status"] != "ok" {
		t.Errorf("banner body = %v", body)
	}

	recorder, _ = doJSON(t, router, http.MethodGet, "/nope", "")
	if recorder.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", recorder.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubClient{}, plan.NewMemoryStore())
	recorder, _ := doJSON(t, router, http.MethodGet, "/api/v1/chat/message", "")

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
	if allow := recorder.Header().Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Errorf("Allow header = %q", allow)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubClient{}, plan.NewMemoryStore())
	recorder, _ := doJSON(t, router, http.MethodOptions, "/api/v1/chat/message", "")

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
	if !strings.Contains(recorder.Header().Get("Access-Control-Allow-Headers"), "sentry-trace") {
		t.Error("preflight must allow the sentry-trace header")
	}
}

func TestChatMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		client     *stubClient
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "happy path",
			body:       `{"message": "hello", "flow_type": "chat"}`,
			client:     &stubClient{response: "hi there"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["response"] != "hi there" {
					t.Errorf("response = %v", body["response"])
				}
				suggestions, ok := body["suggestions"].([]any)
				if !ok || len(suggestions) == 0 {
					t.Errorf("suggestions = %v", body["suggestions"])
				}
			},
		},
		{
			name:       "defaults to chat flow",
			body:       `{"message": "hello"}`,
			client:     &stubClient{response: "hi"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing message",
			body:       `{"flow_type": "chat"}`,
			client:     &stubClient{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown flow type",
			body:       `{"message": "hello", "flow_type": "telepathy"}`,
			client:     &stubClient{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"message": `,
			client:     &stubClient{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "llm failure surfaces raw message",
			body:       `{"message": "hello"}`,
			client:     &stubClient{err: errors.New("quota exceeded")},
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				message, _ := body["error"].(string)
				if !strings.Contains(message, "quota exceeded") {
					t.Errorf("error = %q, want the provider message", message)
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newTestRouter(tt.client, plan.NewMemoryStore())
			recorder, body := doJSON(t, router, http.MethodPost, "/api/v1/chat/message", tt.body)
			if recorder.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", recorder.Code, tt.wantStatus, body)
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestActionPlanEndpoints(t *testing.T) {
	t.Parallel()

	store := plan.NewMemoryStore()
	router := newTestRouter(&stubClient{response: "Step 1: begin."}, store)

	recorder, body := doJSON(t, router, http.MethodPost, "/api/v1/action-plan/generate",
		`{"template_content": "Ship the beta. Then iterate."}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("generate status = %d (%v)", recorder.Code, body)
	}
	generated, ok := body["action_plan"].(map[string]any)
	if !ok {
		t.Fatalf("generate body = %v", body)
	}
	planID, _ := generated["id"].(string)
	if planID == "" {
		t.Fatal("generated plan has no id")
	}
	if generated["version"] != float64(1) || generated["status"] != "draft" {
		t.Errorf("generated plan = %v, want v1 draft", generated)
	}

	recorder, body = doJSON(t, router, http.MethodPost, "/api/v1/action-plan/update",
		`{"action_plan_id": "`+planID+`", "edit_instructions": "shorter"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("update status = %d (%v)", recorder.Code, body)
	}
	updated, _ := body["action_plan"].(map[string]any)
	if updated["version"] != float64(2) || updated["status"] != "draft" {
		t.Errorf("updated plan = %v, want v2 draft", updated)
	}

	recorder, body = doJSON(t, router, http.MethodPost, "/api/v1/action-plan/commit",
		`{"action_plan_id": "`+planID+`"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("commit status = %d (%v)", recorder.Code, body)
	}
	if body["success"] != true {
		t.Errorf("commit body = %v", body)
	}
	committed, _ := body["action_plan"].(map[string]any)
	if committed["status"] != "saved" || committed["version"] != float64(2) {
		t.Errorf("committed plan = %v, want v2 saved", committed)
	}
}

func TestActionPlanUnknownID(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubClient{response: "irrelevant"}, plan.NewMemoryStore())

	recorder, _ := doJSON(t, router, http.MethodPost, "/api/v1/action-plan/update",
		`{"action_plan_id": "missing", "edit_instructions": "x"}`)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("update status = %d, want 404", recorder.Code)
	}

	recorder, _ = doJSON(t, router, http.MethodPost, "/api/v1/action-plan/commit",
		`{"action_plan_id": "missing"}`)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("commit status = %d, want 404", recorder.Code)
	}
}

func TestActionPlanValidation(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubClient{}, plan.NewMemoryStore())

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "generate without template", path: "/api/v1/action-plan/generate", body: `{}`},
		{name: "update without id", path: "/api/v1/action-plan/update", body: `{"edit_instructions": "x"}`},
		{name: "update without instructions", path: "/api/v1/action-plan/update", body: `{"action_plan_id": "p"}`},
		{name: "commit without id", path: "/api/v1/action-plan/commit", body: `{}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder, _ := doJSON(t, router, http.MethodPost, tt.path, tt.body)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", recorder.Code)
			}
		})
	}
}

func TestVersionConflictMapsTo409(t *testing.T) {
	t.Parallel()

	recorder := httptest.NewRecorder()
	writeServiceError(recorder, plan.ErrVersionConflict)
	if recorder.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", recorder.Code)
	}
}
