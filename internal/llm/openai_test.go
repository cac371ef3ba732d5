package llm

import (
	"strings"
	"testing"

	"github.com/strivehq/assistant/internal/config"
)

func testProviderConfig(kind string) config.ProviderConfig {
	return config.ProviderConfig{
		Kind:          kind,
		Model:         "gpt-4-turbo-preview",
		Temperature:   0.7,
		MaxTokens:     1500,
		PlanMaxTokens: 2000,
		Streaming:     true,
		TimeoutMS:     60000,
		APIKey:        "test-key",
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{config.ProviderOpenAI, config.ProviderGroq, config.ProviderGemini} {
		client, err := New(testProviderConfig(kind))
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		if client.Kind() != kind {
			t.Errorf("Kind() = %q, want %q", client.Kind(), kind)
		}
		if !client.Streaming() {
			t.Errorf("Streaming() = false for %s", kind)
		}
	}

	if _, err := New(config.ProviderConfig{Kind: "anthropic", APIKey: "k"}); err == nil {
		t.Error("unsupported provider kind must be rejected")
	}

	missingKey := testProviderConfig(config.ProviderOpenAI)
	missingKey.APIKey = "  "
	_, err := New(missingKey)
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("missing credential error = %v, want it to name the env var", err)
	}
}

func TestChatRequest(t *testing.T) {
	t.Parallel()

	client, err := newOpenAICompatClient(testProviderConfig(config.ProviderOpenAI))
	if err != nil {
		t.Fatalf("newOpenAICompatClient: %v", err)
	}

	req := Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hello"},
		},
	}

	t.Run("streaming requests the inline usage frame", func(t *testing.T) {
		t.Parallel()

		chatRequest := client.chatRequest(req, true)
		if chatRequest.StreamOptions == nil || !chatRequest.StreamOptions.IncludeUsage {
			t.Error("streaming request must set StreamOptions.IncludeUsage")
		}
		if chatRequest.Model != "gpt-4-turbo-preview" {
			t.Errorf("model = %q", chatRequest.Model)
		}
		if chatRequest.Temperature != 0.7 {
			t.Errorf("temperature = %g", chatRequest.Temperature)
		}
		if len(chatRequest.Messages) != 2 || chatRequest.Messages[0].Role != RoleSystem {
			t.Errorf("messages = %+v", chatRequest.Messages)
		}
	})

	t.Run("blocking request has no stream options", func(t *testing.T) {
		t.Parallel()

		if chatRequest := client.chatRequest(req, false); chatRequest.StreamOptions != nil {
			t.Error("blocking request must not set StreamOptions")
		}
	})

	t.Run("zero max tokens falls back to the configured budget", func(t *testing.T) {
		t.Parallel()

		if chatRequest := client.chatRequest(req, false); chatRequest.MaxTokens != 1500 {
			t.Errorf("MaxTokens = %d, want configured 1500", chatRequest.MaxTokens)
		}
	})

	t.Run("per-call max tokens wins", func(t *testing.T) {
		t.Parallel()

		planReq := req
		planReq.MaxTokens = 2000
		if chatRequest := client.chatRequest(planReq, false); chatRequest.MaxTokens != 2000 {
			t.Errorf("MaxTokens = %d, want per-call 2000", chatRequest.MaxTokens)
		}
	})
}

func TestBaseURLSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    string
		baseURL string
		want    string
	}{
		{name: "openai uses library default", kind: config.ProviderOpenAI, want: ""},
		{name: "groq compatible endpoint", kind: config.ProviderGroq, want: groqBaseURL},
		{name: "gemini compatible endpoint", kind: config.ProviderGemini, want: geminiBaseURL},
		{
			name:    "explicit base url wins",
			kind:    config.ProviderGroq,
			baseURL: "http://localhost:9999/v1/",
			want:    "http://localhost:9999/v1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testProviderConfig(tt.kind)
			cfg.BaseURL = tt.baseURL
			if got := resolveBaseURL(cfg); got != tt.want {
				t.Errorf("resolveBaseURL = %q, want %q", got, tt.want)
			}
		})
	}
}
