// Package llm abstracts the chat-completion capability behind a single
// interface so the rest of the service never branches on provider kind.
// One implementation backed by the OpenAI wire protocol covers OpenAI, Groq,
// and Gemini, which all expose OpenAI-compatible chat endpoints; the concrete
// backend is chosen once at startup from configuration.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/strivehq/assistant/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries authoritative token counts when the provider supplies them.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Text         string
	FinishReason string
	// Usage is nil when the provider did not report token counts.
	Usage *Usage
}

// Chunk is one incremental fragment of a streamed response. The final chunk
// of a stream may carry Usage and no text.
type Chunk struct {
	Text  string
	Usage *Usage
}

// Stream is a finite, ordered, non-restartable sequence of fragments.
// Recv returns io.EOF after the last fragment. Close releases the underlying
// connection and is safe to call more than once.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Request is one chat-completion invocation. A zero MaxTokens falls back to
// the client's configured default.
type Request struct {
	Messages  []Message
	MaxTokens int
}

// Client is the chat-completion capability.
type Client interface {
	// Kind reports the configured provider kind (openai, groq, gemini).
	Kind() string
	// Model reports the configured model name.
	Model() string
	// Streaming reports whether callers should prefer Stream over Complete.
	Streaming() bool

	Complete(ctx context.Context, req Request) (*Completion, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// New builds the configured client. The credential must already be present;
// config validation enforces that before this runs.
func New(cfg config.ProviderConfig) (Client, error) {
	switch strings.TrimSpace(cfg.Kind) {
	case config.ProviderOpenAI, config.ProviderGroq, config.ProviderGemini:
		return newOpenAICompatClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", cfg.Kind)
	}
}
