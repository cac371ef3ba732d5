package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/strivehq/assistant/internal/config"
)

const (
	groqBaseURL   = "https://api.groq.com/openai/v1"
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// openAICompatClient talks the OpenAI chat-completions protocol. Groq and
// Gemini both publish OpenAI-compatible endpoints, so one implementation
// serves all three kinds with a per-kind base URL.
type openAICompatClient struct {
	kind      string
	model     string
	streaming bool
	maxTokens int

	temperature float32
	client      *openai.Client
}

func newOpenAICompatClient(cfg config.ProviderConfig) (*openAICompatClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%s must be set", config.APIKeyEnvVar(cfg.Kind))
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := resolveBaseURL(cfg); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &openAICompatClient{
		kind:        cfg.Kind,
		model:       cfg.Model,
		streaming:   cfg.Streaming,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      openai.NewClientWithConfig(clientConfig),
	}, nil
}

// resolveBaseURL picks the endpoint for a provider kind. An explicit
// configured URL always wins; otherwise Groq and Gemini get their published
// OpenAI-compatible endpoints and OpenAI keeps the library default.
func resolveBaseURL(cfg config.ProviderConfig) string {
	switch baseURL := strings.TrimSpace(cfg.BaseURL); {
	case baseURL != "":
		return strings.TrimRight(baseURL, "/")
	case cfg.Kind == config.ProviderGroq:
		return groqBaseURL
	case cfg.Kind == config.ProviderGemini:
		return geminiBaseURL
	default:
		return ""
	}
}

func (c *openAICompatClient) Kind() string    { return c.kind }
func (c *openAICompatClient) Model() string   { return c.model }
func (c *openAICompatClient) Streaming() bool { return c.streaming }

func (c *openAICompatClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.chatRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", c.kind, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s chat completion: response carried no choices", c.kind)
	}

	completion := &Completion{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
	}
	if resp.Usage.TotalTokens > 0 {
		completion.Usage = &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return completion, nil
}

func (c *openAICompatClient) Stream(ctx context.Context, req Request) (Stream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.chatRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("%s chat completion stream: %w", c.kind, err)
	}
	return &openAIStream{inner: stream}, nil
}

func (c *openAICompatClient) chatRequest(req Request, streaming bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, message := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	chatRequest := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	}
	if streaming {
		// Ask for the usage frame at end-of-stream so token counts come from
		// the same call instead of a second non-streaming request.
		chatRequest.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return chatRequest
}

// openAIStream adapts the go-openai SSE stream to the Stream interface.
type openAIStream struct {
	inner  *openai.ChatCompletionStream
	closed bool
}

func (s *openAIStream) Recv() (Chunk, error) {
	resp, err := s.inner.Recv()
	if err != nil {
		// io.EOF passes through unchanged as the end-of-stream marker.
		return Chunk{}, err
	}

	chunk := Chunk{}
	if len(resp.Choices) > 0 {
		chunk.Text = resp.Choices[0].Delta.Content
	}
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		chunk.Usage = &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return chunk, nil
}

func (s *openAIStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.inner.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
