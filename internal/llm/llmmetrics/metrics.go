package llmmetrics

import (
	"strings"

	"github.com/strivehq/assistant/internal/llm"
)

// Complexity labels for prompt size, used only for observability grouping.
const (
	ComplexitySimple = "simple"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// Context-window sizes are a coarse substring heuristic, not an authoritative
// model-limit lookup; they only feed a usage-percentage gauge.
const (
	largeContextWindow   = 128000
	defaultContextWindow = 8192
)

// Generation is the full token/throughput metrics record for one call.
// Every field is always populated, with a zero default when a value could
// not be measured, because span consumers rely on attribute presence.
type Generation struct {
	Timing

	InputTokens  int
	OutputTokens int
	TotalTokens  int
	// UsageReported is true when token counts came from the provider rather
	// than the word-count approximation.
	UsageReported bool

	TokensPerSecond       float64
	MeanTimePerTokenMS    float64
	ContextWindowUsagePct float64

	PromptLength     int
	PromptComplexity string
	MessageCount     int
}

// Derive combines the call timing, the provider-reported usage (which wins
// when present), and the request/response text into the final metrics
// record. All divisions are guarded: zero tokens or non-positive generation
// time yield 0 rather than an error or a negative rate.
func Derive(timing Timing, usage *llm.Usage, messages []llm.Message, output string, model string) Generation {
	generation := Generation{
		Timing:           timing,
		PromptLength:     combinedLength(messages),
		PromptComplexity: Complexity(messages),
		MessageCount:     len(messages),
	}

	if usage != nil {
		generation.UsageReported = true
		generation.InputTokens = usage.InputTokens
		generation.OutputTokens = usage.OutputTokens
		generation.TotalTokens = usage.TotalTokens
		if generation.TotalTokens == 0 {
			generation.TotalTokens = usage.InputTokens + usage.OutputTokens
		}
	} else {
		generation.InputTokens = approxMessageTokens(messages)
		generation.OutputTokens = ApproxTokens(output)
		generation.TotalTokens = generation.InputTokens + generation.OutputTokens
	}

	generationSeconds := timing.GenerationTime.Seconds()
	if generation.OutputTokens > 0 && generationSeconds > 0 {
		generation.TokensPerSecond = float64(generation.OutputTokens) / generationSeconds
		generation.MeanTimePerTokenMS = float64(timing.GenerationTime.Milliseconds()) / float64(generation.OutputTokens)
	}

	if window := ContextWindow(model); window > 0 {
		generation.ContextWindowUsagePct = float64(generation.TotalTokens) / float64(window) * 100
	}

	return generation
}

// ApproxTokens estimates a token count as whitespace-delimited words. Used
// only when the provider does not report usage; issuing a second
// non-streaming call just to read token counts would double cost and
// latency.
func ApproxTokens(text string) int {
	return len(strings.Fields(text))
}

func approxMessageTokens(messages []llm.Message) int {
	total := 0
	for _, message := range messages {
		total += ApproxTokens(message.Content)
	}
	return total
}

// ContextWindow picks a nominal context size by model-name substring.
func ContextWindow(model string) int {
	if strings.Contains(strings.ToLower(model), "gpt-4") {
		return largeContextWindow
	}
	return defaultContextWindow
}

// Complexity buckets a prompt by combined content length and message count.
// The simple bucket requires both a short prompt and few messages; the
// medium bucket is entered when either threshold holds. A short prompt
// spread over many messages therefore classifies medium, which is the
// intended behavior, not an accident.
func Complexity(messages []llm.Message) string {
	length := combinedLength(messages)
	count := len(messages)

	switch {
	case length < 500 && count <= 2:
		return ComplexitySimple
	case length < 2000 || count <= 5:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

func combinedLength(messages []llm.Message) int {
	total := 0
	for _, message := range messages {
		total += len(message.Content)
	}
	return total
}
