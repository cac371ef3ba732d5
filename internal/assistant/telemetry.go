package assistant

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/strivehq/assistant/internal/llm/llmmetrics"
)

const spanNameChatCompletions = "ai.chat.completions"

// generationAttributes flattens one call's configuration and measurements
// into the ai.* span attribute set. Every attribute is always present;
// consumers key on attribute existence, so unmeasured values carry their
// zero default instead of being omitted.
func generationAttributes(provider, model string, temperature float32, maxTokens int, streaming bool, generation llmmetrics.Generation) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("ai.provider", provider),
		attribute.String("ai.model", model),
		attribute.Float64("ai.temperature", float64(temperature)),
		attribute.Int("ai.max_tokens", maxTokens),
		attribute.Bool("ai.streaming_enabled", streaming),

		attribute.Int("ai.prompt_length", generation.PromptLength),
		attribute.String("ai.prompt_complexity", generation.PromptComplexity),
		attribute.Int("ai.message_count", generation.MessageCount),

		attribute.Float64("ai.ttft", generation.TTFT.Seconds()),
		attribute.Float64("ai.ttlt", generation.TTLT.Seconds()),
		// No broker sits between the service and the provider, so queue time
		// is structurally zero; the attribute stays for schema stability.
		attribute.Float64("ai.queue_time", 0),
		attribute.Float64("ai.generation_time", generation.GenerationTime.Seconds()),
		attribute.Float64("ai.tokens_per_second", generation.TokensPerSecond),
		attribute.Float64("ai.mean_time_per_token", generation.MeanTimePerTokenMS),
		attribute.Int("ai.chunk_count", generation.ChunkCount),
		attribute.Float64("ai.time_between_chunks_avg", generation.GapAverage.Seconds()),
		attribute.Float64("ai.time_between_chunks_p95", generation.GapP95.Seconds()),

		attribute.Int("ai.input_tokens", generation.InputTokens),
		attribute.Int("ai.output_tokens", generation.OutputTokens),
		attribute.Int("ai.total_tokens", generation.TotalTokens),
		attribute.Float64("ai.context_window_usage_pct", generation.ContextWindowUsagePct),
		// Provider-side prompt caching is not negotiated yet.
		attribute.Bool("ai.cache_hit", false),
	}
}
