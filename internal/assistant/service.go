// Package assistant implements the conversation flows: chat turns, follow-up
// suggestions, and the action-plan lifecycle (generate, refine, commit).
// Every model call runs through one instrumented path that emits an
// ai.chat.completions span with the full generation-metrics attribute set.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/strivehq/assistant/internal/config"
	"github.com/strivehq/assistant/internal/llm"
	"github.com/strivehq/assistant/internal/llm/llmmetrics"
	"github.com/strivehq/assistant/internal/observability"
	"github.com/strivehq/assistant/internal/plan"
)

// Service orchestrates model calls and plan persistence. Safe for concurrent
// use; all mutable state lives in the store.
type Service struct {
	client  llm.Client
	store   plan.Store
	runtime *observability.Runtime
	logger  *slog.Logger
	tracer  oteltrace.Tracer

	temperature   float32
	maxTokens     int
	planMaxTokens int
	timeout       time.Duration

	newID func() string
	now   func() time.Time
}

// New wires the service from the configured provider settings.
func New(client llm.Client, store plan.Store, runtime *observability.Runtime, cfg config.ProviderConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:        client,
		store:         store,
		runtime:       runtime,
		logger:        logger,
		tracer:        otel.Tracer("strivehq.assistant"),
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		planMaxTokens: cfg.PlanMaxTokens,
		timeout:       time.Duration(cfg.TimeoutMS) * time.Millisecond,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	Response    string
	Suggestions []string
}

// PlanResult pairs a generated or updated plan with the conversational
// response that presents it.
type PlanResult struct {
	Response string
	Plan     *plan.ActionPlan
}

// GenerateChatResponse runs one conversational turn. Unknown flow types fall
// back to the general chat prompt; the transport layer rejects them earlier.
func (s *Service) GenerateChatResponse(ctx context.Context, message, flowType string, history []llm.Message) (*ChatResult, error) {
	text, err := s.generate(ctx, flowType, buildChatMessages(message, flowType, history), s.maxTokens)
	if err != nil {
		return nil, err
	}

	result := &ChatResult{Response: text}
	if flowType == FlowChat || flowType == FlowSuggestion {
		result.Suggestions = followUpSuggestions
	}
	return result, nil
}

// GenerateActionPlan creates a new draft plan from a template description.
// The plan is persisted only after the model call succeeds, so a failed call
// leaves no partial record behind.
func (s *Service) GenerateActionPlan(ctx context.Context, templateContent string, history []llm.Message) (*PlanResult, error) {
	content, err := s.generate(ctx, "action_plan_generation", buildPlanCreateMessages(templateContent, history), s.planMaxTokens)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	actionPlan := &plan.ActionPlan{
		ID:        s.newID(),
		Title:     extractTitle(templateContent),
		Content:   content,
		Status:    plan.StatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, actionPlan); err != nil {
		return nil, fmt.Errorf("persist action plan: %w", err)
	}

	s.logger.InfoContext(ctx, "action plan created", "plan_id", actionPlan.ID, "title", actionPlan.Title)
	response := fmt.Sprintf(
		"I've created a detailed action plan for you:\n\n%s\n\nWould you like me to make any adjustments, or are you ready to commit to this plan?",
		content,
	)
	return &PlanResult{Response: response, Plan: actionPlan}, nil
}

// UpdateActionPlan rewrites a plan per the user's instructions. The new
// content lands at version+1 in draft status, also when the plan was already
// committed: editing a saved plan reopens it. A concurrent edit of the same
// version surfaces as plan.ErrVersionConflict.
func (s *Service) UpdateActionPlan(ctx context.Context, planID, editInstructions string) (*PlanResult, error) {
	current, err := s.store.Get(ctx, planID)
	if err != nil {
		return nil, err
	}

	content, err := s.generate(ctx, "action_plan_update", buildPlanEditMessages(current.Content, editInstructions), s.planMaxTokens)
	if err != nil {
		return nil, err
	}

	updated := current.Clone()
	updated.Content = content
	updated.Status = plan.StatusDraft
	updated.Version = current.Version + 1
	updated.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, updated, current.Version); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "action plan updated", "plan_id", updated.ID, "version", updated.Version)
	response := fmt.Sprintf(
		"I've updated your action plan based on your feedback:\n\n%s\n\nDoes this look better? Would you like any other changes?",
		content,
	)
	return &PlanResult{Response: response, Plan: updated}, nil
}

// CommitActionPlan freezes the current plan version as saved.
func (s *Service) CommitActionPlan(ctx context.Context, planID string) (*plan.ActionPlan, error) {
	committed, err := s.store.Commit(ctx, planID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "action plan committed", "plan_id", committed.ID, "version", committed.Version)
	return committed, nil
}

// generate runs one model call under the per-call timeout and emits the
// instrumented span. The span closes on every exit path, and its attributes
// are attached on failure too, covering whatever fragments arrived before
// the error.
func (s *Service) generate(ctx context.Context, flowType string, messages []llm.Message, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, spanNameChatCompletions, oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	defer span.End()

	collector := llmmetrics.NewCollector()
	start := s.now()
	text, usage, err := collector.Invoke(ctx, s.client, llm.Request{Messages: messages, MaxTokens: maxTokens})
	durationMS := s.now().Sub(start).Milliseconds()

	generation := llmmetrics.Derive(collector.Timing(), usage, messages, text, s.client.Model())
	span.SetAttributes(attribute.String("ai.flow_type", flowType))
	span.SetAttributes(generationAttributes(
		s.client.Kind(),
		s.client.Model(),
		s.temperature,
		maxTokens,
		s.client.Streaming(),
		generation,
	)...)

	s.runtime.RecordLLMRequest(s.client.Kind(), s.client.Model(), err == nil, durationMS)
	s.runtime.RecordLLMTokens(s.client.Kind(), generation.InputTokens, generation.OutputTokens)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "llm call failed",
			"flow_type", flowType,
			"provider", s.client.Kind(),
			"model", s.client.Model(),
			"duration_ms", durationMS,
			"error", err,
		)
		return "", fmt.Errorf("%s completion: %w", flowType, err)
	}

	span.SetStatus(codes.Ok, "")
	s.logger.InfoContext(ctx, "llm call completed",
		"flow_type", flowType,
		"provider", s.client.Kind(),
		"model", s.client.Model(),
		"ttft_ms", generation.TTFT.Milliseconds(),
		"ttlt_ms", generation.TTLT.Milliseconds(),
		"chunk_count", generation.ChunkCount,
		"output_tokens", generation.OutputTokens,
		"tokens_per_second", generation.TokensPerSecond,
	)
	return text, nil
}
