package assistant

import (
	"fmt"
	"strings"

	"github.com/strivehq/assistant/internal/llm"
)

// Flow types accepted on the chat endpoint.
const (
	FlowChat               = "chat"
	FlowSuggestion         = "suggestion"
	FlowActionPlanCreation = "action_plan_creation"
	FlowActionPlanEdit     = "action_plan_edit"
)

// ValidFlowType reports whether the flow type is one the service handles.
func ValidFlowType(flowType string) bool {
	switch flowType {
	case FlowChat, FlowSuggestion, FlowActionPlanCreation, FlowActionPlanEdit:
		return true
	}
	return false
}

var chatSystemPrompts = map[string]string{
	FlowChat:               "You are a helpful AI assistant. Provide clear, concise, and helpful responses.",
	FlowSuggestion:         "You are a knowledgeable assistant providing helpful suggestions and advice.",
	FlowActionPlanCreation: "You are an expert at creating actionable plans. Help users refine their plans with specific, practical advice.",
	FlowActionPlanEdit:     "You are helping users edit their action plans. Make targeted improvements based on their feedback.",
}

const planCreateSystemPrompt = `You are an expert action plan creator. Your role is to:
1. Understand the user's goals and requirements
2. Create detailed, actionable plans with specific steps
3. Structure plans with clear milestones and timelines
4. Make plans realistic and achievable
5. Include specific recommendations and resources

Format your action plan clearly with:
- Overview/Goal
- Key Steps (numbered)
- Timeline/Schedule
- Success Metrics
- Resources/Tools needed
`

const planEditSystemPrompt = `You are helping update an action plan.
Follow the user's instructions carefully to modify the plan while maintaining its structure and quality.
Make specific, targeted changes based on the user's feedback.`

// followUpSuggestions is a static placeholder for a future recommendation
// feature; chat and suggestion flows return it unchanged.
var followUpSuggestions = []string{
	"Tell me more about this",
	"Can you give me an example?",
	"What are the next steps?",
}

// historyWindow caps how many prior turns are forwarded to the model.
const historyWindow = 10

// buildChatMessages assembles the prompt for a chat turn: the flow's system
// prompt, the most recent history, then the current user message.
func buildChatMessages(message, flowType string, history []llm.Message) []llm.Message {
	systemPrompt, ok := chatSystemPrompts[flowType]
	if !ok {
		systemPrompt = chatSystemPrompts[FlowChat]
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})
	return messages
}

func buildPlanCreateMessages(templateContent string, history []llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: planCreateSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Create a detailed action plan for: %s", templateContent),
	})
	return messages
}

func buildPlanEditMessages(currentContent, editInstructions string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: planEditSystemPrompt},
		{Role: llm.RoleAssistant, Content: fmt.Sprintf("Current Action Plan:\n\n%s", currentContent)},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Please update the plan: %s", editInstructions)},
	}
}

// extractTitle derives a plan title from the template: the first sentence,
// truncated to 50 characters.
func extractTitle(templateContent string) string {
	title := templateContent
	if idx := strings.Index(title, "."); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	return title
}
