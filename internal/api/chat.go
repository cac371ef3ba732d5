package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/strivehq/assistant/internal/assistant"
	"github.com/strivehq/assistant/internal/llm"
	"github.com/strivehq/assistant/internal/plan"
)

type chatMessageRequest struct {
	Message  string `json:"message"`
	FlowType string `json:"flow_type"`
	// ActionPlanID is accepted for wire compatibility; the chat flow does not
	// act on it. Plan edits go through the action-plan endpoints.
	ActionPlanID        string        `json:"action_plan_id,omitempty"`
	ConversationHistory []llm.Message `json:"conversation_history"`
}

type chatMessageResponse struct {
	Response    string           `json:"response"`
	ActionPlan  *plan.ActionPlan `json:"action_plan,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// ChatMessageHandler serves POST /api/v1/chat/message.
func ChatMessageHandler(service *assistant.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		var request chatMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if strings.TrimSpace(request.Message) == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		flowType := request.FlowType
		if flowType == "" {
			flowType = assistant.FlowChat
		}
		if !assistant.ValidFlowType(flowType) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown flow_type %q", request.FlowType))
			return
		}

		result, err := service.GenerateChatResponse(r.Context(), request.Message, flowType, request.ConversationHistory)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, chatMessageResponse{
			Response:    result.Response,
			Suggestions: result.Suggestions,
		})
	})
}

// writeServiceError maps domain errors onto HTTP statuses. Unrecognized
// failures surface their raw message; this service is an internal tool and
// operators want the provider error text.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, plan.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, plan.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
