package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/strivehq/assistant/internal/assistant"
	"github.com/strivehq/assistant/internal/llm"
	"github.com/strivehq/assistant/internal/plan"
)

type generatePlanRequest struct {
	TemplateContent     string        `json:"template_content"`
	ConversationHistory []llm.Message `json:"conversation_history"`
}

type updatePlanRequest struct {
	ActionPlanID     string `json:"action_plan_id"`
	EditInstructions string `json:"edit_instructions"`
}

type commitPlanRequest struct {
	ActionPlanID string `json:"action_plan_id"`
}

type planResponse struct {
	Response   string           `json:"response"`
	ActionPlan *plan.ActionPlan `json:"action_plan"`
}

type commitPlanResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	ActionPlan *plan.ActionPlan `json:"action_plan"`
}

// GeneratePlanHandler serves POST /api/v1/action-plan/generate.
func GeneratePlanHandler(service *assistant.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		var request generatePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if strings.TrimSpace(request.TemplateContent) == "" {
			writeError(w, http.StatusBadRequest, "template_content is required")
			return
		}

		result, err := service.GenerateActionPlan(r.Context(), request.TemplateContent, request.ConversationHistory)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, planResponse{Response: result.Response, ActionPlan: result.Plan})
	})
}

// UpdatePlanHandler serves POST /api/v1/action-plan/update.
func UpdatePlanHandler(service *assistant.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		var request updatePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if strings.TrimSpace(request.ActionPlanID) == "" {
			writeError(w, http.StatusBadRequest, "action_plan_id is required")
			return
		}
		if strings.TrimSpace(request.EditInstructions) == "" {
			writeError(w, http.StatusBadRequest, "edit_instructions is required")
			return
		}

		result, err := service.UpdateActionPlan(r.Context(), request.ActionPlanID, request.EditInstructions)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, planResponse{Response: result.Response, ActionPlan: result.Plan})
	})
}

// CommitPlanHandler serves POST /api/v1/action-plan/commit.
func CommitPlanHandler(service *assistant.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		var request commitPlanRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if strings.TrimSpace(request.ActionPlanID) == "" {
			writeError(w, http.StatusBadRequest, "action_plan_id is required")
			return
		}

		committed, err := service.CommitActionPlan(r.Context(), request.ActionPlanID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, commitPlanResponse{
			Success:    true,
			Message:    "Action plan committed successfully",
			ActionPlan: committed,
		})
	})
}
