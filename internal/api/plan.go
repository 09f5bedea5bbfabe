package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexusflow/nexusflow/internal/llm"
	"github.com/nexusflow/nexusflow/internal/planner"
	"github.com/nexusflow/nexusflow/internal/store"
)

// minTaskLength guards against tasks too short to plan for.
const minTaskLength = 10

// Planner generates and reads implementation plans.
type Planner interface {
	Generate(ctx context.Context, projectID uuid.UUID, task string) (store.Plan, error)
	Get(ctx context.Context, id uuid.UUID) (store.Plan, error)
	ListForProject(ctx context.Context, projectID uuid.UUID) ([]store.Plan, error)
}

// planHandler serves plan generation and retrieval.
type planHandler struct {
	planner Planner
	logger  *slog.Logger
}

type planItem struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	Task         string          `json:"task"`
	Plan         json.RawMessage `json:"plan"`
	ContextFiles []string        `json:"context_files"`
	Confidence   float64         `json:"confidence"`
	CreatedAt    string          `json:"created_at"`
}

func toPlanItem(p store.Plan) planItem {
	contextFiles := p.ContextFiles
	if contextFiles == nil {
		contextFiles = []string{}
	}
	return planItem{
		ID:           p.ID.String(),
		ProjectID:    p.ProjectID.String(),
		Task:         p.Task,
		Plan:         p.PlanData,
		ContextFiles: contextFiles,
		Confidence:   p.Confidence,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

type generatePlanRequest struct {
	ProjectID string `json:"project_id"`
	Task      string `json:"task"`
}

// generatePlan handles POST /api/v1/plans/generate.
func (h *planHandler) generatePlan(w http.ResponseWriter, r *http.Request) {
	var req generatePlanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid project_id")
		return
	}
	task := strings.TrimSpace(req.Task)
	if len(task) < minTaskLength {
		writeError(w, http.StatusBadRequest, "invalid_input", "task must be at least 10 characters")
		return
	}

	plan, err := h.planner.Generate(r.Context(), projectID, task)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "project not found")
		case errors.Is(err, planner.ErrProjectNotReady):
			writeError(w, http.StatusConflict, "project_not_ready", "project is not indexed yet")
		case errors.Is(err, planner.ErrInvalidPlan):
			h.logger.Warn("model produced an invalid plan", "error", err, "project_id", projectID)
			writeError(w, http.StatusBadGateway, "invalid_plan", "model returned an invalid plan")
		case errors.Is(err, llm.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "model provider is not configured")
		case errors.Is(err, llm.ErrProvider):
			h.logger.Error("model provider failure during plan generation", "error", err, "project_id", projectID)
			writeError(w, http.StatusBadGateway, "provider_error", "model provider request failed")
		default:
			h.logger.Error("plan generation failed", "error", err, "project_id", projectID)
			writeError(w, http.StatusInternalServerError, "plan_failed", "plan generation failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toPlanItem(plan))
}

// getPlan handles GET /api/v1/plans/{id}.
func (h *planHandler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	plan, err := h.planner.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		h.logger.Error("getting plan", "error", err, "plan_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get plan")
		return
	}

	writeJSON(w, http.StatusOK, toPlanItem(plan))
}

// listPlans handles GET /api/v1/projects/{id}/plans.
func (h *planHandler) listPlans(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	plans, err := h.planner.ListForProject(r.Context(), projectID)
	if err != nil {
		h.logger.Error("listing plans", "error", err, "project_id", projectID)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list plans")
		return
	}

	items := make([]planItem, len(plans))
	for i, p := range plans {
		items[i] = toPlanItem(p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}
