package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nexusflow/nexusflow/internal/llm"
	"github.com/nexusflow/nexusflow/internal/searcher"
)

// Searcher answers semantic queries over an indexed project.
type Searcher interface {
	Search(ctx context.Context, projectID uuid.UUID, query string, topK int) ([]searcher.Result, error)
}

// searchHandler serves semantic search requests.
type searchHandler struct {
	searcher    Searcher
	defaultTopK int
	logger      *slog.Logger
}

type searchRequest struct {
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
	TopK      *int   `json:"top_k"`
}

// search handles POST /api/v1/search.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid project_id")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "query is required")
		return
	}

	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	results, err := h.searcher.Search(r.Context(), projectID, req.Query, topK)
	if err != nil {
		switch {
		case errors.Is(err, searcher.ErrInvalidTopK), errors.Is(err, searcher.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		case errors.Is(err, llm.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "embedding provider is not configured")
		case errors.Is(err, llm.ErrProvider):
			h.logger.Error("embedding provider failure during search", "error", err, "project_id", projectID)
			writeError(w, http.StatusBadGateway, "provider_error", "embedding provider request failed")
		default:
			h.logger.Error("search failed", "error", err, "project_id", projectID)
			writeError(w, http.StatusInternalServerError, "search_failed", "search failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}
