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

	"github.com/nexusflow/nexusflow/internal/indexer"
	"github.com/nexusflow/nexusflow/internal/store"
)

const maxRequestBody = 1 << 20 // 1 MiB

// ProjectStore defines the project persistence operations the handlers need.
type ProjectStore interface {
	CreateProject(ctx context.Context, name, path, description string) (store.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (store.Project, error)
	ListProjects(ctx context.Context) ([]store.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
}

// Indexer runs an index pass over one project.
type Indexer interface {
	Index(ctx context.Context, projectID uuid.UUID) (indexer.Result, error)
}

// projectHandler serves project CRUD and index triggering.
type projectHandler struct {
	store   ProjectStore
	indexer Indexer
	// baseCtx bounds background index runs to the server lifetime
	// instead of the triggering request.
	baseCtx context.Context
	logger  *slog.Logger
}

type projectItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	FileCount   int     `json:"file_count"`
	IndexedAt   *string `json:"indexed_at"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toProjectItem(p store.Project) projectItem {
	item := projectItem{
		ID:          p.ID.String(),
		Name:        p.Name,
		Path:        p.Path,
		Description: p.Description,
		Status:      p.Status,
		FileCount:   p.FileCount,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
	if p.IndexedAt != nil {
		ts := p.IndexedAt.Format(time.RFC3339)
		item.IndexedAt = &ts
	}
	return item
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// createProject handles POST /api/v1/projects.
func (h *projectHandler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Path = strings.TrimSpace(req.Path)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "path is required")
		return
	}

	project, err := h.store.CreateProject(r.Context(), req.Name, req.Path, req.Description)
	if err != nil {
		h.logger.Error("creating project", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, toProjectItem(project))
}

// listProjects handles GET /api/v1/projects.
func (h *projectHandler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.logger.Error("listing projects", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list projects")
		return
	}

	items := make([]projectItem, len(projects))
	for i, p := range projects {
		items[i] = toProjectItem(p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// getProject handles GET /api/v1/projects/{id}.
func (h *projectHandler) getProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "project not found")
			return
		}
		h.logger.Error("getting project", "error", err, "project_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get project")
		return
	}

	writeJSON(w, http.StatusOK, toProjectItem(project))
}

// deleteProject handles DELETE /api/v1/projects/{id}. Embedding rows
// and plans go with it via cascade.
func (h *projectHandler) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "project not found")
			return
		}
		h.logger.Error("deleting project", "error", err, "project_id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete project")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// triggerIndex handles POST /api/v1/projects/{id}/index. The run
// executes in the background; callers poll project status for
// completion.
func (h *projectHandler) triggerIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	// Existence is verified synchronously so unknown ids get a 404
	// instead of a silently failing background run.
	if _, err := h.store.GetProject(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "project not found")
			return
		}
		h.logger.Error("getting project before index", "error", err, "project_id", id)
		writeError(w, http.StatusInternalServerError, "index_failed", "failed to start indexing")
		return
	}

	go func() {
		if _, err := h.indexer.Index(h.baseCtx, id); err != nil {
			if errors.Is(err, indexer.ErrIndexInProgress) {
				h.logger.Info("index trigger ignored, run already in flight", "project_id", id)
				return
			}
			h.logger.Error("background index run failed", "error", err, "project_id", id)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "indexing",
	})
}

// decodeBody decodes a bounded JSON request body into dst, writing a
// 400 on failure. Returns false when the response has been written.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "request body must be valid JSON")
		return false
	}
	return true
}

// pathUUID parses the named path segment as a UUID, writing a 400 on
// failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
