package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Project lifecycle states. Only the indexing pipeline moves a project
// between them.
const (
	StatusPending  = "pending"
	StatusIndexing = "indexing"
	StatusReady    = "ready"
	StatusError    = "error"
)

// Project represents a registered codebase.
type Project struct {
	ID          uuid.UUID
	Name        string
	Path        string
	Description string
	Status      string
	FileCount   int
	IndexedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const projectColumns = "id, name, path, description, status, file_count, indexed_at, created_at, updated_at"

// CreateProject registers a new project in pending status.
func (s *Store) CreateProject(ctx context.Context, name, path, description string) (Project, error) {
	row := s.pool.QueryRow(ctx,
		"INSERT INTO projects (name, path, description) VALUES ($1, $2, $3) RETURNING "+projectColumns,
		name, path, description)

	p, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Debug("created project", "id", p.ID, "name", p.Name)
	return p, nil
}

// GetProject fetches a project by id. Returns ErrNotFound if absent.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", id)

	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Project{}, fmt.Errorf("getting project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+projectColumns+" FROM projects ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project; owned embeddings and plans cascade.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted project", "id", id)
	return nil
}

// UpdateProjectStatus persists a lifecycle transition.
func (s *Store) UpdateProjectStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE projects SET status = $2, updated_at = now() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("updating project %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkProjectIndexed records a successful index run: ready status,
// final file count and the completion timestamp, in one write.
func (s *Store) MarkProjectIndexed(ctx context.Context, id uuid.UUID, fileCount int) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE projects SET status = $2, file_count = $3, indexed_at = now(), updated_at = now() WHERE id = $1",
		id, StatusReady, fileCount)
	if err != nil {
		return fmt.Errorf("marking project %s indexed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// scanProject reads one project row.
func scanProject(row pgx.Row) (Project, error) {
	var (
		p           Project
		description pgtype.Text
		indexedAt   pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.Name, &p.Path, &description, &p.Status,
		&p.FileCount, &indexedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	if description.Valid {
		p.Description = description.String
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		p.IndexedAt = &t
	}
	return p, nil
}
