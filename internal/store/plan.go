package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Plan is one generated implementation plan. Immutable once created.
type Plan struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Task         string
	PlanData     json.RawMessage
	ContextFiles []string
	Confidence   float64
	CreatedAt    time.Time
}

const planColumns = "id, project_id, task, plan_data, context_files, confidence, created_at"

// CreatePlan persists a plan row and returns it with its assigned
// identity and timestamp.
func (s *Store) CreatePlan(ctx context.Context, projectID uuid.UUID, task string, planData json.RawMessage, contextFiles []string, confidence float64) (Plan, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO plans (project_id, task, plan_data, context_files, confidence)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+planColumns,
		projectID, task, planData, contextFiles, confidence)

	p, err := scanPlan(row)
	if err != nil {
		return Plan{}, fmt.Errorf("creating plan: %w", err)
	}
	s.logger.Debug("created plan", "id", p.ID, "project_id", p.ProjectID, "confidence", p.Confidence)
	return p, nil
}

// GetPlan fetches a plan by id. Returns ErrNotFound if absent.
func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+planColumns+" FROM plans WHERE id = $1", id)

	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Plan{}, fmt.Errorf("getting plan %s: %w", id, err)
	}
	return p, nil
}

// ListPlans returns all plans for a project, newest first.
func (s *Store) ListPlans(ctx context.Context, projectID uuid.UUID) ([]Plan, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+planColumns+" FROM plans WHERE project_id = $1 ORDER BY created_at DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("listing plans for project %s: %w", projectID, err)
	}
	defer rows.Close()

	plans := make([]Plan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing plans for project %s: %w", projectID, err)
	}
	return plans, nil
}

// scanPlan reads one plan row.
func scanPlan(row pgx.Row) (Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.ProjectID, &p.Task, &p.PlanData,
		&p.ContextFiles, &p.Confidence, &p.CreatedAt)
	if err != nil {
		return Plan{}, err
	}
	return p, nil
}
