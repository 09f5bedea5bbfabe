// Package planner turns a task description into a structured
// implementation plan: retrieve relevant files, assemble a context
// block, prompt the language model, validate the JSON payload, and
// persist the result.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nexusflow/nexusflow/internal/searcher"
	"github.com/nexusflow/nexusflow/internal/store"
)

// Sentinel errors for plan generation.
var (
	// ErrProjectNotReady indicates the project has not completed
	// indexing; plans require a ready index.
	ErrProjectNotReady = errors.New("project is not indexed yet")

	// ErrInvalidPlan indicates the model output did not satisfy the
	// plan JSON contract.
	ErrInvalidPlan = errors.New("model returned an invalid plan structure")
)

// contextTopK is how many retrieved files feed the prompt context.
const contextTopK = 10

// Valid actions for an affected file.
const (
	ActionCreate = "create"
	ActionModify = "modify"
	ActionDelete = "delete"
)

// AffectedFile is one file the plan proposes to touch.
type AffectedFile struct {
	Path   string `json:"path"`
	Action string `json:"action"`
}

// Step is one ordered implementation step, optionally tied to a file.
type Step struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
	File        string `json:"file,omitempty"`
}

// Component is an existing piece of code the plan suggests reusing.
type Component struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

// Payload is the structured plan returned by the model. All four
// fields are required; a payload missing any of them is rejected
// wholesale.
type Payload struct {
	Summary            string         `json:"summary"`
	AffectedFiles      []AffectedFile `json:"affected_files"`
	Steps              []Step         `json:"steps"`
	ReusableComponents []Component    `json:"reusable_components"`
}

// ProjectStore defines the project lookup the planner needs.
type ProjectStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (store.Project, error)
}

// PlanStore persists generated plans.
type PlanStore interface {
	CreatePlan(ctx context.Context, projectID uuid.UUID, task string, planData json.RawMessage, contextFiles []string, confidence float64) (store.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (store.Plan, error)
	ListPlans(ctx context.Context, projectID uuid.UUID) ([]store.Plan, error)
}

// Retriever finds files relevant to a query.
type Retriever interface {
	Search(ctx context.Context, projectID uuid.UUID, query string, topK int) ([]searcher.Result, error)
}

// Completer generates text from a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

// Config holds generation parameters.
type Config struct {
	Temperature float32
	MaxTokens   int
}

// Planner generates and stores implementation plans.
type Planner struct {
	projects  ProjectStore
	plans     PlanStore
	retriever Retriever
	completer Completer
	cfg       Config
	logger    *slog.Logger
}

// New creates a Planner.
func New(projects ProjectStore, plans PlanStore, retriever Retriever, completer Completer, cfg Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		projects:  projects,
		plans:     plans,
		retriever: retriever,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Generate produces a plan for the task against the project's index and
// persists it. No row is written unless the model output passes full
// structural validation.
func (p *Planner) Generate(ctx context.Context, projectID uuid.UUID, task string) (store.Plan, error) {
	// Existence is checked before readiness so an unknown id reports
	// not-found rather than not-ready.
	project, err := p.projects.GetProject(ctx, projectID)
	if err != nil {
		return store.Plan{}, err
	}
	if project.Status != store.StatusReady {
		return store.Plan{}, fmt.Errorf("project %s has status %q: %w", projectID, project.Status, ErrProjectNotReady)
	}

	results, err := p.retriever.Search(ctx, projectID, task, contextTopK)
	if err != nil {
		return store.Plan{}, fmt.Errorf("retrieving context: %w", err)
	}

	contextFiles := make([]string, 0, len(results))
	for _, r := range results {
		contextFiles = append(contextFiles, r.FilePath)
	}

	prompt := buildPrompt(task, BuildContext(results))

	raw, err := p.completer.Complete(ctx, prompt, p.cfg.Temperature, p.cfg.MaxTokens)
	if err != nil {
		return store.Plan{}, fmt.Errorf("generating plan: %w", err)
	}

	payload, err := parsePayload(raw)
	if err != nil {
		p.logger.Warn("rejecting model plan output",
			"project_id", projectID, "error", err, "output_length", len(raw))
		return store.Plan{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return store.Plan{}, fmt.Errorf("encoding plan payload: %w", err)
	}

	plan, err := p.plans.CreatePlan(ctx, projectID, task, data, contextFiles, confidence(payload))
	if err != nil {
		return store.Plan{}, fmt.Errorf("persisting plan: %w", err)
	}

	p.logger.Info("plan generated",
		"project_id", projectID,
		"plan_id", plan.ID,
		"affected_files", len(payload.AffectedFiles),
		"steps", len(payload.Steps),
		"confidence", plan.Confidence)
	return plan, nil
}

// Get returns a stored plan by id.
func (p *Planner) Get(ctx context.Context, id uuid.UUID) (store.Plan, error) {
	return p.plans.GetPlan(ctx, id)
}

// ListForProject returns the project's plans, newest first.
func (p *Planner) ListForProject(ctx context.Context, projectID uuid.UUID) ([]store.Plan, error) {
	return p.plans.ListPlans(ctx, projectID)
}

// BuildContext concatenates ranked search results into one text block,
// one fenced section per file in ranking order. It is a pure function:
// identical input yields identical output.
func BuildContext(results []searcher.Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("### File: ")
		b.WriteString(r.FilePath)
		b.WriteString("\n```\n")
		b.WriteString(r.Snippet)
		b.WriteString("\n```\n")
	}
	return b.String()
}

// buildPrompt embeds the task and context block with the JSON output
// contract the parser expects.
func buildPrompt(task, contextBlock string) string {
	var b strings.Builder
	b.WriteString("You are a senior software engineer planning a code change.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(task)
	b.WriteString("\n\n")
	if contextBlock != "" {
		b.WriteString("Relevant files from the codebase:\n\n")
		b.WriteString(contextBlock)
		b.WriteString("\n")
	}
	b.WriteString(`Respond with a single JSON object and nothing else. The object must have exactly these four keys:
- "summary": string, a short description of the overall approach
- "affected_files": array of {"path": string, "action": "create"|"modify"|"delete"}
- "steps": array of {"order": number, "description": string, "file": string (optional)}
- "reusable_components": array of {"name": string, "location": string, "description": string (optional)}

Do not wrap the JSON in markdown code fences.`)
	return b.String()
}

// confidence scores plan richness: more affected files, higher score,
// capped at 0.9. A heuristic proxy, not a calibrated probability.
func confidence(p Payload) float64 {
	c := 0.5 + 0.1*float64(len(p.AffectedFiles))
	return min(c, 0.9)
}

// parsePayload decodes and validates model output against the plan
// contract. Validation is all-or-nothing: a missing or mistyped field
// rejects the whole payload.
func parsePayload(raw string) (Payload, error) {
	text := extractJSON(stripCodeFences(raw))
	if text == "" {
		return Payload{}, fmt.Errorf("%w: no JSON object in output", ErrInvalidPlan)
	}

	// Required keys are checked for presence before decoding so that an
	// absent field is distinguishable from an empty one.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	for _, key := range []string{"summary", "affected_files", "steps", "reusable_components"} {
		if _, ok := keys[key]; !ok {
			return Payload{}, fmt.Errorf("%w: missing %q", ErrInvalidPlan, key)
		}
	}

	var payload Payload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := validatePayload(payload); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func validatePayload(p Payload) error {
	if strings.TrimSpace(p.Summary) == "" {
		return fmt.Errorf("%w: empty summary", ErrInvalidPlan)
	}
	for i, f := range p.AffectedFiles {
		if f.Path == "" {
			return fmt.Errorf("%w: affected_files[%d] has no path", ErrInvalidPlan, i)
		}
		switch f.Action {
		case ActionCreate, ActionModify, ActionDelete:
		default:
			return fmt.Errorf("%w: affected_files[%d] has action %q", ErrInvalidPlan, i, f.Action)
		}
	}
	for i, s := range p.Steps {
		if strings.TrimSpace(s.Description) == "" {
			return fmt.Errorf("%w: steps[%d] has no description", ErrInvalidPlan, i)
		}
	}
	for i, c := range p.ReusableComponents {
		if c.Name == "" || c.Location == "" {
			return fmt.Errorf("%w: reusable_components[%d] missing name or location", ErrInvalidPlan, i)
		}
	}
	return nil
}
