// Package planner converts a free-form user goal into a dependency-ordered
// task DAG, each task tagged with a worker role from the catalog.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mkarras/foreman/internal/worker"
	"github.com/mkarras/foreman/pkg/models"
)

// fallbackRole is the role the deterministic fallback plan assigns when
// the model's planning response cannot be parsed.
const fallbackRole = "coder"

// Chatter is the minimal session surface the planner needs: a chat-only
// turn with no tools. Satisfied by *worker.Session.
type Chatter interface {
	ExecuteTask(ctx context.Context, description string, depContext map[string]string) (string, error)
}

// Plan is the planner's output: the materialized worker set and the task
// DAG. Immutable once returned.
type Plan struct {
	Workers []models.WorkerDefinition
	Tasks   []models.PlannedTask
}

// Planner builds orchestration plans using a dedicated chat session.
type Planner struct {
	session Chatter
	logf    func(format string, args ...interface{})
}

// New creates a Planner. The session should be chat-only (no agent mode).
func New(session Chatter) *Planner {
	return &Planner{
		session: session,
		logf:    func(string, ...interface{}) {},
	}
}

// SetLogf sets the debug logging function.
func (p *Planner) SetLogf(fn func(format string, args ...interface{})) {
	if fn != nil {
		p.logf = fn
	}
}

// plannedTaskJSON is the task structure returned by the model.
type plannedTaskJSON struct {
	WorkerRole  string `json:"worker_role"`
	Description string `json:"description"`
	DependsOn   []int  `json:"depends_on"`
}

// planJSON is the worker-auto-selection response shape.
type planJSON struct {
	Workers []string          `json:"workers"`
	Tasks   []plannedTaskJSON `json:"tasks"`
}

// Plan asks the model to decompose the goal against the worker catalog.
// Planning never fails on malformed model output: any parse problem
// produces a deterministic single-task fallback plan. Only context
// cancellation is returned as an error.
func (p *Planner) Plan(ctx context.Context, goal string, catalog *worker.Catalog) (Plan, error) {
	prompt := fmt.Sprintf(planningPrompt, catalog.Describe(), goal)

	response, err := p.session.ExecuteTask(ctx, prompt, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Plan{}, err
		}
		p.logf("[planner] planning turn failed, using fallback plan: %v", err)
		return p.fallbackPlan(goal, catalog), nil
	}

	roles, tasks, err := parseResponse(response)
	if err != nil {
		p.logf("[planner] unparseable planning response, using fallback plan: %v", err)
		return p.fallbackPlan(goal, catalog), nil
	}

	return p.materialize(roles, tasks, catalog), nil
}

// materialize resolves worker definitions for the selected roles and
// validates each task's role against the materialized set.
func (p *Planner) materialize(roles []string, tasks []plannedTaskJSON, catalog *worker.Catalog) Plan {
	// Roles may come from an explicit workers field or, in legacy bare
	// task array responses, from the tasks themselves.
	if len(roles) == 0 {
		seen := make(map[string]bool)
		for _, t := range tasks {
			if t.WorkerRole != "" && !seen[t.WorkerRole] {
				seen[t.WorkerRole] = true
				roles = append(roles, t.WorkerRole)
			}
		}
	}
	if len(roles) == 0 {
		roles = []string{fallbackRole}
	}

	var workers []models.WorkerDefinition
	known := make(map[string]bool)
	for _, role := range roles {
		if known[role] {
			continue
		}
		def, recognized := catalog.Resolve(role)
		if !recognized {
			p.logf("[planner] no preset or user worker for role %q, synthesized generic worker", role)
		}
		workers = append(workers, def)
		known[role] = true
	}

	planned := make([]models.PlannedTask, len(tasks))
	for i, t := range tasks {
		role := t.WorkerRole
		if !known[role] {
			// Tasks are never dropped for an unknown role; remap to the
			// first materialized worker.
			p.logf("[planner] task %d declared unknown role %q, remapped to %q", i, role, workers[0].Role)
			role = workers[0].Role
		}
		planned[i] = models.PlannedTask{
			Index:       i,
			WorkerRole:  role,
			Description: t.Description,
			DependsOn:   append([]int(nil), t.DependsOn...),
		}
	}

	return Plan{Workers: workers, Tasks: planned}
}

// fallbackPlan is the deterministic recovery plan: a single full-goal task
// for the coder role (user override if present, else preset).
func (p *Planner) fallbackPlan(goal string, catalog *worker.Catalog) Plan {
	def, _ := catalog.Resolve(fallbackRole)
	return Plan{
		Workers: []models.WorkerDefinition{def},
		Tasks: []models.PlannedTask{
			{Index: 0, WorkerRole: def.Role, Description: goal},
		},
	}
}

// parseResponse decodes the model's planning output. Both the legacy bare
// task array and the {workers, tasks} object are accepted; Markdown code
// fences are stripped first.
func parseResponse(response string) ([]string, []plannedTaskJSON, error) {
	cleaned := stripCodeFences(response)

	objStart := strings.Index(cleaned, "{")
	arrStart := strings.Index(cleaned, "[")

	// Object form with worker auto-selection: the first JSON bracket in
	// the response is "{". A bare task array starts with "[" even though
	// it contains objects.
	if objStart != -1 && (arrStart == -1 || objStart < arrStart) {
		end := strings.LastIndex(cleaned, "}")
		if end <= objStart {
			return nil, nil, fmt.Errorf("unterminated JSON object in planning response")
		}
		var obj planJSON
		if err := json.Unmarshal([]byte(cleaned[objStart:end+1]), &obj); err != nil {
			return nil, nil, fmt.Errorf("unmarshal planning object: %w", err)
		}
		if obj.Tasks == nil {
			return nil, nil, fmt.Errorf("planning response object missing tasks field")
		}
		if len(obj.Tasks) == 0 {
			return nil, nil, fmt.Errorf("empty task list returned")
		}
		return obj.Workers, obj.Tasks, nil
	}

	// Legacy bare array form.
	end := strings.LastIndex(cleaned, "]")
	if arrStart == -1 || end <= arrStart {
		return nil, nil, fmt.Errorf("no JSON object or array found in planning response (%d chars)", len(response))
	}
	var tasks []plannedTaskJSON
	if err := json.Unmarshal([]byte(cleaned[arrStart:end+1]), &tasks); err != nil {
		return nil, nil, fmt.Errorf("unmarshal task array: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil, fmt.Errorf("empty task list returned")
	}
	return nil, tasks, nil
}

// stripCodeFences removes Markdown code-fence wrappers (``` or ```json)
// around the response body.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	// Drop the opening fence line (which may carry a language tag) and a
	// trailing fence line if present.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
