package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarras/foreman/internal/planner"
	"github.com/mkarras/foreman/internal/scheduler"
	"github.com/mkarras/foreman/internal/transport"
	"github.com/mkarras/foreman/internal/worker"
	"github.com/mkarras/foreman/pkg/models"
)

// RunResult is the terminal output of a planned-mode orchestration run.
type RunResult struct {
	// RunID uniquely identifies the run.
	RunID string
	// Goal is the user goal that was decomposed.
	Goal string
	// Workers is the materialized worker set.
	Workers []models.WorkerDefinition
	// Results is the full ordered task result list.
	Results []models.TaskResult
	// Summary is the synthesized final answer.
	Summary string
	// StartedAt and FinishedAt bound the run's wall-clock duration.
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner executes a full planned-mode orchestration: decompose the goal
// into a task DAG, execute it batch-concurrently through worker sessions,
// and synthesize a final summary. Every run emits exactly one terminal
// event, EventFinished or EventError.
type Runner struct {
	client transport.Client
	router *transport.Router
	opts   *options
}

// NewRunner creates a planned-mode Runner over the given transport.
func NewRunner(client transport.Client, router *transport.Router, opts ...Option) *Runner {
	o := defaultOptions().apply(opts)
	setPackageLogger(o.logger)
	return &Runner{
		client: client,
		router: router,
		opts:   o,
	}
}

// Events returns the run's event stream for observers.
func (r *Runner) Events() <-chan Event {
	return r.opts.emitter.Events()
}

// CloseEvents closes the event stream. Call after Run returns and all
// subscribers have drained.
func (r *Runner) CloseEvents() {
	r.opts.emitter.Close()
}

// Run performs one orchestration of the goal against the worker catalog.
// Planning and summary failures are recovered internally; only
// cancellation and transport-level scheduler failures terminate the run
// with an error.
func (r *Runner) Run(ctx context.Context, goal string, catalog *worker.Catalog) (RunResult, error) {
	run := RunResult{
		RunID:     uuid.New().String(),
		Goal:      goal,
		StartedAt: time.Now(),
	}
	debugLog("run %s started: %q", run.RunID, goal)

	r.emit(Event{Type: EventPlanStarted, Message: goal})

	plan, err := r.plan(ctx, goal, catalog)
	if err != nil {
		return run, r.fail(run, fmt.Errorf("plan goal: %w", err))
	}
	run.Workers = plan.Workers

	roles := make([]string, 0, len(plan.Workers))
	for _, w := range plan.Workers {
		roles = append(roles, w.Role)
	}
	r.emit(Event{Type: EventWorkersGenerated, Message: strings.Join(roles, ", ")})
	r.emit(Event{Type: EventPlanCompleted, Message: fmt.Sprintf("%d tasks planned", len(plan.Tasks))})
	debugLog("run %s: %d workers, %d tasks", run.RunID, len(plan.Workers), len(plan.Tasks))

	results, err := r.execute(ctx, plan)
	if err != nil {
		return run, r.fail(run, fmt.Errorf("execute plan: %w", err))
	}
	run.Results = results

	r.emit(Event{Type: EventSummarizeStarted})
	summary, err := r.summarize(ctx, goal, results)
	if err != nil {
		return run, r.fail(run, fmt.Errorf("summarize results: %w", err))
	}
	run.Summary = summary
	r.emit(Event{Type: EventSummarizeCompleted, Message: summary})

	run.FinishedAt = time.Now()
	r.emit(Event{Type: EventFinished, Message: summary})
	debugLog("run %s finished in %s", run.RunID, run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}

// plan decomposes the goal with a dedicated chat-only session.
func (r *Runner) plan(ctx context.Context, goal string, catalog *worker.Catalog) (planner.Plan, error) {
	def := models.WorkerDefinition{
		Role:             "planner",
		Description:      "decomposes goals into dependency-ordered task lists",
		AgentModeEnabled: false,
		Model:            r.opts.leadModel,
	}
	session := worker.NewSession(def, r.client, r.router, worker.SessionHooks{})
	session.SetTimeouts(r.opts.agentTimeout, r.opts.chatTimeout)

	p := planner.New(session)
	p.SetLogf(debugLog)
	return p.Plan(ctx, goal, catalog)
}

// execute drives the task DAG through a session manager, bridging
// scheduler hooks and session streaming into the event stream.
func (r *Runner) execute(ctx context.Context, plan planner.Plan) ([]models.TaskResult, error) {
	manager := worker.NewManager(r.client, r.router, worker.SessionHooks{
		OnDelta: func(role, delta string) {
			r.emit(Event{Type: EventTaskProgress, Role: role, Delta: delta})
		},
		OnToolCall: func(role, toolName string) {
			r.emit(Event{Type: EventTaskTool, Role: role, ToolName: toolName})
		},
		OnConversationID: func(conversationID string) {
			r.emit(Event{Type: EventConversationID, ConversationID: conversationID})
		},
	})
	manager.SetTimeouts(r.opts.agentTimeout, r.opts.chatTimeout)

	sched := scheduler.New(scheduler.NewSessionExecutor(manager), scheduler.Hooks{
		OnTaskAssigned: func(task models.PlannedTask) {
			r.emit(Event{Type: EventTaskAssigned, TaskIndex: task.Index, Role: task.WorkerRole, Message: task.Description})
		},
		OnTaskCompleted: func(result models.TaskResult) {
			r.emit(Event{Type: EventTaskCompleted, TaskIndex: result.Index, Role: result.WorkerRole, Status: string(result.Status), Message: result.Output})
		},
	})
	sched.SetLogf(debugLog)

	return sched.Execute(ctx, plan.Tasks, plan.Workers)
}

// summarize produces the final answer with a fresh chat-only session.
func (r *Runner) summarize(ctx context.Context, goal string, results []models.TaskResult) (string, error) {
	def := models.WorkerDefinition{
		Role:             "synthesizer",
		Description:      "summarizes task results into a final answer",
		AgentModeEnabled: false,
		Model:            r.opts.leadModel,
	}
	session := worker.NewSession(def, r.client, r.router, worker.SessionHooks{})
	session.SetTimeouts(r.opts.agentTimeout, r.opts.chatTimeout)

	return NewSynthesizer(session).Summarize(ctx, goal, results)
}

func (r *Runner) emit(event Event) {
	event.Timestamp = time.Now()
	r.opts.emitter.Emit(event)
}

// fail emits the run's single terminal error event.
func (r *Runner) fail(run RunResult, err error) error {
	debugLog("run %s failed: %v", run.RunID, err)
	r.emit(Event{Type: EventError, Error: err})
	return err
}
