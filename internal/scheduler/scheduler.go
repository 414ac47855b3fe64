// Package scheduler executes a planned task DAG: it repeatedly computes
// the ready frontier, runs the whole frontier concurrently, and repeats
// until no tasks remain or the graph deadlocks.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkarras/foreman/internal/graph"
	"github.com/mkarras/foreman/pkg/models"
)

// skippedOutput is the output recorded for tasks that never executed.
const skippedOutput = "Not executed (dependency failure)"

// Executor runs one task on a worker. The production implementation routes
// through the per-role session manager; tests substitute fakes.
type Executor interface {
	Execute(ctx context.Context, def models.WorkerDefinition, task models.PlannedTask, depContext map[string]string) (string, error)
}

// Hooks are optional observer callbacks for scheduling progress.
type Hooks struct {
	// OnTaskAssigned fires when a task is launched into a batch.
	OnTaskAssigned func(task models.PlannedTask)
	// OnTaskCompleted fires as each task settles, in completion order.
	OnTaskCompleted func(result models.TaskResult)
}

// Scheduler drives DAG execution over an Executor.
type Scheduler struct {
	executor Executor
	hooks    Hooks
	logf     func(format string, args ...interface{})
}

// New creates a Scheduler.
func New(executor Executor, hooks Hooks) *Scheduler {
	return &Scheduler{
		executor: executor,
		hooks:    hooks,
		logf:     func(string, ...interface{}) {},
	}
}

// SetLogf sets the debug logging function.
func (s *Scheduler) SetLogf(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.logf = fn
	}
}

// Execute runs the planned tasks against the worker set and returns one
// result per task, ordered by task index regardless of completion order.
// All tasks in a ready frontier run concurrently; rounds are sequential.
// A task failure is recorded as an error result and never aborts siblings
// in the same batch. Only context cancellation returns an error.
func (s *Scheduler) Execute(ctx context.Context, tasks []models.PlannedTask, workers []models.WorkerDefinition) ([]models.TaskResult, error) {
	defs := make(map[string]models.WorkerDefinition, len(workers))
	for _, w := range workers {
		defs[w.Role] = w
	}

	g := graph.New(tasks)
	completed := make(map[int]models.TaskResult, len(tasks))

	for {
		if err := ctx.Err(); err != nil {
			return s.finalize(tasks, completed), err
		}

		ready := g.Ready()
		pending := g.Pending()
		if len(ready) == 0 {
			if len(pending) > 0 {
				// Cyclic or otherwise unsatisfiable dependencies: no
				// task can make progress. Terminate early; the
				// remaining tasks surface as skipped.
				s.logf("[scheduler] deadlock: %d pending tasks with empty ready frontier (cycle=%v): %v",
					len(pending), g.HasCycle(), pending)
			}
			break
		}

		s.logf("[scheduler] launching batch of %d ready tasks: %v", len(ready), ready)

		var wg sync.WaitGroup
		results := make([]models.TaskResult, len(ready))
		for i, idx := range ready {
			task, _ := g.Task(idx)
			depContext := s.dependencyContext(task, completed)

			if s.hooks.OnTaskAssigned != nil {
				s.hooks.OnTaskAssigned(task)
			}

			wg.Add(1)
			go func(i int, task models.PlannedTask, depContext map[string]string) {
				defer wg.Done()
				results[i] = s.runTask(ctx, defs, task, depContext)
			}(i, task, depContext)
		}
		wg.Wait()

		for _, result := range results {
			completed[result.Index] = result
			// Every settled task unblocks its dependents; dependents of
			// an errored task still run, with the error text in their
			// dependency context.
			g.MarkComplete(result.Index)
			if s.hooks.OnTaskCompleted != nil {
				s.hooks.OnTaskCompleted(result)
			}
		}
	}

	return s.finalize(tasks, completed), nil
}

// runTask executes one task and converts the outcome to a TaskResult.
// Worker failures are isolated here: a panic-free error return, never a
// propagated failure.
func (s *Scheduler) runTask(ctx context.Context, defs map[string]models.WorkerDefinition, task models.PlannedTask, depContext map[string]string) models.TaskResult {
	result := models.TaskResult{
		Index:       task.Index,
		WorkerRole:  task.WorkerRole,
		Description: task.Description,
	}

	def, ok := defs[task.WorkerRole]
	if !ok {
		result.Status = models.TaskStatusError
		result.Output = fmt.Sprintf("No worker materialized for role %q", task.WorkerRole)
		return result
	}

	output, err := s.executor.Execute(ctx, def, task, depContext)
	if err != nil {
		s.logf("[scheduler] task %d (%s) failed: %v", task.Index, task.WorkerRole, err)
		result.Status = models.TaskStatusError
		result.Output = err.Error()
		return result
	}

	result.Status = models.TaskStatusSuccess
	result.Output = output
	return result
}

// dependencyContext builds the shared-context map for a task from its
// completed dependencies: result_from_<role>_task_<index> -> output.
func (s *Scheduler) dependencyContext(task models.PlannedTask, completed map[int]models.TaskResult) map[string]string {
	if len(task.DependsOn) == 0 {
		return nil
	}
	depContext := make(map[string]string, len(task.DependsOn))
	for _, dep := range task.DependsOn {
		if res, ok := completed[dep]; ok {
			key := fmt.Sprintf("result_from_%s_task_%d", res.WorkerRole, dep)
			depContext[key] = res.Output
		}
	}
	return depContext
}

// finalize produces the ordered result list: the completed entry for each
// planned task, or a synthesized skipped result for tasks that never ran.
func (s *Scheduler) finalize(tasks []models.PlannedTask, completed map[int]models.TaskResult) []models.TaskResult {
	results := make([]models.TaskResult, 0, len(tasks))
	for _, task := range tasks {
		if res, ok := completed[task.Index]; ok {
			results = append(results, res)
			continue
		}
		results = append(results, models.TaskResult{
			Index:       task.Index,
			WorkerRole:  task.WorkerRole,
			Description: task.Description,
			Status:      models.TaskStatusSkipped,
			Output:      skippedOutput,
		})
	}
	return results
}
