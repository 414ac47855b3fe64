// Package models defines the shared data types for foreman orchestration runs.
package models

// TaskStatus represents the terminal state of an executed task.
type TaskStatus string

const (
	// TaskStatusSuccess indicates the task completed successfully.
	TaskStatusSuccess TaskStatus = "success"
	// TaskStatusError indicates the task's worker session failed or timed out.
	TaskStatusError TaskStatus = "error"
	// TaskStatusSkipped indicates the task was never executed because a
	// dependency failed or the dependency graph deadlocked.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusError, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// PlannedTask is a single unit of work produced by the planner.
// Tasks are immutable once planning completes.
type PlannedTask struct {
	// Index is the task's position in the plan. Dependency references
	// use this index.
	Index int `json:"index"`
	// WorkerRole names the worker that should execute this task.
	WorkerRole string `json:"worker_role"`
	// Description is the full task description handed to the worker.
	Description string `json:"description"`
	// DependsOn lists indices of tasks that must complete first.
	DependsOn []int `json:"depends_on,omitempty"`
}

// TaskResult records the outcome of one planned task.
// The scheduler produces exactly one result per planned task, ordered by
// task index regardless of completion order.
type TaskResult struct {
	// Index matches the planned task's index.
	Index int `json:"index"`
	// WorkerRole is the role that executed (or would have executed) the task.
	WorkerRole string `json:"worker_role"`
	// Description is the planned task description.
	Description string `json:"description"`
	// Status is the terminal status of the task.
	Status TaskStatus `json:"status"`
	// Output is the worker's accumulated reply text, or an explanation
	// for error/skipped tasks.
	Output string `json:"output"`
}
