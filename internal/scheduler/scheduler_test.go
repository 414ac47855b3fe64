package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mkarras/foreman/pkg/models"
)

// fakeExecutor records execution order and can fail or delay per task.
type fakeExecutor struct {
	mu          sync.Mutex
	started     []int
	finished    []int
	inFlight    int
	maxInFlight int
	delay       time.Duration
	failures    map[int]error
	outputs     map[int]string
	contexts    map[int]map[string]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		failures: make(map[int]error),
		outputs:  make(map[int]string),
		contexts: make(map[int]map[string]string),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, def models.WorkerDefinition, task models.PlannedTask, depContext map[string]string) (string, error) {
	f.mu.Lock()
	f.started = append(f.started, task.Index)
	f.contexts[task.Index] = depContext
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.finished = append(f.finished, task.Index)
	err := f.failures[task.Index]
	output, ok := f.outputs[task.Index]
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	if !ok {
		output = fmt.Sprintf("output-%d", task.Index)
	}
	return output, nil
}

func workers(roles ...string) []models.WorkerDefinition {
	defs := make([]models.WorkerDefinition, 0, len(roles))
	for _, role := range roles {
		defs = append(defs, models.WorkerDefinition{Role: role, AgentModeEnabled: true})
	}
	return defs
}

func plannedTask(index int, role string, deps ...int) models.PlannedTask {
	return models.PlannedTask{Index: index, WorkerRole: role, Description: fmt.Sprintf("task %d", index), DependsOn: deps}
}

func TestExecuteResultOrderMatchesIndexOrder(t *testing.T) {
	exec := newFakeExecutor()
	sched := New(exec, Hooks{})

	tasks := []models.PlannedTask{
		plannedTask(0, "coder"),
		plannedTask(1, "coder"),
		plannedTask(2, "coder"),
	}

	results, err := sched.Execute(context.Background(), tasks, workers("coder"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(results) != len(tasks) {
		t.Fatalf("expected %d results, got %d", len(tasks), len(results))
	}
	for i, res := range results {
		if res.Index != i {
			t.Errorf("result %d has index %d; order must match input indices", i, res.Index)
		}
		if res.Status != models.TaskStatusSuccess {
			t.Errorf("result %d status %s, want success", i, res.Status)
		}
	}
}

func TestExecuteReadyBatchRunsConcurrently(t *testing.T) {
	exec := newFakeExecutor()
	exec.delay = 50 * time.Millisecond
	sched := New(exec, Hooks{})

	// Two independent tasks must be in flight simultaneously.
	tasks := []models.PlannedTask{
		plannedTask(0, "coder"),
		plannedTask(1, "coder"),
	}

	start := time.Now()
	if _, err := sched.Execute(context.Background(), tasks, workers("coder")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	elapsed := time.Since(start)

	if exec.maxInFlight < 2 {
		t.Errorf("expected both tasks in flight together, max in flight was %d", exec.maxInFlight)
	}
	if elapsed > 90*time.Millisecond {
		t.Errorf("parallel batch took %s; tasks appear to have run sequentially", elapsed)
	}
}

func TestExecuteRoundsAreSequential(t *testing.T) {
	exec := newFakeExecutor()
	exec.delay = 10 * time.Millisecond
	sched := New(exec, Hooks{})

	// 1 depends on 0: round two must start after round one completes.
	tasks := []models.PlannedTask{
		plannedTask(0, "explorer"),
		plannedTask(1, "coder", 0),
	}

	if _, err := sched.Execute(context.Background(), tasks, workers("explorer", "coder")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if exec.maxInFlight != 1 {
		t.Errorf("dependent tasks must not overlap, max in flight was %d", exec.maxInFlight)
	}
	if len(exec.started) != 2 || exec.started[0] != 0 || exec.started[1] != 1 {
		t.Errorf("expected start order [0 1], got %v", exec.started)
	}
}

func TestExecuteDependencyContext(t *testing.T) {
	exec := newFakeExecutor()
	exec.outputs[0] = "auth lives in internal/auth"
	sched := New(exec, Hooks{})

	// Explorer task 0, coder task 1 depends on it.
	tasks := []models.PlannedTask{
		plannedTask(0, "explorer"),
		plannedTask(1, "coder", 0),
	}

	results, err := sched.Execute(context.Background(), tasks, workers("explorer", "coder"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	depCtx := exec.contexts[1]
	if depCtx == nil {
		t.Fatal("dependent task received no dependency context")
	}
	got, ok := depCtx["result_from_explorer_task_0"]
	if !ok {
		t.Fatalf("missing result_from_explorer_task_0 key, got %v", depCtx)
	}
	if got != "auth lives in internal/auth" {
		t.Errorf("unexpected dependency output %q", got)
	}

	if results[0].Index != 0 || results[1].Index != 1 {
		t.Error("result order must preserve [task0, task1]")
	}
}

func TestExecuteFailureDoesNotAbortSiblings(t *testing.T) {
	exec := newFakeExecutor()
	exec.failures[1] = errors.New("worker blew up")
	sched := New(exec, Hooks{})

	tasks := []models.PlannedTask{
		plannedTask(0, "coder"),
		plannedTask(1, "coder"),
		plannedTask(2, "coder"),
	}

	results, err := sched.Execute(context.Background(), tasks, workers("coder"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if results[0].Status != models.TaskStatusSuccess || results[2].Status != models.TaskStatusSuccess {
		t.Error("sibling tasks must complete despite a failure in the batch")
	}
	if results[1].Status != models.TaskStatusError {
		t.Errorf("failed task must report error status, got %s", results[1].Status)
	}
	if !strings.Contains(results[1].Output, "worker blew up") {
		t.Errorf("error result should carry the failure text, got %q", results[1].Output)
	}
}

func TestExecuteErroredDependencyStillUnblocksDependents(t *testing.T) {
	exec := newFakeExecutor()
	exec.failures[0] = errors.New("no luck")
	sched := New(exec, Hooks{})

	tasks := []models.PlannedTask{
		plannedTask(0, "coder"),
		plannedTask(1, "coder", 0),
	}

	results, err := sched.Execute(context.Background(), tasks, workers("coder"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// A settled (even errored) dependency is in the completed map, so the
	// dependent runs with the error text as context.
	if results[1].Status != models.TaskStatusSuccess {
		t.Errorf("dependent of an errored task should still run, got %s", results[1].Status)
	}
	if got := exec.contexts[1]["result_from_coder_task_0"]; !strings.Contains(got, "no luck") {
		t.Errorf("dependent should see the dependency's error output, got %q", got)
	}
}

func TestExecuteCycleDeadlockTerminatesWithSkipped(t *testing.T) {
	exec := newFakeExecutor()
	sched := New(exec, Hooks{})

	tasks := []models.PlannedTask{
		plannedTask(0, "coder", 1),
		plannedTask(1, "coder", 0),
		plannedTask(2, "coder"),
	}

	done := make(chan struct{})
	var results []models.TaskResult
	var execErr error
	go func() {
		results, execErr = sched.Execute(context.Background(), tasks, workers("coder"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not terminate on a cyclic graph")
	}
	if execErr != nil {
		t.Fatalf("Execute failed: %v", execErr)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Status != models.TaskStatusSkipped || results[1].Status != models.TaskStatusSkipped {
		t.Error("cyclic tasks must report skipped")
	}
	if results[0].Output != "Not executed (dependency failure)" {
		t.Errorf("unexpected skipped output %q", results[0].Output)
	}
	if results[2].Status != models.TaskStatusSuccess {
		t.Error("the acyclic task must still execute")
	}
}

func TestExecuteMissingDependencyIndexSkips(t *testing.T) {
	exec := newFakeExecutor()
	sched := New(exec, Hooks{})

	tasks := []models.PlannedTask{
		plannedTask(0, "coder"),
		plannedTask(1, "coder", 9),
	}

	results, err := sched.Execute(context.Background(), tasks, workers("coder"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if results[0].Status != models.TaskStatusSuccess {
		t.Error("task 0 should run normally")
	}
	if results[1].Status != models.TaskStatusSkipped {
		t.Errorf("task with missing dependency must be skipped, got %s", results[1].Status)
	}
}

func TestExecuteHooksFire(t *testing.T) {
	exec := newFakeExecutor()

	var mu sync.Mutex
	var assigned, completed []int
	sched := New(exec, Hooks{
		OnTaskAssigned: func(task models.PlannedTask) {
			mu.Lock()
			assigned = append(assigned, task.Index)
			mu.Unlock()
		},
		OnTaskCompleted: func(result models.TaskResult) {
			mu.Lock()
			completed = append(completed, result.Index)
			mu.Unlock()
		},
	})

	tasks := []models.PlannedTask{plannedTask(0, "coder"), plannedTask(1, "coder", 0)}
	if _, err := sched.Execute(context.Background(), tasks, workers("coder")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(assigned) != 2 || len(completed) != 2 {
		t.Errorf("expected hooks for both tasks, got assigned=%v completed=%v", assigned, completed)
	}
}

func TestExecuteCancellationPropagates(t *testing.T) {
	exec := newFakeExecutor()
	exec.delay = 50 * time.Millisecond
	sched := New(exec, Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	tasks := []models.PlannedTask{
		plannedTask(0, "coder"),
		plannedTask(1, "coder", 0),
	}

	_, err := sched.Execute(ctx, tasks, workers("coder"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteUnknownWorkerRoleErrorsTask(t *testing.T) {
	exec := newFakeExecutor()
	sched := New(exec, Hooks{})

	tasks := []models.PlannedTask{plannedTask(0, "ghost")}
	results, err := sched.Execute(context.Background(), tasks, workers("coder"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if results[0].Status != models.TaskStatusError {
		t.Errorf("task with no materialized worker must error, got %s", results[0].Status)
	}
}
