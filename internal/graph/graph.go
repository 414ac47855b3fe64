// Package graph provides the dependency graph over planned tasks used by
// the scheduler to compute ready frontiers.
package graph

import (
	"errors"
	"sort"
	"sync"

	"github.com/mkarras/foreman/pkg/models"
)

// ErrCycleDetected indicates a circular dependency among planned tasks.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed graph of task indices. Edges represent
// "blocked by" relationships. Unlike a strict DAG builder, construction
// never fails: cycles and references to missing indices are tolerated and
// simply leave the affected tasks permanently unready, which the scheduler
// reports as a deadlock.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task index to the planned task.
	nodes map[int]models.PlannedTask
	// edges maps task index to the indices it depends on.
	edges map[int][]int
	// completed tracks which tasks have been marked complete.
	completed map[int]bool
}

// New builds a graph from the planned task list.
func New(tasks []models.PlannedTask) *DependencyGraph {
	g := &DependencyGraph{
		nodes:     make(map[int]models.PlannedTask, len(tasks)),
		edges:     make(map[int][]int, len(tasks)),
		completed: make(map[int]bool),
	}
	for _, task := range tasks {
		g.nodes[task.Index] = task
		g.edges[task.Index] = append([]int(nil), task.DependsOn...)
	}
	return g
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[int]int, len(g.nodes))

	var visit func(idx int) bool
	visit = func(idx int) bool {
		colors[idx] = 1
		for _, dep := range g.edges[idx] {
			if _, exists := g.nodes[dep]; !exists {
				continue
			}
			switch colors[dep] {
			case 1:
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[idx] = 2
		return false
	}

	for idx := range g.nodes {
		if colors[idx] == 0 && visit(idx) {
			return true
		}
	}
	return false
}

// Ready returns the pending task indices whose dependencies have all
// completed, sorted ascending. A dependency on a missing index is never
// satisfied.
func (g *DependencyGraph) Ready() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []int
	for idx := range g.nodes {
		if g.completed[idx] {
			continue
		}

		satisfied := true
		for _, dep := range g.edges[idx] {
			if !g.completed[dep] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, idx)
		}
	}
	sort.Ints(ready)
	return ready
}

// MarkComplete records a task as completed, unblocking its dependents.
func (g *DependencyGraph) MarkComplete(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[index] = true
}

// Pending returns the indices not yet marked complete, sorted ascending.
func (g *DependencyGraph) Pending() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var pending []int
	for idx := range g.nodes {
		if !g.completed[idx] {
			pending = append(pending, idx)
		}
	}
	sort.Ints(pending)
	return pending
}

// Task returns the planned task at the given index.
func (g *DependencyGraph) Task(index int) (models.PlannedTask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	task, ok := g.nodes[index]
	return task, ok
}

// Dependencies returns the indices the given task depends on.
func (g *DependencyGraph) Dependencies(index int) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]int(nil), g.edges[index]...)
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
