package scheduler

import (
	"context"

	"github.com/mkarras/foreman/internal/worker"
	"github.com/mkarras/foreman/pkg/models"
)

// SessionExecutor routes task execution through the per-role session
// manager. One session per role is reused across tasks in a run, so
// same-role tasks in the same batch serialize on the session's lock.
type SessionExecutor struct {
	manager *worker.Manager
}

// NewSessionExecutor creates a SessionExecutor over the given manager.
func NewSessionExecutor(manager *worker.Manager) *SessionExecutor {
	return &SessionExecutor{manager: manager}
}

// Execute implements Executor.
func (e *SessionExecutor) Execute(ctx context.Context, def models.WorkerDefinition, task models.PlannedTask, depContext map[string]string) (string, error) {
	session := e.manager.GetOrCreate(def)
	return session.ExecuteTask(ctx, task.Description, depContext)
}
