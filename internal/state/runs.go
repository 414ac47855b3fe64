package state

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/mkarras/foreman/pkg/models"
)

// Run is one persisted orchestration run.
type Run struct {
	ID         string
	Goal       string
	Summary    string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []models.TaskResult
}

// RunStore handles run-history persistence operations.
type RunStore interface {
	SaveRun(run *Run) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the persistence surface consumed by the CLI.
type Store interface {
	io.Closer
	Migrator
	RunStore
}

var _ Store = (*DB)(nil)

// SaveRun persists a run and its task results in one transaction.
func (db *DB) SaveRun(run *Run) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, goal, summary, status, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			status = excluded.status,
			finished_at = excluded.finished_at
	`, run.ID, run.Goal, run.Summary, run.Status, run.StartedAt, run.FinishedAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range run.Results {
		_, err = tx.Exec(`
			INSERT INTO task_results (run_id, task_index, worker_role, description, status, output)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, task_index) DO UPDATE SET
				status = excluded.status,
				output = excluded.output
		`, run.ID, res.Index, res.WorkerRole, res.Description, string(res.Status), res.Output)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert task result %d: %w", res.Index, err)
		}
	}

	return tx.Commit()
}

// GetRun loads one run with its task results ordered by task index.
func (db *DB) GetRun(id string) (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	run := &Run{}
	var finished sql.NullTime
	err := db.conn.QueryRow(`
		SELECT id, goal, summary, status, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Goal, &run.Summary, &run.Status, &run.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}

	rows, err := db.conn.Query(`
		SELECT task_index, worker_role, description, status, output
		FROM task_results WHERE run_id = ? ORDER BY task_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res models.TaskResult
		var status string
		if err := rows.Scan(&res.Index, &res.WorkerRole, &res.Description, &status, &res.Output); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		res.Status = models.TaskStatus(status)
		run.Results = append(run.Results, res)
	}
	return run, rows.Err()
}

// ListRuns returns the most recent runs, newest first, without their
// task results.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT id, goal, summary, status, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Goal, &run.Summary, &run.Status, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
