package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const taskColumns = `
			id
		  , workflow_id
		  , servers
		  , browser_sessions
		  , status
		  , run_immediately
		  , start_time
		  , repeat_count
		  , last_error
		  , created_at
		  , updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task      models.Task
		servers   pq.StringArray
		sessions  []byte
		startTime sql.NullTime
		repeat    int64
	)

	err := row.Scan(
		&task.ID,
		&task.WorkflowID,
		&servers,
		&sessions,
		&task.Status,
		&task.RunImmediately,
		&startTime,
		&repeat,
		&task.LastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Servers = []string(servers)
	task.RepeatCount = uint(max(repeat, 0))

	if startTime.Valid {
		started := startTime.Time
		task.StartTime = &started
	}

	if err := json.Unmarshal(sessions, &task.BrowserSessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal browser sessions of task %s: %w", task.ID, err)
	}

	return &task, nil
}

// TaskByID returns a task by its ID.
func (p *Persistence) TaskByID(ctx context.Context, id string) (*models.Task, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

// Tasks returns every task ordered by creation time.
func (p *Persistence) Tasks(ctx context.Context) ([]*models.Task, error) {
	return p.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
}

func (p *Persistence) TasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	return p.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY created_at ASC`, status)
}

func (p *Persistence) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer p.closeRows(ctx, rows)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// SaveTask inserts or replaces a task.
func (p *Persistence) SaveTask(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	if task.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate task ID: %w", err)
		}

		task.ID = id.String()
	}

	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	sessions, err := json.Marshal(nonNil(task.BrowserSessions))
	if err != nil {
		return fmt.Errorf("failed to marshal browser sessions: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id
		  , servers = EXCLUDED.servers
		  , browser_sessions = EXCLUDED.browser_sessions
		  , status = EXCLUDED.status
		  , run_immediately = EXCLUDED.run_immediately
		  , start_time = EXCLUDED.start_time
		  , repeat_count = EXCLUDED.repeat_count
		  , last_error = EXCLUDED.last_error
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		task.ID,
		task.WorkflowID,
		pq.Array(nonNil(task.Servers)),
		sessions,
		task.Status,
		task.RunImmediately,
		task.StartTime,
		int64(task.RepeatCount), //nolint:gosec // repeat counts are small
		task.LastError,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTaskError("Save", task.ID, err)
	}

	return nil
}

// UpdateTaskStatus sets status and last error; start_time only changes when given.
func (p *Persistence) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, startTime *time.Time, lastError string) error {
	if !persistence.ValidTaskStatus(string(status)) {
		return persistence.NewTaskError("UpdateStatus", id, persistence.ErrInvalidTaskStatus)
	}

	query := `
		UPDATE tasks SET
			status = $2
		  , start_time = COALESCE($3, start_time)
		  , last_error = $4
		  , updated_at = $5
		WHERE id = $1
	`

	result, err := p.db.ExecContext(ctx, query, id, status, startTime, lastError, time.Now().UTC())
	if err != nil {
		return persistence.NewTaskError("UpdateStatus", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTaskError("UpdateStatus", id, err)
	}

	if affected == 0 {
		return persistence.NewTaskError("UpdateStatus", id, persistence.ErrTaskNotFound)
	}

	return nil
}
