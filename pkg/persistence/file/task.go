package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/persistence"
	"github.com/google/uuid"
)

// TaskByID retrieves a task by its ID from the file system.
func (fp *Persistence) TaskByID(_ context.Context, id string) (*models.Task, error) {
	var task models.Task

	found, err := fp.read(tasksDir, id, &task)
	if err != nil || !found {
		return nil, err
	}

	return &task, nil
}

// Tasks returns every task ordered by creation time.
func (fp *Persistence) Tasks(ctx context.Context) ([]*models.Task, error) {
	ids, err := fp.ids(tasksDir)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(ids))

	for _, id := range ids {
		task, err := fp.TaskByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if task != nil {
			tasks = append(tasks, task)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

func (fp *Persistence) TasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	tasks, err := fp.Tasks(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Task, 0, len(tasks))

	for _, task := range tasks {
		if task.Status == status {
			filtered = append(filtered, task)
		}
	}

	return filtered, nil
}

// SaveTask saves a task to the file system.
func (fp *Persistence) SaveTask(_ context.Context, task *models.Task) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

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

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	return fp.write(tasksDir, task.ID, task)
}

// UpdateTaskStatus rewrites status, last error and, when given, start time.
func (fp *Persistence) UpdateTaskStatus(_ context.Context, id string, status models.TaskStatus, startTime *time.Time, lastError string) error {
	if !persistence.ValidTaskStatus(string(status)) {
		return persistence.NewTaskError("UpdateStatus", id, persistence.ErrInvalidTaskStatus)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	var task models.Task

	found, err := fp.read(tasksDir, id, &task)
	if err != nil {
		return persistence.NewTaskError("UpdateStatus", id, err)
	}

	if !found {
		return persistence.NewTaskError("UpdateStatus", id, persistence.ErrTaskNotFound)
	}

	task.Status = status
	task.LastError = lastError
	task.UpdatedAt = time.Now().UTC()

	if startTime != nil {
		started := startTime.UTC()
		task.StartTime = &started
	}

	return fp.write(tasksDir, id, &task)
}
