// Package persistence is the storage boundary for tasks, workflow graphs and
// runner servers. The engine reads graphs and writes task status.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/browserflow/pkg/models"
)

// Persistence lookups return (nil, nil) when the entity does not exist.
type Persistence interface {
	TaskByID(ctx context.Context, id string) (*models.Task, error)
	Tasks(ctx context.Context) ([]*models.Task, error)
	TasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
	SaveTask(ctx context.Context, task *models.Task) error
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, startTime *time.Time, lastError string) error

	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error

	ServerByID(ctx context.Context, id string) (*models.Server, error)
	SaveServer(ctx context.Context, server *models.Server) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
