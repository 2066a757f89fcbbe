// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTaskNotFound indicates an update targeted a task that does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrServerNotFound indicates a runner server was not found by the given identifier.
	ErrServerNotFound = errors.New("server not found")

	// ErrInvalidTaskStatus indicates a status outside pending/in_process/done/error.
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// TaskError wraps task-related errors with additional context.
type TaskError struct {
	Op     string // Operation being performed (e.g., "Save", "UpdateStatus")
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for task errors.
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task error with context.
func NewTaskError(op, taskID string, err error) *TaskError {
	return &TaskError{Op: op, TaskID: taskID, Err: err}
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsServerNotFound checks if an error indicates a server was not found.
func IsServerNotFound(err error) bool {
	return errors.Is(err, ErrServerNotFound)
}

// ValidTaskStatus reports whether status is one the store accepts.
func ValidTaskStatus(status string) bool {
	switch status {
	case "pending", "in_process", "done", "error":
		return true
	default:
		return false
	}
}
