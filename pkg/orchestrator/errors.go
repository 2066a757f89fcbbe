package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dukex/browserflow/pkg/compiler"
	"github.com/dukex/browserflow/pkg/devtools"
	"github.com/dukex/browserflow/pkg/dispatcher"
	"github.com/dukex/browserflow/pkg/hostapi"
	"github.com/dukex/browserflow/pkg/sessions"
)

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrNoSessionsConfigured = errors.New("task has no browser sessions configured")
	ErrNoSessionsStarted    = errors.New("no browser session could be started")
	ErrNoServersConfigured  = errors.New("task has no runner servers configured")
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrServerNotFound       = errors.New("runner server not found")
	ErrTaskRunning          = errors.New("task is already running")
)

// TaskError records which step of a task execution failed.
type TaskError struct {
	Op        string
	TaskID    string
	SessionID string
	ServerID  string
	Run       int
	Err       error
}

func (e *TaskError) Error() string {
	switch {
	case e.ServerID != "" && e.SessionID != "":
		return fmt.Sprintf("%s task %s (run %d, server %s, session %s): %v", e.Op, e.TaskID, e.Run, e.ServerID, e.SessionID, e.Err)
	case e.SessionID != "":
		return fmt.Sprintf("%s task %s (session %s): %v", e.Op, e.TaskID, e.SessionID, e.Err)
	case e.ServerID != "":
		return fmt.Sprintf("%s task %s (server %s): %v", e.Op, e.TaskID, e.ServerID, e.Err)
	default:
		return fmt.Sprintf("%s task %s: %v", e.Op, e.TaskID, e.Err)
	}
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// IsValidationError reports failures that happen before the task runs:
// a missing configuration or an invalid graph.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoSessionsConfigured) ||
		errors.Is(err, ErrNoServersConfigured) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrServerNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		compiler.IsGraphError(err)
}

// IsTransientHostError reports network failures and non-2xx answers from the
// browser host, the debug endpoint or a runner.
func IsTransientHostError(err error) bool {
	return hostapi.IsTransient(err) ||
		dispatcher.IsNetwork(err) ||
		dispatcher.IsRejected(err) ||
		errors.Is(err, devtools.ErrEndpointUnavailable) ||
		errors.Is(err, ErrNoSessionsStarted)
}

func IsTimeoutError(err error) bool {
	return sessions.IsPortTimeout(err) || dispatcher.IsTimeout(err) || hostapi.IsTimeout(err)
}

// Kind classifies err for traces and logs.
func Kind(err error) string {
	switch {
	case IsValidationError(err):
		return "validation"
	case IsTimeoutError(err):
		return "timeout"
	case IsTransientHostError(err):
		return "host"
	default:
		return ""
	}
}

// Describe turns an execution failure into the message stored on the task.
func Describe(err error) string {
	var (
		taskErr     *TaskError
		graphErr    *compiler.GraphError
		portErr     *sessions.PortTimeoutError
		rejectedErr *dispatcher.RejectedError
		hostErr     *hostapi.HostError
	)

	where := "the runner"
	if errors.As(err, &taskErr) {
		switch {
		case taskErr.ServerID != "" && taskErr.SessionID != "":
			where = fmt.Sprintf("runner %s (session %s)", taskErr.ServerID, taskErr.SessionID)
		case taskErr.ServerID != "":
			where = "runner " + taskErr.ServerID
		case taskErr.SessionID != "":
			where = "session " + taskErr.SessionID
		}
	}

	switch {
	case errors.Is(err, ErrNoSessionsConfigured):
		return "No browser sessions are configured for this task."
	case errors.Is(err, ErrNoSessionsStarted):
		return "None of the task's browser sessions could be started."
	case errors.Is(err, ErrNoServersConfigured):
		return "No runner servers are configured for this task."
	case errors.Is(err, ErrWorkflowNotFound):
		return "The task's workflow no longer exists."
	case errors.Is(err, ErrServerNotFound):
		return fmt.Sprintf("Unknown %s.", where)
	case sessions.IsSessionNotFound(err):
		var sessionErr *sessions.SessionError
		if errors.As(err, &sessionErr) {
			return fmt.Sprintf("The browser host has no session %s.", sessionErr.SessionID)
		}

		return "The browser host has no such session."
	case errors.As(err, &graphErr):
		return fmt.Sprintf("The workflow graph is invalid: %v.", graphErr)
	case errors.As(err, &portErr):
		return fmt.Sprintf("Browser session %s did not open debug port %d within %s.",
			portErr.SessionID, portErr.Port, portErr.Elapsed)
	case errors.Is(err, devtools.ErrEndpointUnavailable):
		return fmt.Sprintf("The debug endpoint of %s could not be reached.", where)
	case dispatcher.IsTimeout(err):
		return fmt.Sprintf("No answer from %s in time.", where)
	case errors.As(err, &rejectedErr):
		return fmt.Sprintf("The workflow was rejected by %s: %s", where, rejectedErr.Message)
	case dispatcher.IsNetwork(err):
		return fmt.Sprintf("Could not reach %s.", where)
	case hostapi.IsPortClosed(err) && errors.As(err, &hostErr):
		return fmt.Sprintf("The browser host on port %d is not running.", hostErr.Port)
	case hostapi.IsTimeout(err):
		return "The browser host did not answer in time."
	case errors.As(err, &hostErr):
		return "The browser host reported an error: " + hostErr.Message
	default:
		return err.Error()
	}
}
