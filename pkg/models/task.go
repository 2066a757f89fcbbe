package models

import "time"

// TaskStatus is the persisted execution state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusInProcess TaskStatus = "in_process"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusError     TaskStatus = "error"
)

// BrowserSessionTypeSession marks a reference the engine starts and stops itself.
const BrowserSessionTypeSession = "session"

// BrowserSessionRef points at a host-owned session by id.
type BrowserSessionRef struct {
	ID   string `json:"id"   validate:"required"`
	Type string `json:"type" validate:"required"`
}

// Task binds a workflow to the sessions and runner servers it executes on.
type Task struct {
	ID              string              `json:"id"`
	WorkflowID      string              `json:"workflow_id"      validate:"required"`
	Servers         []string            `json:"servers"`
	BrowserSessions []BrowserSessionRef `json:"browser_sessions" validate:"dive"`
	Status          TaskStatus          `json:"status"`
	RunImmediately  bool                `json:"run_immediately"`
	StartTime       *time.Time          `json:"start_time,omitempty"`
	RepeatCount     uint                `json:"repeat_count"`
	LastError       string              `json:"last_error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// IsTerminal reports whether the status only changes through a fresh run.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// CanTransitionTo reports whether moving from s to next is allowed.
// A task leaves in_process only through done or error; terminal tasks may be
// restarted, and a failure before dispatch can move any idle task to error.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending, "":
		return next == TaskStatusInProcess || next == TaskStatusError
	case TaskStatusInProcess:
		return next == TaskStatusDone || next == TaskStatusError
	case TaskStatusDone, TaskStatusError:
		return next == TaskStatusInProcess || next == TaskStatusError || next == TaskStatusDone
	default:
		return false
	}
}

// SessionRefs returns the references the engine manages itself.
func (t *Task) SessionRefs() []BrowserSessionRef {
	refs := make([]BrowserSessionRef, 0, len(t.BrowserSessions))

	for _, ref := range t.BrowserSessions {
		if ref.Type == BrowserSessionTypeSession {
			refs = append(refs, ref)
		}
	}

	return refs
}

// Runs is how many dispatch rounds one execution performs.
func (t *Task) Runs() int {
	if t.RepeatCount == 0 {
		return 1
	}

	return int(t.RepeatCount)
}

// IsDue reports whether a pending task should start at now.
func (t *Task) IsDue(now time.Time) bool {
	if t.Status != TaskStatusPending {
		return false
	}

	if t.RunImmediately {
		return true
	}

	return t.StartTime != nil && !t.StartTime.After(now)
}
