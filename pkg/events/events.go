// Package events defines task lifecycle notifications published by the engine.
package events

import (
	"time"
)

type EventType string

// Topic carries every task lifecycle event.
const Topic = "browserflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TaskStartedEvent   EventType = "task.started"
	TaskCompletedEvent EventType = "task.completed"
	TaskFailedEvent    EventType = "task.failed"
	TaskStoppedEvent   EventType = "task.stopped"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TaskID     string         `json:"task_id"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TaskStarted is published once the task is in_process.
type TaskStarted struct {
	BaseEvent

	Sessions []string `json:"sessions"`
	Servers  []string `json:"servers"`
	Runs     int      `json:"runs"`
}

func (e TaskStarted) GetType() EventType {
	return TaskStartedEvent
}

type TaskCompleted struct {
	BaseEvent

	Dispatches int           `json:"dispatches"`
	Duration   time.Duration `json:"duration"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

// TaskFailed carries the user-facing message stored as the task's last error.
type TaskFailed struct {
	BaseEvent

	Error      string        `json:"error"`
	Dispatches int           `json:"dispatches"`
	Duration   time.Duration `json:"duration"`
}

func (e TaskFailed) GetType() EventType {
	return TaskFailedEvent
}

type TaskStopped struct {
	BaseEvent

	Sessions []string `json:"sessions"`
	Error    string   `json:"error,omitempty"`
}

func (e TaskStopped) GetType() EventType {
	return TaskStoppedEvent
}

// NewBase stamps a base event for the given task.
func NewBase(id string, eventType EventType, taskID, workflowID string, now time.Time) BaseEvent {
	return BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  now.UTC(),
		TaskID:     taskID,
		WorkflowID: workflowID,
	}
}
