package types

import "time"

// TaskEventType names a task lifecycle transition.
type TaskEventType string

const (
	TaskCreated TaskEventType = "task.created"
	TaskUpdated TaskEventType = "task.updated"
	TaskDeleted TaskEventType = "task.deleted"
)

// TaskEvent is published to the task events channel after a task
// mutation has been committed. Task is nil for deletions.
type TaskEvent struct {
	Type       TaskEventType `json:"type"`
	TaskID     int           `json:"task_id"`
	OwnerID    int           `json:"owner_id"`
	Task       *Task         `json:"task,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
