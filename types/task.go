package types

import "time"

// Task is a unit of work owned by exactly one user.
// It is only ever visible to, or mutable by, its owner.
type Task struct {
	// ID is the unique identifier of the task.
	ID int `json:"id" db:"id"`

	// Title is the short name of the task.
	Title string `json:"title" db:"title"`

	// Description holds free-form details about the task.
	Description string `json:"description" db:"description"`

	// IsComplete marks the task as done. New tasks default to false.
	IsComplete bool `json:"is_complete" db:"is_complete"`

	// OwnerID references the user that owns the task.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// CreatedAt is the timestamp at which the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskFields are the caller-editable fields of a task.
type TaskFields struct {
	Title       string
	Description string
	IsComplete  bool
}
