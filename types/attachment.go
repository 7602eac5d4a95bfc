package types

import "time"

// Attachment describes the single file stored alongside a task.
//
// The file contents live in object storage under ObjectKey; only the
// metadata is kept in the database.
type Attachment struct {
	TaskID      int       `json:"task_id" db:"task_id"`
	ObjectKey   string    `json:"-" db:"object_key"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
