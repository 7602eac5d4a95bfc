package services

import (
	"context"

	"github.com/tasktrack/apiserver/types"
)

// EventPublisher delivers task lifecycle events after a mutation commits.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event types.TaskEvent) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishTaskEvent(context.Context, types.TaskEvent) error {
	return nil
}
