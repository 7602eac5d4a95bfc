package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

const maxTitleLength = 255

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task types.Task) (types.Task, error)
	ListByOwner(ctx context.Context, ownerID int) ([]types.Task, error)
	Get(ctx context.Context, id int) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	Delete(ctx context.Context, id int) error
}

// TaskService encapsulates task use-cases. Every operation is scoped to
// the calling owner; tasks owned by someone else are reported as
// store.ErrNotFound.
type TaskService struct {
	repo        TaskRepository
	attachments *AttachmentService
	events      EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewTaskService constructs a TaskService. attachments and events may be nil.
func NewTaskService(repo TaskRepository, attachments *AttachmentService, events EventPublisher, logger *slog.Logger) *TaskService {
	if events == nil {
		events = NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		repo:        repo,
		attachments: attachments,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *TaskService) Create(ctx context.Context, ownerID int, fields types.TaskFields) (types.Task, error) {
	fields, err := normalizeTaskFields(fields)
	if err != nil {
		return types.Task{}, err
	}

	task, err := s.repo.Create(ctx, types.Task{
		Title:       fields.Title,
		Description: fields.Description,
		IsComplete:  fields.IsComplete,
		OwnerID:     ownerID,
	})
	if err != nil {
		return types.Task{}, err
	}

	s.publish(ctx, types.TaskCreated, task.ID, ownerID, &task)
	return task, nil
}

func (s *TaskService) List(ctx context.Context, ownerID int) ([]types.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, ownerID, id int) (types.Task, error) {
	return ownedTask(ctx, s.repo, ownerID, id)
}

// Update replaces title, description and is_complete of an owned task.
func (s *TaskService) Update(ctx context.Context, ownerID, id int, fields types.TaskFields) (types.Task, error) {
	fields, err := normalizeTaskFields(fields)
	if err != nil {
		return types.Task{}, err
	}

	task, err := ownedTask(ctx, s.repo, ownerID, id)
	if err != nil {
		return types.Task{}, err
	}

	task.Title = fields.Title
	task.Description = fields.Description
	task.IsComplete = fields.IsComplete
	updated, err := s.repo.Update(ctx, task)
	if err != nil {
		return types.Task{}, err
	}

	s.publish(ctx, types.TaskUpdated, updated.ID, ownerID, &updated)
	return updated, nil
}

// Delete removes an owned task together with its attachment, if any.
func (s *TaskService) Delete(ctx context.Context, ownerID, id int) error {
	if _, err := ownedTask(ctx, s.repo, ownerID, id); err != nil {
		return err
	}

	objectKey := s.attachments.objectKey(ctx, id)
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if objectKey != "" {
		s.attachments.deleteObject(ctx, objectKey)
	}

	s.publish(ctx, types.TaskDeleted, id, ownerID, nil)
	return nil
}

func (s *TaskService) publish(ctx context.Context, eventType types.TaskEventType, taskID, ownerID int, task *types.Task) {
	event := types.TaskEvent{
		Type:       eventType,
		TaskID:     taskID,
		OwnerID:    ownerID,
		Task:       task,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.PublishTaskEvent(ctx, event); err != nil {
		s.logger.Warn("publish task event failed",
			slog.String("type", string(eventType)),
			slog.Int("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}
}

// ownedTask loads a task and hides it unless ownerID owns it.
func ownedTask(ctx context.Context, repo TaskRepository, ownerID, id int) (types.Task, error) {
	task, err := repo.Get(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if task.OwnerID != ownerID {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func normalizeTaskFields(fields types.TaskFields) (types.TaskFields, error) {
	fields.Title = strings.TrimSpace(fields.Title)
	if fields.Title == "" {
		return types.TaskFields{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(fields.Title) > maxTitleLength {
		return types.TaskFields{}, fmt.Errorf("%w: title is too long", ErrInvalidInput)
	}
	return fields, nil
}
