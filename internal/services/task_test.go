package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tasktrack/apiserver/internal/logger"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/store/storetest"
	"github.com/tasktrack/apiserver/types"
)

func newTaskService(t *testing.T) (*TaskService, *storetest.Tasks, *storetest.Events) {
	t.Helper()

	repo := storetest.NewTasks()
	events := &storetest.Events{}
	return NewTaskService(repo, nil, events, logger.Discard()), repo, events
}

func TestTaskCreateAndList(t *testing.T) {
	svc, _, events := newTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, types.TaskFields{Title: " t ", Description: "d"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.OwnerID != 1 || task.Title != "t" || task.IsComplete {
		t.Fatalf("unexpected task: %+v", task)
	}
	if _, err := svc.Create(ctx, 2, types.TaskFields{Title: "other"}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	tasks, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	empty, err := svc.List(ctx, 99)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}

	published := events.Published()
	if len(published) != 2 || published[0].Type != types.TaskCreated || published[0].TaskID != task.ID {
		t.Fatalf("unexpected events: %+v", published)
	}
}

func TestTaskCreateRequiresTitle(t *testing.T) {
	svc, _, events := newTaskService(t)
	if _, err := svc.Create(context.Background(), 1, types.TaskFields{Title: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(events.Published()) != 0 {
		t.Fatalf("expected no events for rejected create")
	}
}

func TestTaskOwnershipIsolation(t *testing.T) {
	svc, repo, _ := newTaskService(t)
	ctx := context.Background()

	owned, err := svc.Create(ctx, 2, types.TaskFields{Title: "b's task", Description: "private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, 1, owned.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Update(ctx, 1, owned.ID, types.TaskFields{Title: "stolen"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, 1, owned.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}

	stored, err := repo.Get(ctx, owned.ID)
	if err != nil {
		t.Fatalf("task should still exist: %v", err)
	}
	if stored.Title != "b's task" {
		t.Fatalf("task was modified: %+v", stored)
	}
}

func TestTaskUpdate(t *testing.T) {
	svc, _, events := newTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, types.TaskFields{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, 1, task.ID, types.TaskFields{Title: "t2", Description: "", IsComplete: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "t2" || updated.Description != "" || !updated.IsComplete || updated.OwnerID != 1 {
		t.Fatalf("unexpected task: %+v", updated)
	}

	got, err := svc.Get(ctx, 1, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "t2" {
		t.Fatalf("update not persisted: %+v", got)
	}

	published := events.Published()
	if last := published[len(published)-1]; last.Type != types.TaskUpdated || last.Task == nil || last.Task.Title != "t2" {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestTaskDeleteTwice(t *testing.T) {
	svc, _, events := newTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, 1, types.TaskFields{Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, 1, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, 1, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	published := events.Published()
	if len(published) != 2 || published[1].Type != types.TaskDeleted || published[1].Task != nil {
		t.Fatalf("unexpected events: %+v", published)
	}
}

func TestTaskEventFailureDoesNotFailRequest(t *testing.T) {
	repo := storetest.NewTasks()
	events := &storetest.Events{Err: errors.New("broker down")}
	svc := NewTaskService(repo, nil, events, logger.Discard())

	if _, err := svc.Create(context.Background(), 1, types.TaskFields{Title: "t"}); err != nil {
		t.Fatalf("expected create to succeed despite publish failure: %v", err)
	}
}
