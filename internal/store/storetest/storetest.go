// Package storetest provides in-memory implementations of the repositories,
// object storage and event publishing used by the services, for tests.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/tasktrack/apiserver/internal/storage"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

// Users is an in-memory user repository.
type Users struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]types.User
}

func NewUsers() *Users {
	return &Users{byID: make(map[int]types.User)}
}

func (u *Users) GetByUsername(ctx context.Context, username string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, user := range u.byID {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) Create(ctx context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, existing := range u.byID {
		if existing.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	u.nextID++
	user.ID = u.nextID
	user.CreatedAt = time.Now().UTC()
	u.byID[user.ID] = user
	return user, nil
}

// Tasks is an in-memory task repository. Deleting a task also drops its
// row in the linked Attachments, mirroring the ON DELETE CASCADE.
type Tasks struct {
	mu          sync.Mutex
	nextID      int
	byID        map[int]types.Task
	Attachments *Attachments
}

func NewTasks() *Tasks {
	return &Tasks{byID: make(map[int]types.Task)}
}

func (t *Tasks) Create(ctx context.Context, task types.Task) (types.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.nextID++
	task.ID = t.nextID
	task.CreatedAt = now
	task.UpdatedAt = now
	t.byID[task.ID] = task
	return task, nil
}

func (t *Tasks) ListByOwner(ctx context.Context, ownerID int) ([]types.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks := make([]types.Task, 0)
	for _, task := range t.byID {
		if task.OwnerID == ownerID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (t *Tasks) Get(ctx context.Context, id int) (types.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.byID[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (t *Tasks) Update(ctx context.Context, task types.Task) (types.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.byID[task.ID]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	existing.Title = task.Title
	existing.Description = task.Description
	existing.IsComplete = task.IsComplete
	existing.UpdatedAt = time.Now().UTC()
	t.byID[task.ID] = existing
	return existing, nil
}

func (t *Tasks) Delete(ctx context.Context, id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.byID, id)
	if t.Attachments != nil {
		t.Attachments.drop(id)
	}
	return nil
}

// Attachments is an in-memory attachment metadata repository.
type Attachments struct {
	mu     sync.Mutex
	byTask map[int]types.Attachment
}

func NewAttachments() *Attachments {
	return &Attachments{byTask: make(map[int]types.Attachment)}
}

func (a *Attachments) Get(ctx context.Context, taskID int) (types.Attachment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attachment, ok := a.byTask[taskID]
	if !ok {
		return types.Attachment{}, store.ErrNotFound
	}
	return attachment, nil
}

func (a *Attachments) Replace(ctx context.Context, attachment types.Attachment) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	previous := a.byTask[attachment.TaskID].ObjectKey
	attachment.CreatedAt = time.Now().UTC()
	a.byTask[attachment.TaskID] = attachment
	return previous, nil
}

func (a *Attachments) Delete(ctx context.Context, taskID int) (types.Attachment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attachment, ok := a.byTask[taskID]
	if !ok {
		return types.Attachment{}, store.ErrNotFound
	}
	delete(a.byTask, taskID)
	return attachment, nil
}

func (a *Attachments) drop(taskID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byTask, taskID)
}


// Objects is an in-memory object storage backend.
type Objects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewObjects() *Objects {
	return &Objects{objects: make(map[string][]byte)}
}

func (o *Objects) EnsureBucket(ctx context.Context) error {
	return nil
}

func (o *Objects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o *Objects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	data, ok := o.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *Objects) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *Objects) Bucket() string {
	return "memory"
}

// Keys returns the stored object keys in sorted order.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	keys := make([]string, 0, len(o.objects))
	for key := range o.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Events records published task events.
type Events struct {
	mu     sync.Mutex
	events []types.TaskEvent
	Err    error
}

func (e *Events) PublishTaskEvent(ctx context.Context, event types.TaskEvent) error {
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// Published returns a copy of the recorded events.
func (e *Events) Published() []types.TaskEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.TaskEvent(nil), e.events...)
}
