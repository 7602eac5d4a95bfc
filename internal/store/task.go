package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tasktrack/apiserver/internal/db"
	"github.com/tasktrack/apiserver/types"
)

// TaskRepository handles persistence for tasks. It does not check
// ownership; callers compare OwnerID themselves.
type TaskRepository struct {
	db db.Querier
}

func NewTaskRepository(q db.Querier) *TaskRepository {
	return &TaskRepository{db: q}
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	const query = `
		INSERT INTO tasks (title, description, is_complete, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.IsComplete,
		task.OwnerID,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID int) ([]types.Task, error) {
	const query = `
		SELECT id, title, description, is_complete, owner_id, created_at, updated_at
		FROM tasks
		WHERE owner_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0)
	for rows.Next() {
		var task types.Task
		if err := rows.Scan(
			&task.ID,
			&task.Title,
			&task.Description,
			&task.IsComplete,
			&task.OwnerID,
			&task.CreatedAt,
			&task.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) Get(ctx context.Context, id int) (types.Task, error) {
	const query = `
		SELECT id, title, description, is_complete, owner_id, created_at, updated_at
		FROM tasks
		WHERE id = $1`
	var task types.Task
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.IsComplete,
		&task.OwnerID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

// Update overwrites title, description and is_complete.
func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	const query = `
		UPDATE tasks
		SET title = $1,
			description = $2,
			is_complete = $3,
			updated_at = $4
		WHERE id = $5
		RETURNING owner_id, created_at, updated_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.IsComplete,
		time.Now().UTC(),
		task.ID,
	).Scan(&task.OwnerID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
