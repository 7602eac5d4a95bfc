package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tasktrack/apiserver/internal/db"
	"github.com/tasktrack/apiserver/types"
)

// AttachmentRepository handles persistence for task attachment metadata.
type AttachmentRepository struct {
	conn *sql.DB
}

func NewAttachmentRepository(conn *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{conn: conn}
}

func (r *AttachmentRepository) Get(ctx context.Context, taskID int) (types.Attachment, error) {
	return getAttachment(ctx, r.conn, taskID, false)
}

// Replace stores attachment as the task's only attachment and returns the
// object key of the attachment it replaced, or "" if there was none.
func (r *AttachmentRepository) Replace(ctx context.Context, attachment types.Attachment) (string, error) {
	attachment.CreatedAt = time.Now().UTC()

	var previousKey string
	err := db.WithTx(ctx, r.conn, func(tx *sql.Tx) error {
		previous, err := getAttachment(ctx, tx, attachment.TaskID, true)
		switch {
		case err == nil:
			previousKey = previous.ObjectKey
		case !errors.Is(err, ErrNotFound):
			return err
		}

		const query = `
			INSERT INTO task_attachments (task_id, object_key, filename, content_type, size, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (task_id) DO UPDATE
			SET object_key = EXCLUDED.object_key,
				filename = EXCLUDED.filename,
				content_type = EXCLUDED.content_type,
				size = EXCLUDED.size,
				created_at = EXCLUDED.created_at`
		_, err = tx.ExecContext(
			ctx,
			query,
			attachment.TaskID,
			attachment.ObjectKey,
			attachment.Filename,
			attachment.ContentType,
			attachment.Size,
			attachment.CreatedAt,
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return previousKey, nil
}

// Delete removes the task's attachment row and returns what was removed.
func (r *AttachmentRepository) Delete(ctx context.Context, taskID int) (types.Attachment, error) {
	const query = `
		DELETE FROM task_attachments
		WHERE task_id = $1
		RETURNING task_id, object_key, filename, content_type, size, created_at`
	var attachment types.Attachment
	err := r.conn.QueryRowContext(ctx, query, taskID).Scan(
		&attachment.TaskID,
		&attachment.ObjectKey,
		&attachment.Filename,
		&attachment.ContentType,
		&attachment.Size,
		&attachment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Attachment{}, ErrNotFound
		}
		return types.Attachment{}, err
	}
	return attachment, nil
}

func getAttachment(ctx context.Context, q db.Querier, taskID int, forUpdate bool) (types.Attachment, error) {
	query := `
		SELECT task_id, object_key, filename, content_type, size, created_at
		FROM task_attachments
		WHERE task_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var attachment types.Attachment
	err := q.QueryRowContext(ctx, query, taskID).Scan(
		&attachment.TaskID,
		&attachment.ObjectKey,
		&attachment.Filename,
		&attachment.ContentType,
		&attachment.Size,
		&attachment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Attachment{}, ErrNotFound
		}
		return types.Attachment{}, err
	}
	return attachment, nil
}
