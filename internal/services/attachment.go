package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/tasktrack/apiserver/internal/storage"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

const defaultAttachmentContentType = "application/octet-stream"

// AttachmentRepository defines persistence operations for attachment metadata.
type AttachmentRepository interface {
	Get(ctx context.Context, taskID int) (types.Attachment, error)
	Replace(ctx context.Context, attachment types.Attachment) (string, error)
	Delete(ctx context.Context, taskID int) (types.Attachment, error)
}

// ObjectStore holds attachment contents.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentUpload is a file received from a client.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentService stores one file per task in object storage. With a nil
// ObjectStore every operation fails with ErrAttachmentsDisabled.
type AttachmentService struct {
	tasks    TaskRepository
	repo     AttachmentRepository
	objects  ObjectStore
	maxBytes int64
	logger   *slog.Logger
}

func NewAttachmentService(tasks TaskRepository, repo AttachmentRepository, objects ObjectStore, maxBytes int64, logger *slog.Logger) *AttachmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentService{
		tasks:    tasks,
		repo:     repo,
		objects:  objects,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Enabled reports whether an object storage backend is configured.
func (s *AttachmentService) Enabled() bool {
	return s != nil && s.objects != nil
}

// MaxBytes is the largest accepted upload; zero means unlimited.
func (s *AttachmentService) MaxBytes() int64 {
	if s == nil {
		return 0
	}
	return s.maxBytes
}

// Put uploads a file for an owned task, replacing any previous attachment.
func (s *AttachmentService) Put(ctx context.Context, ownerID, taskID int, upload AttachmentUpload) (types.Attachment, error) {
	if !s.Enabled() {
		return types.Attachment{}, ErrAttachmentsDisabled
	}
	if _, err := ownedTask(ctx, s.tasks, ownerID, taskID); err != nil {
		return types.Attachment{}, err
	}

	filename := sanitizeFilename(upload.Filename)
	if filename == "" {
		return types.Attachment{}, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if upload.Body == nil {
		return types.Attachment{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if s.maxBytes > 0 && upload.Size > s.maxBytes {
		return types.Attachment{}, ErrAttachmentTooLarge
	}
	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = defaultAttachmentContentType
	}

	attachment := types.Attachment{
		TaskID:      taskID,
		ObjectKey:   fmt.Sprintf("tasks/%d/%s", taskID, uuid.NewString()),
		Filename:    filename,
		ContentType: contentType,
		Size:        upload.Size,
	}
	if err := s.objects.Put(ctx, attachment.ObjectKey, upload.Body, upload.Size, contentType); err != nil {
		return types.Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}

	previousKey, err := s.repo.Replace(ctx, attachment)
	if err != nil {
		s.deleteObject(ctx, attachment.ObjectKey)
		return types.Attachment{}, fmt.Errorf("save attachment: %w", err)
	}
	if previousKey != "" && previousKey != attachment.ObjectKey {
		s.deleteObject(ctx, previousKey)
	}

	stored, err := s.repo.Get(ctx, taskID)
	if err != nil {
		return attachment, nil
	}
	return stored, nil
}

// Open returns the metadata and contents of an owned task's attachment.
// The caller closes the reader.
func (s *AttachmentService) Open(ctx context.Context, ownerID, taskID int) (types.Attachment, io.ReadCloser, error) {
	if !s.Enabled() {
		return types.Attachment{}, nil, ErrAttachmentsDisabled
	}
	if _, err := ownedTask(ctx, s.tasks, ownerID, taskID); err != nil {
		return types.Attachment{}, nil, err
	}

	attachment, err := s.repo.Get(ctx, taskID)
	if err != nil {
		return types.Attachment{}, nil, err
	}
	body, err := s.objects.Get(ctx, attachment.ObjectKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("attachment object missing", slog.Int("task_id", taskID), slog.String("key", attachment.ObjectKey))
		return types.Attachment{}, nil, store.ErrNotFound
	}
	if err != nil {
		return types.Attachment{}, nil, fmt.Errorf("open attachment: %w", err)
	}
	return attachment, body, nil
}

// Delete removes an owned task's attachment.
func (s *AttachmentService) Delete(ctx context.Context, ownerID, taskID int) error {
	if !s.Enabled() {
		return ErrAttachmentsDisabled
	}
	if _, err := ownedTask(ctx, s.tasks, ownerID, taskID); err != nil {
		return err
	}

	attachment, err := s.repo.Delete(ctx, taskID)
	if err != nil {
		return err
	}
	s.deleteObject(ctx, attachment.ObjectKey)
	return nil
}

// objectKey returns the stored object key for taskID, or "" when there is none.
func (s *AttachmentService) objectKey(ctx context.Context, taskID int) string {
	if !s.Enabled() {
		return ""
	}
	attachment, err := s.repo.Get(ctx, taskID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("load attachment failed", slog.Int("task_id", taskID), slog.String("error", err.Error()))
		}
		return ""
	}
	return attachment.ObjectKey
}

func (s *AttachmentService) deleteObject(ctx context.Context, key string) {
	if !s.Enabled() {
		return
	}
	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.Warn("delete attachment object failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
