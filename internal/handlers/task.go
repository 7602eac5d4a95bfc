package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

const (
	maxMultipartMemory    = 8 << 20
	multipartOverhead     = 1 << 20
	formFieldAttachment   = "file"
	msgTaskNotFound       = "Task not found"
	msgAttachmentNotFound = "Attachment not found"
)

// TaskHandler provides HTTP handlers for tasks and their attachments.
type TaskHandler struct {
	taskService       *services.TaskService
	attachmentService *services.AttachmentService
	logger            *slog.Logger
}

// NewTaskHandler constructs a handler with the provided services.
func NewTaskHandler(taskService *services.TaskService, attachmentService *services.AttachmentService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		taskService:       taskService,
		attachmentService: attachmentService,
		logger:            logger,
	}
}

// TaskRouter registers task routes on the given router. Every route
// requires authentication.
func TaskRouter(
	r chi.Router,
	taskService *services.TaskService,
	attachmentService *services.AttachmentService,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewTaskHandler(taskService, attachmentService, logger)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)

		r.Route("/attachment", func(r chi.Router) {
			r.Get("/", handler.GetAttachment)
			r.Put("/", handler.PutAttachment)
			r.Delete("/", handler.DeleteAttachment)
		})
	})
}

// TaskRequest is the body accepted by create and update.
type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsComplete  bool   `json:"is_complete"`
}

func (req TaskRequest) fields() types.TaskFields {
	return types.TaskFields{
		Title:       req.Title,
		Description: req.Description,
		IsComplete:  req.IsComplete,
	}
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeUnauthorized(w, msgNotValidated)
		return
	}

	tasks, err := h.taskService.List(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeUnauthorized(w, msgNotValidated)
		return
	}

	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	task, err := h.taskService.Create(r.Context(), user.ID, req.fields())
	if err != nil {
		h.writeServiceError(w, err, "failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.taskRequestContext(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.Get(r.Context(), user.ID, id)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.taskRequestContext(w, r)
	if !ok {
		return
	}

	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	task, err := h.taskService.Update(r.Context(), user.ID, id, req.fields())
	if err != nil {
		h.writeServiceError(w, err, "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.taskRequestContext(w, r)
	if !ok {
		return
	}

	if err := h.taskService.Delete(r.Context(), user.ID, id); err != nil {
		h.writeServiceError(w, err, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) PutAttachment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.taskRequestContext(w, r)
	if !ok {
		return
	}
	if !h.attachmentService.Enabled() {
		h.writeServiceError(w, services.ErrAttachmentsDisabled, "")
		return
	}

	if limit := h.attachmentService.MaxBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeServiceError(w, services.ErrAttachmentTooLarge, "")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldAttachment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	attachment, err := h.attachmentService.Put(r.Context(), user.ID, id, services.AttachmentUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to store attachment")
		return
	}
	writeJSON(w, http.StatusOK, attachment)
}

func (h *TaskHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.taskRequestContext(w, r)
	if !ok {
		return
	}

	attachment, body, err := h.attachmentService.Open(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgAttachmentNotFound)
			return
		}
		h.writeServiceError(w, err, "failed to load attachment")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	if attachment.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream attachment failed", slog.Int("task_id", id), slog.String("error", err.Error()))
	}
}

func (h *TaskHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.taskRequestContext(w, r)
	if !ok {
		return
	}

	if err := h.attachmentService.Delete(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgAttachmentNotFound)
			return
		}
		h.writeServiceError(w, err, "failed to delete attachment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// taskRequestContext resolves the caller and the task id path parameter,
// writing the error response itself when either is missing.
func (h *TaskHandler) taskRequestContext(w http.ResponseWriter, r *http.Request) (types.User, int, bool) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeUnauthorized(w, msgNotValidated)
		return types.User{}, 0, false
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return types.User{}, 0, false
	}
	return user, id, true
}

func (h *TaskHandler) writeServiceError(w http.ResponseWriter, err error, internalMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, msgTaskNotFound)
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAttachmentTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, services.ErrAttachmentsDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		h.logger.Error(internalMessage, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, internalMessage)
	}
}

func parseTaskID(r *http.Request) (int, error) {
	// Task ids are postgres INTEGER columns.
	id, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 32)
	if err != nil || id < 1 {
		return 0, errors.New("invalid task id")
	}
	return int(id), nil
}
