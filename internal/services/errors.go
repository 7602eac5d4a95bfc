package services

import "errors"

var (
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned when a username/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already registered")

	// ErrAttachmentsDisabled is returned when no object storage backend is configured.
	ErrAttachmentsDisabled = errors.New("attachments are not enabled")

	// ErrAttachmentTooLarge is returned when an upload exceeds the configured limit.
	ErrAttachmentTooLarge = errors.New("attachment too large")
)
