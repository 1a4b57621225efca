package services

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every NotFoundError.
var ErrNotFound = errors.New("not found")

// ErrSendFailed is returned when the mail transport rejects a message.
var ErrSendFailed = errors.New("failed to send email")

// InputError reports invalid client input.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func inputError(field, format string, args ...any) error {
	return &InputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing resource, such as "Image" or "Event".
type NotFoundError struct {
	Resource string
	Err      error
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
