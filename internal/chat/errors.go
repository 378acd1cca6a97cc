package chat

import (
	"errors"
	"fmt"

	"github.com/campuschat/internal/storage"
)

// Kinds of failure the gateway and the query service distinguish. Match with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrStorage          = errors.New("storage error")
	ErrTransientNetwork = errors.New("transient network error")
)

// Error carries a kind, the operation that failed and a message that is safe to show a
// client. Err keeps the underlying cause for logs.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches both the kind sentinel and the wrapped cause.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func validationError(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Message: msg}
}

func notFoundError(op, msg string) error {
	return &Error{Kind: ErrNotFound, Op: op, Message: msg}
}

// storageError classifies a store failure. A unique-constraint conflict that survived the
// store's own retry keeps its own kind.
func storageError(op, msg string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return &Error{Kind: ErrConflict, Op: op, Message: msg, Err: err}
	}
	return &Error{Kind: ErrStorage, Op: op, Message: msg, Err: err}
}

// PublicMessage returns the client-facing text for err. Storage and unknown errors get
// fallback so that driver details never leave the process.
func PublicMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != ErrStorage && e.Message != "" {
		return e.Message
	}
	return fallback
}
