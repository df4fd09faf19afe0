package es

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict is returned by appends whose expected version no longer
	// matches the stream. Callers may reload and retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateEvent is returned by appends carrying an event id which is already
	// stored. Retrying the same events cannot succeed.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrMalformedEvent marks a persisted record which cannot be turned into an event.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrNotSupported is returned when a driver cannot serve an operation.
	ErrNotSupported = errors.New("operation not supported by driver")

	// ErrNoStore is returned when no store is registered for an aggregate type.
	ErrNoStore = errors.New("no event store registered")
)

// MalformedEventError describes the record which stopped a stream.
type MalformedEventError struct {
	EventID   string
	EventType string
	Cause     error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %q of type %q: %v", e.EventID, e.EventType, e.Cause)
}

// Unwrap exposes the cause
func (e *MalformedEventError) Unwrap() error {
	return e.Cause
}

// Is matches ErrMalformedEvent
func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedEvent
}

func malformed(raw *RawEvent, cause error) error {
	return &MalformedEventError{
		EventID:   raw.ID,
		EventType: raw.Type,
		Cause:     cause,
	}
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConcurrencyConflict, fmt.Sprintf(format, args...))
}
