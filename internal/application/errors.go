package application

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when an intent needs a signed-in user.
	ErrAuthRequired = errors.New("application: sign-in required")
	// ErrAuthorizationDenied is returned when the user does not own the target.
	ErrAuthorizationDenied = errors.New("application: authorization denied")
	// ErrBackend wraps every failed backend call.
	ErrBackend = errors.New("application: backend failure")
	// ErrNotFound is returned when the target is not in local state.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidTarget is returned for empty ids and self-addressed messages.
	ErrInvalidTarget = errors.New("application: invalid target")
	// ErrChannelNotLeavable is returned for static or unknown channels.
	ErrChannelNotLeavable = errors.New("application: channel cannot be left")
	// ErrStaleResponse marks a backend response that arrived after the
	// signed-in user changed. It is dropped, never surfaced.
	ErrStaleResponse = errors.New("application: stale response")
	// ErrClosed is returned by intents after Close.
	ErrClosed = errors.New("application: orchestrator closed")
)

// BackendError records which backend operation failed.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("application: %s: %v", e.Op, e.Err)
}

// Is matches ErrBackend.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// Unwrap exposes the backend cause.
func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func backendFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
