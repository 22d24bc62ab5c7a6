// Package apperrors provides the structured error taxonomy shared by the
// tracker, its status clients and the CLI.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation   = errors.New("validation error")
	ErrLaunch       = errors.New("launch failed")
	ErrTransport    = errors.New("transport error")
	ErrInvalidState = errors.New("invalid state")
	ErrInternal     = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel      error  // Wrapped sentinel for errors.Is() classification
	Message       string // Human-readable message
	Field         string // For validation errors (e.g., "workflowKey")
	Op            string // Operation that failed (e.g., "http.fetchStatus")
	ServerMessage string // Message supplied by the backend, if any
	StatusCode    int    // HTTP status of the failed call, 0 when not HTTP
	Cause         error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and the cause so both match errors.Is().
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Launch creates a launch error. serverMsg is the backend's explanation and may be empty.
func Launch(serverMsg string, cause error) error {
	msg := "failed to start job"
	switch {
	case serverMsg != "":
		msg = fmt.Sprintf("%s: %s", msg, serverMsg)
	case cause != nil:
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{
		Sentinel:      ErrLaunch,
		Message:       msg,
		Op:            "startJob",
		ServerMessage: serverMsg,
		Cause:         cause,
	}
}

// Transport creates a transport error for a failed round-trip.
func Transport(op, serverMsg string, cause error) error {
	msg := op
	switch {
	case serverMsg != "":
		msg = fmt.Sprintf("%s: %s", op, serverMsg)
	case cause != nil:
		msg = fmt.Sprintf("%s: %v", op, cause)
	}
	return &Error{
		Sentinel:      ErrTransport,
		Message:       msg,
		Op:            op,
		ServerMessage: serverMsg,
		Cause:         cause,
	}
}

// InvalidState creates an error for an operation the current state does not allow.
func InvalidState(op, state string) error {
	return &Error{
		Sentinel: ErrInvalidState,
		Message:  fmt.Sprintf("%s not allowed in state %s", op, state),
		Op:       op,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// ServerMessage returns the backend-supplied message carried by err, if any.
func ServerMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.ServerMessage
	}
	return ""
}
