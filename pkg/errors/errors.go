package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict          = New("VERSION_CONFLICT", http.StatusConflict, "document version conflict")
	ErrPatchFailed       = New("PATCH_FAILED", http.StatusUnprocessableEntity, "patch application failed")
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "invalid status transition")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnauthorized      = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden         = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss         = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// ConflictDetails carries both version ids involved in an optimistic
// concurrency failure.
type ConflictDetails struct {
	CurrentVersionID  string `json:"current_version_id"`
	ExpectedVersionID string `json:"expected_version_id"`
}

// VersionConflict builds a conflict error naming the stored and the stale
// version ids.
func VersionConflict(currentVersionID, expectedVersionID string) *Error {
	e := Clone(ErrConflict, fmt.Sprintf("expected version %s but current version is %s", expectedVersionID, currentVersionID))
	e.Details = ConflictDetails{CurrentVersionID: currentVersionID, ExpectedVersionID: expectedVersionID}
	return e
}

// PatchOpError describes a single failed patch operation.
type PatchOpError struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p PatchOpError) Error() string {
	return fmt.Sprintf("op %d (%s %s): %s", p.Index, p.Kind, p.Path, p.Message)
}

// PatchFailed builds a patch application error carrying every per-operation
// failure. The request is rejected as a whole.
func PatchFailed(opErrors []PatchOpError) *Error {
	messages := make([]string, 0, len(opErrors))
	for _, opErr := range opErrors {
		messages = append(messages, opErr.Error())
	}
	e := Clone(ErrPatchFailed, fmt.Sprintf("%d patch operation(s) failed: %s", len(opErrors), strings.Join(messages, "; ")))
	e.Details = opErrors
	return e
}

// TransitionDetails names both statuses of a rejected workflow transition.
type TransitionDetails struct {
	CurrentStatus string `json:"current_status"`
	NextStatus    string `json:"next_status"`
}

// InvalidTransition builds a transition error with a human-readable reason.
func InvalidTransition(current, next, reason string) *Error {
	e := Clone(ErrInvalidTransition, reason)
	e.Details = TransitionDetails{CurrentStatus: current, NextStatus: next}
	return e
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
