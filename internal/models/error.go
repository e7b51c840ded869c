package models

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Upstream (identity provider / management API) failures
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)

// ValidationError carries field-level issues for a rejected query or body.
// It unwraps to ErrBadRequest so callers can branch with errors.Is.
type ValidationError struct {
	Issues map[string]string
}

// NewValidationError creates a ValidationError with a single issue
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Issues: map[string]string{field: message}}
}

// Add records an issue for field, keeping the first message reported
func (e *ValidationError) Add(field, message string) {
	if e.Issues == nil {
		e.Issues = make(map[string]string)
	}
	if _, exists := e.Issues[field]; !exists {
		e.Issues[field] = message
	}
}

// HasIssues reports whether any field failed validation
func (e *ValidationError) HasIssues() bool {
	return e != nil && len(e.Issues) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Issues))
	for field := range e.Issues {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.Issues[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrBadRequest
}
