package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError rejects a mutation; the prior state is left intact.
type ValidationError struct {
	// Fields maps a field name to a human-readable reason. May be empty.
	Fields  map[string]string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation: " + e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation: " + e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// GradingError reports a failed grading hand-off.
type GradingError struct {
	ExamID string
	Err    error
}

func (e *GradingError) Error() string {
	return fmt.Sprintf("grading exam %s: %v", e.ExamID, e.Err)
}

func (e *GradingError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// AuthError reports a failed login or an unusable identity.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
