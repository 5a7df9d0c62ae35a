package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. The message is
	// deliberately generic: callers must not be able to tell a missing
	// user from a wrong password or an inactive account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSession covers missing, expired and revoked tokens alike.
	ErrInvalidSession = errors.New("invalid session")
	// ErrForbidden indicates a valid session without the required module grant.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a uniqueness violation, e.g. duplicate email.
	ErrConflict = errors.New("already in use")
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// AsValidation unwraps err into a ValidationError when possible.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
