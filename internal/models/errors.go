package models

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrSessionNotFound       = errors.New("interview session not found")
	ErrSessionCompleted      = errors.New("interview session already completed")
	ErrUserNotFound          = errors.New("user not found")
	ErrEnrollmentMissing     = errors.New("no face enrollment on record")
	ErrInvalidInput          = errors.New("invalid input")
	ErrDependencyUnavailable = errors.New("upstream dependency unavailable")
	// ErrAnswerConflict means the question slot was answered concurrently.
	ErrAnswerConflict = errors.New("answer does not match the current question")
)

// ValidationError names the offending field. It matches ErrInvalidInput with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidID reports whether id is a 24-character hex object id.
func IsValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}
