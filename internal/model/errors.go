package model

import "fmt"

// ValidationError marks malformed input, rejected before mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// NotFoundError marks a reference to an unknown entity.
type NotFoundError struct {
	Type string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Type, e.ID)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
