package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Constraint names a uniqueness rule on the users table.
type Constraint string

const (
	ConstraintUsername Constraint = "username"
	ConstraintEmail    Constraint = "email"
	ConstraintOther    Constraint = "other"
)

// ConstraintError reports a write rejected by a uniqueness rule.
type ConstraintError struct {
	Field Constraint
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violated: %s", e.Field)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}
