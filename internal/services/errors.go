package services

import (
	"errors"
	"fmt"

	"github.com/jjudge-oj/accounts/internal/store"
)

var (
	// ErrUserNotFound and ErrWrongPassword must be reported to clients as
	// the same "invalid credentials" outcome.
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")

	ErrInvalidUsername = errors.New("username must be 3-16 characters of letters, digits, '.', '_' or '-'")
	ErrInvalidPassword = errors.New("password must be 8-50 characters with a lowercase letter, an uppercase letter, a digit and one of .-_*#%&$?")
	ErrInvalidEmail    = errors.New("email address is not valid")
	ErrSamePassword    = errors.New("new password cannot be the same as old")
	ErrSameUsername    = errors.New("new username cannot be the same as old")
)

// ValidationError is a user-correctable problem with a submitted field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConflictError reports that a username or email is already taken.
type ConflictError struct {
	Field store.Constraint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in use", e.Field)
}

// HashError means a stored password hash could not be read or a new one
// could not be produced. It is a server fault.
type HashError struct {
	Err error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("password hash: %v", e.Err)
}

func (e *HashError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// conflictOr converts store constraint violations into ConflictError and
// wraps everything else with op.
func conflictOr(op string, err error) error {
	var cerr *store.ConstraintError
	if errors.As(err, &cerr) {
		return &ConflictError{Field: cerr.Field}
	}
	return fmt.Errorf("%s: %w", op, err)
}
