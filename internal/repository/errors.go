package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateIdentity indicates a username or email uniqueness violation.
	ErrDuplicateIdentity = errors.New("repository: duplicate identity")
)

// DuplicateIdentityError names the identity field that conflicts.
type DuplicateIdentityError struct {
	Field string
}

// Error implements error.
func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("repository: duplicate identity: %s already in use", e.Field)
}

// Is makes the error match ErrDuplicateIdentity in errors.Is chains.
func (e *DuplicateIdentityError) Is(target error) bool {
	return target == ErrDuplicateIdentity
}
