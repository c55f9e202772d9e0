package flatdb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("record not found")
	// ErrUniqueViolation is matched by every *UniqueViolationError.
	ErrUniqueViolation = errors.New("unique violation")
	// ErrCorruptRow is returned when a line cannot be decoded.
	ErrCorruptRow = errors.New("corrupt row")
	// ErrNotDirectory is returned when the root path exists but is not a directory.
	ErrNotDirectory = errors.New("root path is not a directory")
)

// NotFoundError is returned when no line matches a primary key.
type NotFoundError struct {
	Table string
	PK    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s(%s) was not found", e.Table, e.PK)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UniqueViolationError is returned by an admission check when a record with
// the same unique field value already exists.
type UniqueViolationError struct {
	Table string
	Field string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("given record already exists in %s: duplicate %s", e.Table, e.Field)
}

// Is reports whether target is ErrUniqueViolation.
func (e *UniqueViolationError) Is(target error) bool {
	return target == ErrUniqueViolation
}
