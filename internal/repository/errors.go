package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a reminder id does not exist (or was already
// removed).
var ErrNotFound = errors.New("reminder not found")

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
