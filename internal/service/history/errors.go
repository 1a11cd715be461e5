package history

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a conversation id does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidInput is returned for records missing required fields.
	ErrInvalidInput = errors.New("invalid input")
)

// StorageError reports a failure of the backing medium.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err came from the backing medium.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
