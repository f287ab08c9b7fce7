package errors

import (
	"errors"
	"fmt"
)

// Storage errors shared by the user repositories and session stores
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Wrapf wraps an error with context using fmt.Errorf. A nil err stays nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
