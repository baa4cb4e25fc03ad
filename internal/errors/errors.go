package errors

import (
	"errors"
	"fmt"
)

// Common error types for the sync client
var (
	// Resource errors
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrEmptyDraft           = errors.New("draft is empty")

	// Credential errors
	ErrDecode           = errors.New("token could not be decoded")
	ErrRefreshFailed    = errors.New("failed to refresh access token")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Storage errors
	ErrStorage = errors.New("storage error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
