package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is shown to clients as-is and does not say
	// which half of the pair was wrong.
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrUnauthorized       = errors.New("Not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")

	// ErrValidation wraps every input error; the wrapped message is safe to return.
	ErrValidation = errors.New("invalid input")

	ErrStorageUnavailable = errors.New("attachment storage is not configured")
	ErrJobsUnavailable    = errors.New("background jobs are not configured")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
