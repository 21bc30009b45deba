package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated      = errors.New("authentication required")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrActiveSessionExists  = errors.New("seeker already has an active session")
	ErrVolunteerUnavailable = errors.New("volunteer unavailable")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrSessionEnded         = errors.New("session has ended")
	ErrSessionNotWaiting    = errors.New("session is not waiting for a volunteer")
)

// invalid wraps ErrValidation with a field-level message.
func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
