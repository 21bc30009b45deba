package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound             = gorm.ErrRecordNotFound
	ErrOpenSessionExists    = errors.New("seeker already has an open session")
	ErrVolunteerUnavailable = errors.New("volunteer is not available or at capacity")
	ErrSessionNotWaiting    = errors.New("session is not waiting for a volunteer")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrCapacityBelowActive  = errors.New("max_concurrent_sessions is below the current active session count")
)
