package chirp_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now().UTC()
	return &now
}
