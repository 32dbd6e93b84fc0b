package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Defense errors
	ErrCSRFMismatch       = errors.New("request could not be verified")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrStoreUnavailable   = errors.New("security store unavailable")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Alert lifecycle errors
	ErrAlreadyResolved   = errors.New("alert already resolved")
	ErrInvalidTransition = errors.New("invalid alert status transition")
)

// RateLimitExceededError carries how long the caller must wait before the
// current window admits another request.
type RateLimitExceededError struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfterSeconds rounds up to whole seconds for the Retry-After header.
func (e *RateLimitExceededError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// LogError is returned when a security event could not be persisted. The
// event has already been written to the fallback log when this is returned.
type LogError struct {
	EventType EventType
	Err       error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("security event %s not persisted: %v", e.EventType, e.Err)
}

func (e *LogError) Unwrap() error {
	return e.Err
}
