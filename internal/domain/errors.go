package domain

import "errors"

var (
	// ErrNotFound is returned when no record exists for an identifier
	ErrNotFound = errors.New("not found")

	// ErrInvalidSnapshot is returned when a progress snapshot breaks its invariants
	ErrInvalidSnapshot = errors.New("invalid progress snapshot")

	// ErrAlreadyCompleted is returned when a terminal outcome was already reported
	ErrAlreadyCompleted = errors.New("download already completed")

	// ErrUnknownFailure stands in for a failed outcome reported without an error
	ErrUnknownFailure = errors.New("unknown failure")

	// ErrCancelled is reported as the outcome of a cancelled fetch
	ErrCancelled = errors.New("download cancelled")

	// ErrInvalidURL is returned for URLs the fetcher cannot download
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidState is returned when a job operation does not apply to its current status
	ErrInvalidState = errors.New("invalid job state")
)
