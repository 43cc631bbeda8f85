package repository

import "errors"

var (
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrProjectNotFound   = errors.New("project not found")
	// ErrVersionConflict means the optimistic version guard tripped; the
	// row changed between read and write despite the row lock. Callers
	// treat it as a retryable serialization failure.
	ErrVersionConflict = errors.New("milestone was modified concurrently")
)
