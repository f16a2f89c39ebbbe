package common

import "errors"

var (
	// ErrInvalidInput marks input rejected before any write happens.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExtractionFailure marks an unreachable oracle or a non-JSON reply.
	ErrExtractionFailure = errors.New("extraction failure")
	// ErrPersistenceConflict marks a uniqueness race that could not be
	// resolved to a surviving row.
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrMirrorSink          = errors.New("mirror sink failure")
	ErrNotFound            = errors.New("not found")
)
