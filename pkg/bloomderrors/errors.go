// Package bloomderrors holds the sentinel error taxonomy shared across
// bloomd's packages.
package bloomderrors

import "errors"

var (
	// ErrFormatMismatch is returned when on-disk data is incompatible with
	// the configured size or fails its magic/version check.
	ErrFormatMismatch = errors.New("format mismatch")

	// ErrCapacityExceeded is part of the taxonomy but no package returns
	// it: a ScalingFilter grows a new tail instead of exceeding capacity.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrNotFound is returned when an operation names a filter absent
	// from the Manager's registry.
	ErrNotFound = errors.New("no such filter")

	// ErrAlreadyExists is returned by create on an existing name.
	ErrAlreadyExists = errors.New("filter already exists")

	// ErrFlushFailed wraps a filesystem error encountered during flush.
	// The caller leaves the entry dirty; the next scheduled tick retries.
	ErrFlushFailed = errors.New("flush failed")

	// ErrInternal denotes an unexpected condition that should not surface
	// implementation detail to a client.
	ErrInternal = errors.New("internal error")

	// ErrClosed describes an operation attempted against an entry or
	// bitmap that has already been closed; no package returns it.
	ErrClosed = errors.New("already closed")
)
