package cache

import "errors"

var (
	// ErrStale is returned by Refresh when a covered parcel already holds a
	// newer deployment.
	ErrStale = errors.New("cache candidate is older than cached entry")

	// ErrInvalid is returned by Refresh for candidates with a malformed
	// descriptor or without a scene payload.
	ErrInvalid = errors.New("invalid cache candidate")

	// ErrNotFound is returned when no deployment is cached for a parcel.
	ErrNotFound = errors.New("no cached scene")
)
