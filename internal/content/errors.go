package content

import "errors"

var (
	// ErrNetwork wraps every transport-level failure talking to the service.
	ErrNetwork = errors.New("content service unreachable")

	// ErrNotFound is returned when a hash is unknown to the service.
	ErrNotFound = errors.New("content not found")

	// ErrHashMismatch is returned when stored bytes do not match their hash.
	ErrHashMismatch = errors.New("content hash mismatch")
)
