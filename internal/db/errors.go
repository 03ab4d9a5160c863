package db

import "errors"

// Sentinel errors for the scene index.
var ErrNotFound = errors.New("scene not indexed")
