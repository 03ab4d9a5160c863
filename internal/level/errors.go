package level

import "errors"

// Sentinel errors for level transitions.
var (
	ErrBusy     = errors.New("level transition in progress")
	ErrNoReturn = errors.New("no level to return to")
)
