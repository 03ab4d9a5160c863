package stream

import "errors"

// Sentinel errors for streamer commands.
var (
	ErrNoTrigger = errors.New("no level change trigger in reach")
	ErrInboxFull = errors.New("command inbox is full")
)
