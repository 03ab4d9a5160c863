package scene

import "errors"

// ErrDecode is returned when a scene payload is corrupt or of an
// incompatible version.
var ErrDecode = errors.New("scene decode failed")
