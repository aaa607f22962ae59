package profile

import "errors"

// ErrInvalidDuration is returned when a profile is fitted with duration <= 0.
var ErrInvalidDuration = errors.New("profile duration must be positive")
