package geometry

import "errors"

// ErrInvalidLinks is returned when a link length is not a positive number.
var ErrInvalidLinks = errors.New("invalid link lengths")
