package sampler

import "errors"

// ErrInvalidStep is returned when the sampling step is not positive.
var ErrInvalidStep = errors.New("sampling step must be positive")

// ErrTooManySamples is returned when duration/dt would exceed MaxSamples.
var ErrTooManySamples = errors.New("too many samples")
