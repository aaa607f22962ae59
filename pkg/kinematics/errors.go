package kinematics

import "errors"

// ErrUnknownElbowMode is returned when an elbow mode string is neither "up" nor "down".
var ErrUnknownElbowMode = errors.New("unknown elbow mode")
