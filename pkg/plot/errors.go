package plot

import "errors"

var (
	// ErrNoSamples is returned when there is nothing to plot.
	ErrNoSamples = errors.New("no samples to plot")

	// ErrUnknownJoint is returned for a joint name other than q1 or q2.
	ErrUnknownJoint = errors.New("unknown joint")
)
