package playback

import (
	"time"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
)

// State represents the current state of playback.
type State int

const (
	// StateStopped means nothing is playing.
	StateStopped State = iota

	// StatePlaying means a trajectory is actively playing.
	StatePlaying

	// StatePaused means playback is temporarily paused.
	StatePaused
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Frame is one rendered instant of a trajectory.
type Frame struct {
	T        float64                `json:"t"`
	Joints   kinematics.JointConfig `json:"joints"`
	Elbow    geometry.Point         `json:"elbow"`
	Position geometry.Point         `json:"position"`
	Tip      *geometry.Point        `json:"tip,omitempty"`
	Final    bool                   `json:"final"`
}

// Callback is called for each frame during playback.
// Return false to stop playback early.
type Callback func(f Frame) bool

// Options configures playback.
type Options struct {
	// FrameRate is the rendering rate (default: 60 Hz).
	FrameRate float64

	// Speed multiplies wall-clock time (default: 1.0).
	Speed float64

	// Links is the arm geometry used to place the elbow and end effector.
	Links geometry.Links

	// Gripper adds a tip point at GripperLength/2 beyond the end effector.
	Gripper       bool
	GripperLength float64
}

// DefaultOptions returns sensible defaults for playback.
func DefaultOptions(links geometry.Links) Options {
	return Options{
		FrameRate: 60.0,
		Speed:     1.0,
		Links:     links,
	}
}

func (o Options) frameInterval() time.Duration {
	rate := o.FrameRate
	if rate <= 0 {
		rate = 60
	}
	return time.Duration(float64(time.Second) / rate)
}

func (o Options) speed() float64 {
	if o.Speed <= 0 {
		return 1
	}
	return o.Speed
}

// Result describes how playback ended.
type Result struct {
	// Final is the last rendered joint configuration.
	Final kinematics.JointConfig

	// Completed is false when playback was stopped or cancelled before the end.
	Completed bool

	// Frames is the number of frames delivered to the callback.
	Frames int
}
