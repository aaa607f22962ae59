// Package sampler discretizes a motion plan into time-stamped samples for
// rendering, plotting and playback.
package sampler

import (
	"fmt"
	"math"
	"sort"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/planner"
)

// Sample is the arm state at time T.
type Sample struct {
	T float64 `json:"t"`

	Q1   float64 `json:"q1"`
	DQ1  float64 `json:"dq1"`
	DDQ1 float64 `json:"ddq1"`

	Q2   float64 `json:"q2"`
	DQ2  float64 `json:"dq2"`
	DDQ2 float64 `json:"ddq2"`

	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Tip is the gripper tip, set only when gripper-offset mode is enabled.
	Tip *geometry.Point `json:"tip,omitempty"`
}

// Joints returns the joint angles of the sample.
func (s Sample) Joints() kinematics.JointConfig {
	return kinematics.JointConfig{Q1: s.Q1, Q2: s.Q2}
}

// Options controls sampling.
type Options struct {
	Dt            float64 // step in seconds
	GripperOffset bool    // compute Tip for every sample
	GripperLength float64 // meters; the tip sits half a gripper past the end effector
}

// DefaultOptions returns the 20 Hz sampling used by the planner UI.
func DefaultOptions() Options {
	return Options{
		Dt:            0.05,
		GripperLength: 0.02,
	}
}

// MaxSamples bounds the length of a generated sequence.
const MaxSamples = 100_000

// Count returns the number of samples Generate produces for a move of
// duration seconds sampled every dt seconds, as a float so that absurd
// ratios can be compared against MaxSamples without overflowing.
func Count(duration, dt float64) float64 {
	return math.Max(2, math.Floor(duration/dt)+1)
}

// Generate evaluates plan every opts.Dt seconds.
//
// At least two samples are produced. The last sample is pinned to
// t = plan.Duration so it always carries the goal angles and zero
// velocity/acceleration, whatever the divisibility of Duration by Dt.
// Sequences longer than MaxSamples return ErrTooManySamples.
func Generate(plan *planner.MotionPlan, opts Options) ([]Sample, error) {
	if !(opts.Dt > 0) || math.IsInf(opts.Dt, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, opts.Dt)
	}

	count := Count(plan.Duration, opts.Dt)
	if !(count <= MaxSamples) {
		return nil, fmt.Errorf("%w: %.0f samples for duration %v at dt %v (max %d)",
			ErrTooManySamples, count, plan.Duration, opts.Dt, MaxSamples)
	}
	n := int(count)

	samples := make([]Sample, n)
	for i := range samples {
		t := math.Min(plan.Duration, float64(i)*opts.Dt)
		if i == n-1 {
			t = plan.Duration
		}
		samples[i] = evaluate(plan, t, opts)
	}
	return samples, nil
}

func evaluate(plan *planner.MotionPlan, t float64, opts Options) Sample {
	j1, j2 := plan.At(t)
	q := kinematics.JointConfig{Q1: j1.Q, Q2: j2.Q}
	p := kinematics.Forward(q, plan.Links)

	s := Sample{
		T:    t,
		Q1:   j1.Q,
		DQ1:  j1.DQ,
		DDQ1: j1.DDQ,
		Q2:   j2.Q,
		DQ2:  j2.DQ,
		DDQ2: j2.DDQ,
		X:    p.X,
		Y:    p.Y,
	}
	if opts.GripperOffset {
		s.Tip = tipPoint(s, opts.GripperLength)
	}
	return s
}

// tipPoint offsets the end effector by half the gripper along link 2.
func tipPoint(s Sample, gripperLength float64) *geometry.Point {
	half := gripperLength * 0.5
	sum := s.Q1 + s.Q2
	return &geometry.Point{
		X: s.X + half*math.Cos(sum),
		Y: s.Y + half*math.Sin(sum),
	}
}

// HydrateTips sets or clears Tip on an existing sequence after the gripper
// mode changed. Only Tip is written.
func HydrateTips(samples []Sample, enabled bool, gripperLength float64) {
	for i := range samples {
		if enabled {
			samples[i].Tip = tipPoint(samples[i], gripperLength)
		} else {
			samples[i].Tip = nil
		}
	}
}

// At linearly interpolates the joint angles of samples at time t.
// t is clamped to the span of the sequence. An empty sequence returns the
// zero configuration.
func At(samples []Sample, t float64) kinematics.JointConfig {
	switch len(samples) {
	case 0:
		return kinematics.JointConfig{}
	case 1:
		return samples[0].Joints()
	}

	first, last := samples[0], samples[len(samples)-1]
	if t <= first.T {
		return first.Joints()
	}
	if t >= last.T {
		return last.Joints()
	}

	idx := sort.Search(len(samples), func(i int) bool {
		return samples[i].T > t
	})
	a, b := samples[idx-1], samples[idx]

	var alpha float64
	if b.T > a.T {
		alpha = (t - a.T) / (b.T - a.T)
	}

	return kinematics.JointConfig{
		Q1: lerp(a.Q1, b.Q1, alpha),
		Q2: lerp(a.Q2, b.Q2, alpha),
	}
}

// lerp performs linear interpolation.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
