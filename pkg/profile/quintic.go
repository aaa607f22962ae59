// Package profile generates point-to-point time-scaling profiles for a single
// joint.
//
// A quintic profile moves from q0 to qf in a fixed duration with zero velocity
// and acceleration at both ends:
//
//	q(t) = q0 + (qf - q0)(10s^3 - 15s^4 + 6s^5),  s = t/T
//
// which expands to a0 + a1 t + ... + a5 t^5 with a1 = a2 = 0.
package profile

import (
	"fmt"
	"math"
)

// State is a joint position with its first two time derivatives.
type State struct {
	Q   float64 `json:"q"`
	DQ  float64 `json:"dq"`
	DDQ float64 `json:"ddq"`
}

// Quintic is an immutable fifth-order profile over [0, Duration]. It is
// stored by its endpoints and evaluated in normalized time s = t/Duration,
// so the boundary states stay exact for any positive duration.
type Quintic struct {
	Q0       float64 `json:"q0"`
	Qf       float64 `json:"qf"`
	Duration float64 `json:"duration"`
}

// Fit builds the rest-to-rest quintic from q0 to qf lasting duration seconds.
// A non-positive or non-finite duration returns ErrInvalidDuration.
func Fit(q0, qf, duration float64) (Quintic, error) {
	if !(duration > 0) || math.IsInf(duration, 1) {
		return Quintic{}, fmt.Errorf("%w: %v", ErrInvalidDuration, duration)
	}
	return Quintic{Q0: q0, Qf: qf, Duration: duration}, nil
}

// Coeffs returns a0..a5 of the polynomial in absolute time. They over- or
// underflow for extreme durations; Evaluate does not use them.
func (p Quintic) Coeffs() [6]float64 {
	dq := p.Qf - p.Q0
	t3 := p.Duration * p.Duration * p.Duration
	t4 := t3 * p.Duration
	t5 := t4 * p.Duration
	return [6]float64{p.Q0, 0, 0, 10 * dq / t3, -15 * dq / t4, 6 * dq / t5}
}

// Evaluate returns position, velocity and acceleration at time t.
// t is not clamped; callers keep it within [0, Duration].
func (p Quintic) Evaluate(t float64) State {
	s := t / p.Duration
	s2 := s * s
	s3 := s2 * s

	h := s3 * (10 + s*(-15+6*s))     // 10s³ - 15s⁴ + 6s⁵
	dh := s2 * (30 + s*(-60+30*s))   // dh/ds
	ddh := s * (60 + s*(-180+120*s)) // d²h/ds²

	dq := p.Qf - p.Q0
	q := p.Q0 + dq*h
	if h == 1 {
		q = p.Qf
	}

	// Multiply before dividing so a zero shape term stays zero when
	// dq/T or dq/T² would overflow.
	return State{
		Q:   q,
		DQ:  dq * dh / p.Duration,
		DDQ: dq * ddh / p.Duration / p.Duration,
	}
}

// Start returns the boundary state at t=0.
func (p Quintic) Start() State {
	return p.Evaluate(0)
}

// End returns the boundary state at t=Duration.
func (p Quintic) End() State {
	return p.Evaluate(p.Duration)
}
