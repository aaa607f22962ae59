// Package planner turns a Cartesian target into a joint-space motion plan.
//
// Plan is the single place where reachability is enforced: it either returns a
// complete plan, or a typed error and no plan at all.
package planner

import (
	"fmt"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/profile"
)

// Request describes one move.
type Request struct {
	Target   geometry.Point
	Current  kinematics.JointConfig
	Links    geometry.Links
	Duration float64 // seconds
	Elbow    kinematics.ElbowMode
}

// MotionPlan is a pair of joint profiles that take the arm from the current
// configuration to the inverse kinematics solution of Target.
type MotionPlan struct {
	Joint1   profile.Quintic        `json:"joint1"`
	Joint2   profile.Quintic        `json:"joint2"`
	Start    kinematics.JointConfig `json:"start"`
	Goal     kinematics.JointConfig `json:"goal"`
	Target   geometry.Point         `json:"target"`
	Elbow    kinematics.ElbowMode   `json:"elbow"`
	Links    geometry.Links         `json:"links"`
	Duration float64                `json:"duration"`
}

// Plan resolves the target configuration and fits one quintic per joint.
func Plan(req Request) (*MotionPlan, error) {
	if err := req.Links.Validate(); err != nil {
		return nil, err
	}

	sol := kinematics.Inverse(req.Target, req.Links, req.Elbow)
	if !sol.Reachable {
		return nil, &UnreachableTargetError{Target: req.Target, Links: req.Links}
	}

	j1, err := profile.Fit(req.Current.Q1, sol.Q1, req.Duration)
	if err != nil {
		return nil, fmt.Errorf("joint 1: %w", err)
	}
	j2, err := profile.Fit(req.Current.Q2, sol.Q2, req.Duration)
	if err != nil {
		return nil, fmt.Errorf("joint 2: %w", err)
	}

	return &MotionPlan{
		Joint1:   j1,
		Joint2:   j2,
		Start:    req.Current,
		Goal:     sol.JointConfig,
		Target:   req.Target,
		Elbow:    req.Elbow,
		Links:    req.Links,
		Duration: req.Duration,
	}, nil
}

// At evaluates both joint profiles at time t.
func (p *MotionPlan) At(t float64) (j1, j2 profile.State) {
	return p.Joint1.Evaluate(t), p.Joint2.Evaluate(t)
}
