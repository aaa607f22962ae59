// Package geometry describes the planar workspace of a two-link arm.
//
// Points are expressed in meters in the arm's base frame. The reachable set of
// a two-link chain is the annulus between |l1-l2| and l1+l2, and every
// reachability decision in this module goes through IsReachable so that the
// planner and the inverse kinematics solver can never disagree about a
// borderline target.
package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Tolerance absorbs floating-point error at the annulus boundaries.
// It is the only reachability tolerance in the module.
const Tolerance = 1e-9

// Point is a Cartesian position in the arm plane.
type Point = r2.Point

// Pt is shorthand for building a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Links holds the two link lengths in meters.
type Links struct {
	L1 float64 `json:"l1" mapstructure:"l1"`
	L2 float64 `json:"l2" mapstructure:"l2"`
}

// Validate checks that both links have positive, finite length.
func (l Links) Validate() error {
	if !(l.L1 > 0) || math.IsInf(l.L1, 0) {
		return fmt.Errorf("%w: l1=%v", ErrInvalidLinks, l.L1)
	}
	if !(l.L2 > 0) || math.IsInf(l.L2, 0) {
		return fmt.Errorf("%w: l2=%v", ErrInvalidLinks, l.L2)
	}
	return nil
}

// MinReach returns the inner radius of the reachable annulus.
func (l Links) MinReach() float64 {
	return math.Abs(l.L1 - l.L2)
}

// MaxReach returns the outer radius of the reachable annulus.
func (l Links) MaxReach() float64 {
	return l.L1 + l.L2
}

// IsReachable reports whether target lies inside the reachable annulus.
func IsReachable(target Point, links Links) bool {
	r := target.Norm()
	return r >= links.MinReach()-Tolerance && r <= links.MaxReach()+Tolerance
}

// Workspace couples the link geometry with the gripper mounted on link 2.
type Workspace struct {
	Links         Links   `json:"links"`
	GripperLength float64 `json:"gripper_length"`
}

// OuterRadius is the display limit of the workspace. With gripperMode the
// full gripper length is added to the nominal l1+l2 reach.
func (w Workspace) OuterRadius(gripperMode bool) float64 {
	if gripperMode {
		return w.Links.MaxReach() + w.GripperLength
	}
	return w.Links.MaxReach()
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
