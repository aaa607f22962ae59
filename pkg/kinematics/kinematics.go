package kinematics

import (
	"math"

	"github.com/teslashibe/go-twolink/pkg/geometry"
)

// Forward returns the end-effector position for joint angles q.
func Forward(q JointConfig, links geometry.Links) geometry.Point {
	return geometry.Point{
		X: links.L1*math.Cos(q.Q1) + links.L2*math.Cos(q.Q1+q.Q2),
		Y: links.L1*math.Sin(q.Q1) + links.L2*math.Sin(q.Q1+q.Q2),
	}
}

// Elbow returns the position of the joint between link 1 and link 2.
func Elbow(q JointConfig, links geometry.Links) geometry.Point {
	return geometry.Point{
		X: links.L1 * math.Cos(q.Q1),
		Y: links.L1 * math.Sin(q.Q1),
	}
}

// Inverse solves for the joint angles that place the end effector at target.
//
// cos(q2) is clamped to [-1, 1] so that targets sitting on the annulus
// boundary, or slightly past it, still produce finite angles. Reachability is
// decided separately by geometry.IsReachable.
func Inverse(target geometry.Point, links geometry.Links, elbow ElbowMode) Solution {
	r2 := target.X*target.X + target.Y*target.Y

	c2 := (r2 - links.L1*links.L1 - links.L2*links.L2) / (2 * links.L1 * links.L2)
	c2 = clamp(c2, -1, 1)

	s2 := math.Sqrt(math.Max(0, 1-c2*c2))
	if elbow == ElbowDown {
		s2 = -s2
	}

	q2 := math.Atan2(s2, c2)
	q1 := math.Atan2(target.Y, target.X) - math.Atan2(links.L2*s2, links.L1+links.L2*c2)

	return Solution{
		JointConfig: JointConfig{Q1: q1, Q2: q2},
		Reachable:   geometry.IsReachable(target, links),
	}
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
