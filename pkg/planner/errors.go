package planner

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-twolink/pkg/geometry"
)

// ErrUnreachableTarget is matched by every UnreachableTargetError.
var ErrUnreachableTarget = errors.New("target outside workspace")

// UnreachableTargetError carries the target that could not be planned.
type UnreachableTargetError struct {
	Target geometry.Point
	Links  geometry.Links
}

func (e *UnreachableTargetError) Error() string {
	return fmt.Sprintf("%s: (%.4f, %.4f) at distance %.4f, reach [%.4f, %.4f]",
		ErrUnreachableTarget, e.Target.X, e.Target.Y, e.Target.Norm(),
		e.Links.MinReach(), e.Links.MaxReach())
}

// Is reports ErrUnreachableTarget equivalence for errors.Is.
func (e *UnreachableTargetError) Is(target error) bool {
	return target == ErrUnreachableTarget
}
