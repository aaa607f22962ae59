// Package kinematics provides closed-form forward and inverse kinematics for
// a planar two-link arm.
package kinematics

import (
	"fmt"
	"strings"
)

// JointConfig is one pose of the arm: shoulder angle Q1 and elbow angle Q2,
// both in radians. Angles are not wrapped.
type JointConfig struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
}

// ElbowMode selects one of the two inverse kinematics branches.
type ElbowMode int

const (
	// ElbowUp returns the branch with sin(q2) >= 0.
	ElbowUp ElbowMode = iota

	// ElbowDown returns the branch with sin(q2) <= 0.
	ElbowDown
)

// String returns "up" or "down".
func (e ElbowMode) String() string {
	switch e {
	case ElbowUp:
		return "up"
	case ElbowDown:
		return "down"
	default:
		return "unknown"
	}
}

// ParseElbowMode parses "up" or "down" (case-insensitive).
func ParseElbowMode(s string) (ElbowMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return ElbowUp, nil
	case "down":
		return ElbowDown, nil
	default:
		return ElbowUp, fmt.Errorf("%w: %q", ErrUnknownElbowMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e ElbowMode) MarshalText() ([]byte, error) {
	switch e {
	case ElbowUp, ElbowDown:
		return []byte(e.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownElbowMode, int(e))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *ElbowMode) UnmarshalText(text []byte) error {
	mode, err := ParseElbowMode(string(text))
	if err != nil {
		return err
	}
	*e = mode
	return nil
}

// Solution is the result of Inverse.
//
// The angles are always populated. When Reachable is false they are the
// clamped near-boundary solution and must not be used to command the arm;
// they are kept for diagnostics.
type Solution struct {
	JointConfig
	Reachable bool `json:"reachable"`
}
