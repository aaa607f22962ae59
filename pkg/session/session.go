// Package session owns the mutable state around the planner: the arm's
// current pose, the gripper-offset mode and the plan currently executing.
//
// A Session serializes move requests. While a plan is executing, Move
// returns ErrBusy until the plan is committed, so two overlapping requests can
// never both plan from the same stale pose.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/planner"
	"github.com/teslashibe/go-twolink/pkg/sampler"
)

// MoveRequest is one user move.
type MoveRequest struct {
	Target   geometry.Point
	Elbow    kinematics.ElbowMode
	Duration float64 // seconds
	Dt       float64 // sampling step, seconds
}

// Result is a planned and sampled move.
type Result struct {
	ID      string              `json:"id"`
	Plan    *planner.MotionPlan `json:"plan"`
	Samples []sampler.Sample    `json:"samples"`
	Gripper bool                `json:"gripper"`
}

// State is a snapshot of the session.
type State struct {
	Pose      kinematics.JointConfig `json:"pose"`
	Position  geometry.Point         `json:"position"`
	Gripper   bool                   `json:"gripper"`
	Executing string                 `json:"executing,omitempty"`
	LastPlan  string                 `json:"last_plan,omitempty"`
}

// Session is safe for concurrent use.
type Session struct {
	ws geometry.Workspace

	mu        sync.Mutex
	pose      kinematics.JointConfig
	gripper   bool
	executing string
	last      *Result
}

// New creates a session with the arm at pose.
func New(ws geometry.Workspace, pose kinematics.JointConfig) (*Session, error) {
	if err := ws.Links.Validate(); err != nil {
		return nil, err
	}
	return &Session{ws: ws, pose: pose}, nil
}

// NewAtHome creates a session with the arm resting at the inverse kinematics
// solution of home.
func NewAtHome(ws geometry.Workspace, home geometry.Point, elbow kinematics.ElbowMode) (*Session, error) {
	sol := kinematics.Inverse(home, ws.Links, elbow)
	if !sol.Reachable {
		return nil, &planner.UnreachableTargetError{Target: home, Links: ws.Links}
	}
	return New(ws, sol.JointConfig)
}

// Workspace returns the arm geometry.
func (s *Session) Workspace() geometry.Workspace {
	return s.ws
}

// Move plans from the current pose to req.Target and marks the plan as
// executing. The pose is not changed until Commit.
//
// The session is reserved for the new plan before planning starts, so a
// concurrent Move gets ErrBusy while planning and sampling run unlocked.
func (s *Session) Move(req MoveRequest) (*Result, error) {
	s.mu.Lock()
	if s.executing != "" {
		busy := s.executing
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: plan %s", ErrBusy, busy)
	}
	id := uuid.NewString()
	s.executing = id
	pose, gripper := s.pose, s.gripper
	s.mu.Unlock()

	res, err := s.build(id, req, pose, gripper)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.executing = ""
		return nil, err
	}
	if s.gripper != gripper {
		sampler.HydrateTips(res.Samples, s.gripper, s.ws.GripperLength)
		res.Gripper = s.gripper
	}
	s.last = res

	log.Debug("plan created",
		"plan", res.ID,
		"x", req.Target.X,
		"y", req.Target.Y,
		"elbow", req.Elbow.String(),
		"samples", len(res.Samples))

	return res, nil
}

func (s *Session) build(id string, req MoveRequest, pose kinematics.JointConfig, gripper bool) (*Result, error) {
	plan, err := planner.Plan(planner.Request{
		Target:   req.Target,
		Current:  pose,
		Links:    s.ws.Links,
		Duration: req.Duration,
		Elbow:    req.Elbow,
	})
	if err != nil {
		return nil, err
	}

	samples, err := sampler.Generate(plan, sampler.Options{
		Dt:            req.Dt,
		GripperOffset: gripper,
		GripperLength: s.ws.GripperLength,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		ID:      id,
		Plan:    plan,
		Samples: samples,
		Gripper: gripper,
	}, nil
}

// Commit records the pose reached by plan id and releases the session.
// For an interrupted plan, pose is where playback stopped.
func (s *Session) Commit(id string, pose kinematics.JointConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" || id != s.executing {
		return fmt.Errorf("%w: %q", ErrNotExecuting, id)
	}
	s.pose = pose
	s.executing = ""

	log.Debug("plan committed", "plan", id, "q1", pose.Q1, "q2", pose.Q2)
	return nil
}

// SetGripper switches gripper-offset mode and re-derives the tip points of the
// last result. Joint and end-effector values are left untouched.
func (s *Session) SetGripper(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gripper = enabled
	if s.last == nil {
		return
	}

	samples := make([]sampler.Sample, len(s.last.Samples))
	copy(samples, s.last.Samples)
	sampler.HydrateTips(samples, enabled, s.ws.GripperLength)

	updated := *s.last
	updated.Samples = samples
	updated.Gripper = enabled
	s.last = &updated
}

// Gripper reports whether gripper-offset mode is enabled.
func (s *Session) Gripper() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gripper
}

// Pose returns the current joint configuration.
func (s *Session) Pose() kinematics.JointConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// Last returns the most recent result, or nil.
func (s *Session) Last() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Pose:      s.pose,
		Position:  kinematics.Forward(s.pose, s.ws.Links),
		Gripper:   s.gripper,
		Executing: s.executing,
	}
	if s.last != nil {
		st.LastPlan = s.last.ID
	}
	return st
}
