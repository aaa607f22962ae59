package protocol

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/playback"
	"github.com/teslashibe/go-twolink/pkg/sampler"
	"github.com/teslashibe/go-twolink/pkg/session"
)

// =============================================================================
// Conversions from domain types
// =============================================================================

// Point converts a geometry point.
func Point(p geometry.Point) PointData {
	return PointData{X: p.X, Y: p.Y}
}

func pointPtr(p *geometry.Point) *PointData {
	if p == nil {
		return nil
	}
	d := Point(*p)
	return &d
}

// Joints converts a joint configuration.
func Joints(q kinematics.JointConfig) JointData {
	return JointData{Q1: q.Q1, Q2: q.Q2}
}

// Samples converts a sample sequence.
func Samples(samples []sampler.Sample) []SampleData {
	out := make([]SampleData, len(samples))
	for i, s := range samples {
		out[i] = SampleData{
			T: s.T, Q1: s.Q1, DQ1: s.DQ1, DDQ1: s.DDQ1,
			Q2: s.Q2, DQ2: s.DQ2, DDQ2: s.DDQ2,
			X: s.X, Y: s.Y,
			Tip: pointPtr(s.Tip),
		}
	}
	return out
}

// PlanResult converts a session result.
func PlanResult(res *session.Result, requestID string, animate bool) PlanResultData {
	return PlanResultData{
		ID:        res.ID,
		RequestID: requestID,
		Target:    Point(res.Plan.Target),
		Elbow:     res.Plan.Elbow.String(),
		Duration:  res.Plan.Duration,
		Start:     Joints(res.Plan.Start),
		Goal:      Joints(res.Plan.Goal),
		Animate:   animate,
		Gripper:   res.Gripper,
		Samples:   Samples(res.Samples),
	}
}

// Frame converts a playback frame.
func Frame(planID string, f playback.Frame) FrameData {
	return FrameData{
		PlanID:   planID,
		T:        f.T,
		Q1:       f.Joints.Q1,
		Q2:       f.Joints.Q2,
		Elbow:    Point(f.Elbow),
		Position: Point(f.Position),
		Tip:      pointPtr(f.Tip),
		Final:    f.Final,
	}
}

// State converts a session snapshot.
func State(st session.State, pb playback.State) StateData {
	return StateData{
		Pose:      Joints(st.Pose),
		Position:  Point(st.Position),
		Gripper:   st.Gripper,
		Executing: st.Executing,
		LastPlan:  st.LastPlan,
		Playback:  pb.String(),
	}
}

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPlanMessage creates a plan request message.
func NewPlanMessage(req PlanRequest) (*Message, error) {
	return NewMessage(TypePlan, req)
}

// NewPlanResultMessage creates a plan result message.
func NewPlanResultMessage(data PlanResultData) (*Message, error) {
	return NewMessage(TypePlanResult, data)
}

// NewFrameMessage creates a playback frame message.
func NewFrameMessage(planID string, f playback.Frame) (*Message, error) {
	return NewMessage(TypeFrame, Frame(planID, f))
}

// NewStateMessage creates a state message.
func NewStateMessage(data StateData) (*Message, error) {
	return NewMessage(TypeState, data)
}

// NewErrorMessage creates an error message for err.
func NewErrorMessage(err error, requestID string) (*Message, error) {
	data := ErrorFrom(err)
	data.RequestID = requestID
	return NewMessage(TypeError, data)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string, ts int64) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: ts,
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetPlanRequest extracts a plan request from a message
func (m *Message) GetPlanRequest() (*PlanRequest, error) {
	var data PlanRequest
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Bounds on client-supplied timing.
const (
	MaxDuration = 3600.0 // seconds
	MinDt       = 1e-4   // seconds
)

// Validate checks the request's numeric fields. Durations must lie in
// (0, MaxDuration], dt in [MinDt, MaxDuration], and together they must not
// exceed sampler.MaxSamples.
func (r *PlanRequest) Validate() error {
	if !finite(r.X) || !finite(r.Y) {
		return fmt.Errorf("%w: target must be finite", ErrInvalidRequest)
	}
	if r.Duration != nil {
		if d := *r.Duration; !finite(d) || !(d > 0) || d > MaxDuration {
			return fmt.Errorf("%w: duration must be in (0, %g] seconds, got %v", ErrInvalidRequest, MaxDuration, d)
		}
	}
	if r.Dt != nil {
		if dt := *r.Dt; !finite(dt) || dt < MinDt || dt > MaxDuration {
			return fmt.Errorf("%w: dt must be in [%g, %g] seconds, got %v", ErrInvalidRequest, MinDt, MaxDuration, dt)
		}
	}
	if r.Duration != nil && r.Dt != nil {
		if n := sampler.Count(*r.Duration, *r.Dt); n > sampler.MaxSamples {
			return fmt.Errorf("%w: %.0f samples exceeds the limit of %d", ErrInvalidRequest, n, sampler.MaxSamples)
		}
	}
	return nil
}

// Target returns the requested point.
func (r *PlanRequest) Target() geometry.Point {
	return geometry.Pt(r.X, r.Y)
}

// GetGripperData extracts gripper data from a message
func (m *Message) GetGripperData() (*GripperData, error) {
	var data GripperData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPlanResult extracts a plan result from a message
func (m *Message) GetPlanResult() (*PlanResultData, error) {
	var data PlanResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
