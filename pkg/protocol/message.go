// Package protocol defines the JSON message types exchanged with arm planner
// clients over WebSocket and HTTP.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → server messages
	TypePlan    MessageType = "plan"    // Plan (and optionally animate) a move
	TypeHome    MessageType = "home"    // Move back to the home position
	TypeGripper MessageType = "gripper" // Toggle gripper-offset mode

	// Server → client messages
	TypePlanResult MessageType = "plan_result" // Planned trajectory
	TypeFrame      MessageType = "frame"       // Playback frame
	TypeState      MessageType = "state"       // Session state
	TypeError      MessageType = "error"       // Request failed

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Shared value types
// =============================================================================

// PointData is a planar point in metres.
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// JointData is a joint configuration in radians.
type JointData struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// PlanRequest asks for a move to (X, Y). Nil optionals take server defaults.
type PlanRequest struct {
	ID       string   `json:"id,omitempty"` // echoed back in the result
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Elbow    string   `json:"elbow,omitempty"` // "up" or "down"
	Duration *float64 `json:"duration,omitempty"`
	Dt       *float64 `json:"dt,omitempty"`
	Animate  *bool    `json:"animate,omitempty"`
}

// GripperData toggles gripper-offset mode.
type GripperData struct {
	Enabled bool `json:"enabled"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// SampleData is one trajectory sample.
type SampleData struct {
	T    float64    `json:"t"`
	Q1   float64    `json:"q1"`
	DQ1  float64    `json:"dq1"`
	DDQ1 float64    `json:"ddq1"`
	Q2   float64    `json:"q2"`
	DQ2  float64    `json:"dq2"`
	DDQ2 float64    `json:"ddq2"`
	X    float64    `json:"x"`
	Y    float64    `json:"y"`
	Tip  *PointData `json:"tip,omitempty"`
}

// PlanResultData describes a planned move.
type PlanResultData struct {
	ID        string       `json:"id"`
	RequestID string       `json:"request_id,omitempty"`
	Target    PointData    `json:"target"`
	Elbow     string       `json:"elbow"`
	Duration  float64      `json:"duration"`
	Start     JointData    `json:"start"`
	Goal      JointData    `json:"goal"`
	Animate   bool         `json:"animate"`
	Gripper   bool         `json:"gripper"`
	Samples   []SampleData `json:"samples"`
}

// FrameData is one playback frame.
type FrameData struct {
	PlanID   string     `json:"plan_id"`
	T        float64    `json:"t"`
	Q1       float64    `json:"q1"`
	Q2       float64    `json:"q2"`
	Elbow    PointData  `json:"elbow"`
	Position PointData  `json:"position"`
	Tip      *PointData `json:"tip,omitempty"`
	Final    bool       `json:"final,omitempty"`
}

// StateData contains session state.
type StateData struct {
	Pose      JointData `json:"pose"`
	Position  PointData `json:"position"`
	Gripper   bool      `json:"gripper"`
	Executing string    `json:"executing,omitempty"`
	LastPlan  string    `json:"last_plan,omitempty"`
	Playback  string    `json:"playback"`
}

// ErrorData reports a failed request.
type ErrorData struct {
	Code      ErrorCode  `json:"code"`
	Message   string     `json:"message"`
	RequestID string     `json:"request_id,omitempty"`
	Target    *PointData `json:"target,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
