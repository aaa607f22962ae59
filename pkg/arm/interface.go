// Package arm ties the planner session, real-time playback and the frame
// stream together into the operations exposed over HTTP, websocket and CLI.
//
// Consumers depend on the small interfaces below rather than on *Controller.
package arm

import (
	"context"

	"github.com/teslashibe/go-twolink/pkg/protocol"
	"github.com/teslashibe/go-twolink/pkg/session"
)

// Planner plans a move and starts executing it.
type Planner interface {
	Plan(ctx context.Context, req protocol.PlanRequest) (*Move, error)
}

// Homer moves the arm back to its home position.
type Homer interface {
	Home(ctx context.Context) (*Move, error)
}

// GripperController toggles gripper-offset mode.
type GripperController interface {
	SetGripper(enabled bool) protocol.StateData
}

// StateReader reports the current state.
type StateReader interface {
	State() protocol.StateData
	Last() *session.Result
}

// PlaybackController pauses, resumes and stops the move being animated.
type PlaybackController interface {
	Pause()
	Resume()
	Stop()
}

// Operator is the composite interface served by the web and control layers.
type Operator interface {
	Planner
	Homer
	GripperController
	StateReader
}

// FrameSink receives playback frames and state updates. *hub.Hub implements it.
type FrameSink interface {
	Broadcast(msg *protocol.Message) error
}

// Ensure Controller implements Operator and PlaybackController
var (
	_ Operator           = (*Controller)(nil)
	_ PlaybackController = (*Controller)(nil)
)
