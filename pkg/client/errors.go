package client

import (
	"fmt"

	"github.com/teslashibe/go-twolink/pkg/planner"
	"github.com/teslashibe/go-twolink/pkg/protocol"
	"github.com/teslashibe/go-twolink/pkg/session"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int                 `json:"-"`
	Code    protocol.ErrorCode  `json:"error"`
	Message string              `json:"message"`
	Target  *protocol.PointData `json:"target,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// Is lets callers match server errors against the planner's own sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case planner.ErrUnreachableTarget:
		return e.Code == protocol.CodeUnreachableTarget
	case session.ErrBusy:
		return e.Code == protocol.CodeBusy
	case protocol.ErrInvalidRequest:
		return e.Code == protocol.CodeInvalidRequest
	}
	return false
}

func (e *APIError) temporary() bool {
	switch e.Code {
	case protocol.CodeRateLimited:
		return true
	}
	return e.Status >= 500
}
