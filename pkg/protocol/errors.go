package protocol

import (
	"errors"
	"net/http"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/planner"
	"github.com/teslashibe/go-twolink/pkg/profile"
	"github.com/teslashibe/go-twolink/pkg/sampler"
	"github.com/teslashibe/go-twolink/pkg/session"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	CodeUnreachableTarget ErrorCode = "unreachable_target"
	CodeInvalidRequest    ErrorCode = "invalid_request"
	CodeBusy              ErrorCode = "busy"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeNotFound          ErrorCode = "not_found"
	CodeInternal          ErrorCode = "internal"
)

// Status returns the HTTP status for the code.
func (c ErrorCode) Status() int {
	switch c {
	case CodeUnreachableTarget:
		return http.StatusUnprocessableEntity
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeBusy:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom classifies err into an ErrorData.
func ErrorFrom(err error) ErrorData {
	data := ErrorData{Code: CodeInternal, Message: err.Error()}

	var ute *planner.UnreachableTargetError
	switch {
	case errors.As(err, &ute):
		data.Code = CodeUnreachableTarget
		data.Target = &PointData{X: ute.Target.X, Y: ute.Target.Y}
	case errors.Is(err, planner.ErrUnreachableTarget):
		data.Code = CodeUnreachableTarget
	case errors.Is(err, session.ErrBusy):
		data.Code = CodeBusy
	case errors.Is(err, profile.ErrInvalidDuration),
		errors.Is(err, sampler.ErrInvalidStep),
		errors.Is(err, sampler.ErrTooManySamples),
		errors.Is(err, geometry.ErrInvalidLinks),
		errors.Is(err, kinematics.ErrUnknownElbowMode),
		errors.Is(err, ErrInvalidRequest):
		data.Code = CodeInvalidRequest
	}
	return data
}

// ErrInvalidRequest is returned for malformed client requests.
var ErrInvalidRequest = errors.New("invalid request")
