package web

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/plot"
	"github.com/teslashibe/go-twolink/pkg/protocol"
)

// errorBody is the JSON body of every failed API request.
type errorBody struct {
	Error   protocol.ErrorCode  `json:"error"`
	Message string              `json:"message"`
	Target  *protocol.PointData `json:"target,omitempty"`
}

// writeError maps err to a status code and error body.
func writeError(c *fiber.Ctx, err error) error {
	data := protocol.ErrorFrom(err)
	if data.Code == protocol.CodeInternal {
		log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(data.Code.Status()).JSON(errorBody{
		Error:   data.Code,
		Message: data.Message,
		Target:  data.Target,
	})
}

// errorHandler renders fiber errors (404, 426, ...) in the API error shape.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	ec := protocol.CodeInternal
	switch code {
	case fiber.StatusNotFound:
		ec = protocol.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusUpgradeRequired:
		ec = protocol.CodeInvalidRequest
	case fiber.StatusTooManyRequests:
		ec = protocol.CodeRateLimited
	}
	return c.Status(code).JSON(errorBody{Error: ec, Message: err.Error()})
}

// rateLimit rejects plan requests beyond the configured rate.
func (s *Server) rateLimit(c *fiber.Ctx) error {
	if !s.limiter.Allow() {
		return c.Status(fiber.StatusTooManyRequests).JSON(errorBody{
			Error:   protocol.CodeRateLimited,
			Message: "too many plan requests",
		})
	}
	return c.Next()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"stream_clients": s.stream.ClientCount(),
	})
}

// handleState returns the session state
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.op.State())
}

// WorkspaceInfo describes the arm geometry.
type WorkspaceInfo struct {
	L1            float64 `json:"l1"`
	L2            float64 `json:"l2"`
	GripperLength float64 `json:"gripper_length"`
	InnerRadius   float64 `json:"inner_radius"`
	OuterRadius   float64 `json:"outer_radius"`
	GripperRadius float64 `json:"gripper_radius"`
}

func (s *Server) handleWorkspace(c *fiber.Ctx) error {
	ws := s.cfg.Workspace
	return c.JSON(WorkspaceInfo{
		L1:            ws.Links.L1,
		L2:            ws.Links.L2,
		GripperLength: ws.GripperLength,
		InnerRadius:   ws.Links.MinReach(),
		OuterRadius:   ws.OuterRadius(false),
		GripperRadius: ws.OuterRadius(true),
	})
}

// handlePlan plans a move to the requested point
func (s *Server) handlePlan(c *fiber.Ctx) error {
	var req protocol.PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errors.Join(protocol.ErrInvalidRequest, err))
	}

	move, err := s.op.Plan(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(move.Data(req.ID))
}

func (s *Server) handleLastPlan(c *fiber.Ctx) error {
	last := s.op.Last()
	if last == nil {
		return fiber.NewError(fiber.StatusNotFound, "no plan yet")
	}
	return c.JSON(protocol.PlanResult(last, "", false))
}

func (s *Server) handleHome(c *fiber.Ctx) error {
	move, err := s.op.Home(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(move.Data(""))
}

func (s *Server) handleGripper(c *fiber.Ctx) error {
	var req protocol.GripperData
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errors.Join(protocol.ErrInvalidRequest, err))
	}
	return c.JSON(s.op.SetGripper(req.Enabled))
}

func (s *Server) handlePlayback(c *fiber.Ctx) error {
	switch c.Params("action") {
	case "pause":
		s.op.Pause()
	case "resume":
		s.op.Resume()
	case "stop":
		s.op.Stop()
	default:
		return fiber.NewError(fiber.StatusNotFound, "unknown playback action "+strconv.Quote(c.Params("action")))
	}
	return c.JSON(s.op.State())
}

// handlePlot renders the last plan's joint curve as PNG.
func (s *Server) handlePlot(c *fiber.Ctx) error {
	joint, err := plot.ParseJoint(c.Params("joint"))
	if err != nil {
		return writeError(c, errors.Join(protocol.ErrInvalidRequest, err))
	}

	last := s.op.Last()
	if last == nil {
		return fiber.NewError(fiber.StatusNotFound, "no plan yet")
	}

	size := plot.DefaultSize()
	if w := c.QueryFloat("width"); w > 0 {
		size.Width = w
	}
	if h := c.QueryFloat("height"); h > 0 {
		size.Height = h
	}

	var buf bytes.Buffer
	if err := plot.WritePNG(&buf, last.Samples, joint, size); err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}
