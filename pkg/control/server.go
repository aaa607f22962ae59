// Package control serves the request/response websocket used by interactive
// clients: a client sends plan, home, gripper and ping messages and receives
// plan_result, state, error and pong messages on the same connection.
package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/arm"
	"github.com/teslashibe/go-twolink/pkg/protocol"
)

// ErrRateLimited is returned when a connection sends requests too fast.
var ErrRateLimited = errors.New("rate limited")

// Connection represents a connected control client
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	limiter *rate.Limiter
	mu      sync.Mutex
}

// Send writes a message to the client
func (c *Connection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastSeen = time.Now()
	c.mu.Unlock()
}

// Options configures per-connection request limiting.
type Options struct {
	// RateLimit is plan/home requests per second per connection; 0 disables limiting.
	RateLimit float64
	Burst     int
}

// Server manages control websocket connections
type Server struct {
	op   arm.Operator
	opts Options

	mu    sync.RWMutex
	conns map[string]*Connection

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	plansAccepted    atomic.Uint64
	plansRejected    atomic.Uint64
}

// NewServer creates a control server backed by op.
func NewServer(op arm.Operator, opts Options) *Server {
	return &Server{
		op:    op,
		opts:  opts,
		conns: make(map[string]*Connection),
	}
}

// RegisterRoutes registers the control websocket on r.
func (s *Server) RegisterRoutes(r fiber.Router) {
	r.Get("/ws/control", requireUpgrade, websocket.New(s.handle))
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.opts.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.opts.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst)
}

func (s *Server) handle(c *websocket.Conn) {
	conn := &Connection{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
		limiter:   s.newLimiter(),
	}

	s.mu.Lock()
	s.conns[conn.ID] = conn
	count := len(s.conns)
	s.mu.Unlock()
	log.Info("control client connected", "conn", conn.ID, "clients", count)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.ID)
		count := len(s.conns)
		s.mu.Unlock()
		log.Info("control client disconnected", "conn", conn.ID, "clients", count)
	}()

	// Greet with the current state so clients can draw the arm immediately.
	if msg, err := protocol.NewStateMessage(s.op.State()); err == nil {
		s.send(conn, msg)
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			log.Debug("control read", "conn", conn.ID, "error", err)
			return
		}
		conn.touch()
		s.messagesReceived.Add(1)
		s.handleMessage(conn, data)
	}
}

func (s *Server) handleMessage(conn *Connection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.sendError(conn, errors.Join(protocol.ErrInvalidRequest, err), "")
		return
	}

	switch msg.Type {
	case protocol.TypePlan:
		req, err := msg.GetPlanRequest()
		if err != nil {
			s.sendError(conn, errors.Join(protocol.ErrInvalidRequest, err), "")
			return
		}
		if !conn.limiter.Allow() {
			s.sendError(conn, ErrRateLimited, req.ID)
			return
		}
		move, err := s.op.Plan(context.Background(), *req)
		s.sendMove(conn, move, err, req.ID)

	case protocol.TypeHome:
		if !conn.limiter.Allow() {
			s.sendError(conn, ErrRateLimited, "")
			return
		}
		move, err := s.op.Home(context.Background())
		s.sendMove(conn, move, err, "")

	case protocol.TypeGripper:
		g, err := msg.GetGripperData()
		if err != nil {
			s.sendError(conn, errors.Join(protocol.ErrInvalidRequest, err), "")
			return
		}
		st := s.op.SetGripper(g.Enabled)
		if out, err := protocol.NewStateMessage(st); err == nil {
			s.send(conn, out)
		}

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id, pingTS := "", msg.Timestamp
		if ping != nil {
			id = ping.ID
			if ping.Timestamp != 0 {
				pingTS = ping.Timestamp
			}
		}
		if out, err := protocol.NewPongMessage(id, pingTS, time.Now().UnixMilli()); err == nil {
			s.send(conn, out)
		}

	default:
		s.sendError(conn, errors.Join(protocol.ErrInvalidRequest, errors.New("unsupported message type "+string(msg.Type))), "")
	}
}

func (s *Server) sendMove(conn *Connection, move *arm.Move, err error, requestID string) {
	if err != nil {
		s.plansRejected.Add(1)
		s.sendError(conn, err, requestID)
		return
	}
	s.plansAccepted.Add(1)
	out, err := protocol.NewPlanResultMessage(move.Data(requestID))
	if err != nil {
		log.Error("encode plan result", "plan", move.Result.ID, "error", err)
		return
	}
	s.send(conn, out)
}

func (s *Server) sendError(conn *Connection, err error, requestID string) {
	data := protocol.ErrorFrom(err)
	if errors.Is(err, ErrRateLimited) {
		data.Code = protocol.CodeRateLimited
	}
	data.RequestID = requestID

	log.Debug("control request failed", "conn", conn.ID, "code", data.Code, "error", err)

	out, merr := protocol.NewMessage(protocol.TypeError, data)
	if merr != nil {
		return
	}
	s.send(conn, out)
}

func (s *Server) send(conn *Connection, msg *protocol.Message) {
	s.messagesSent.Add(1)
	if err := conn.Send(msg); err != nil {
		log.Debug("control write", "conn", conn.ID, "error", err)
	}
}

// ConnectionCount returns the number of connected clients
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Stats contains control server statistics
type Stats struct {
	Connections      int    `json:"connections"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	PlansAccepted    uint64 `json:"plans_accepted"`
	PlansRejected    uint64 `json:"plans_rejected"`
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	return Stats{
		Connections:      s.ConnectionCount(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		PlansAccepted:    s.plansAccepted.Load(),
		PlansRejected:    s.plansRejected.Load(),
	}
}

// ConnectionInfo describes a connected client
type ConnectionInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// Connections returns info about all connected clients
func (s *Server) Connections() []ConnectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(s.conns))
	for _, c := range s.conns {
		c.mu.Lock()
		infos = append(infos, ConnectionInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
		})
		c.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers connection management routes
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	g := api.Group("/control")

	g.Get("/clients", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients": s.Connections(),
			"count":   s.ConnectionCount(),
		})
	})

	g.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})
}
