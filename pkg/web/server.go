// Package web serves the arm planner's HTTP API and websocket endpoints.
package web

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/arm"
	"github.com/teslashibe/go-twolink/pkg/control"
	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/hub"
	"github.com/teslashibe/go-twolink/pkg/protocol"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Operator is what the server drives.
type Operator interface {
	arm.Operator
	arm.PlaybackController
}

// Config configures the server.
type Config struct {
	Port      string
	RateLimit float64 // plan requests per second across all HTTP clients; 0 disables
	Burst     int
	Static    string // optional directory served at /
	AccessLog bool   // log every request
	Workspace geometry.Workspace
}

// Server is the planner HTTP/websocket server
type Server struct {
	app     *fiber.App
	cfg     Config
	op      Operator
	stream  *hub.Hub
	control *control.Server
	limiter *rate.Limiter
}

// NewServer creates a server. stream must be the hub the operator
// broadcasts frames to; the server runs it.
func NewServer(cfg Config, op Operator, stream *hub.Hub) *Server {
	s := &Server{
		cfg:    cfg,
		op:     op,
		stream: stream,
		control: control.NewServer(op, control.Options{
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
		}),
		limiter: newLimiter(cfg.RateLimit, cfg.Burst),
	}

	stream.SetGreeter(func() *protocol.Message {
		msg, err := protocol.NewStateMessage(op.State())
		if err != nil {
			return nil
		}
		return msg
	})

	app := fiber.New(fiber.Config{
		AppName:               "go-twolink",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	if cfg.Static != "" {
		app.Static("/", cfg.Static)
	}

	app.Get("/health", s.handleHealth)

	// API routes
	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/workspace", s.handleWorkspace)
	api.Post("/plan", s.rateLimit, s.handlePlan)
	api.Get("/plan/last", s.handleLastPlan)
	api.Post("/home", s.rateLimit, s.handleHome)
	api.Post("/gripper", s.handleGripper)
	api.Post("/playback/:action", s.handlePlayback)
	api.Get("/plot/:joint", s.handlePlot)
	s.control.RegisterAPIRoutes(api)

	// WebSocket routes
	app.Get("/ws/stream", requireUpgrade, websocket.New(s.stream.Serve))
	s.control.RegisterRoutes(app)

	s.app = app
	return s
}

func newLimiter(limit float64, burst int) *rate.Limiter {
	if limit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Control returns the control websocket server.
func (s *Server) Control() *control.Server {
	return s.control
}

// Run serves on the configured port until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.stream.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info("web server listening", "addr", ln.Addr().String())
		return s.app.Listener(ln)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("web server shutting down")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
