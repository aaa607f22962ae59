package arm

import (
	"context"
	"sync"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/playback"
	"github.com/teslashibe/go-twolink/pkg/protocol"
	"github.com/teslashibe/go-twolink/pkg/session"
)

// Defaults fill in the optional fields of a plan request.
type Defaults struct {
	Duration  float64 // seconds
	Dt        float64 // seconds
	Elbow     kinematics.ElbowMode
	Animate   bool
	Home      geometry.Point
	FrameRate float64 // playback frames per second
	Speed     float64 // playback speed multiplier
}

// Move is a plan that has been accepted and is executing (or, when not
// animated, already committed).
type Move struct {
	Result  *session.Result
	Animate bool
}

// Data converts the move for the wire.
func (m *Move) Data(requestID string) protocol.PlanResultData {
	return protocol.PlanResult(m.Result, requestID, m.Animate)
}

type nopSink struct{}

func (nopSink) Broadcast(*protocol.Message) error { return nil }

// Controller executes plans one at a time against a Session.
//
// Animated plans play in the background at the configured frame rate; each
// frame goes to the sink and the reached pose is committed when playback
// ends. Instant plans are committed before Plan returns.
type Controller struct {
	sess     *session.Session
	player   *playback.Player
	sink     FrameSink
	defaults Defaults

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller. A nil sink discards frames.
func NewController(sess *session.Session, sink FrameSink, defaults Defaults) *Controller {
	if sink == nil {
		sink = nopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sess:     sess,
		player:   playback.NewPlayer(),
		sink:     sink,
		defaults: defaults,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Session returns the underlying session.
func (c *Controller) Session() *session.Session {
	return c.sess
}

// Plan validates req, applies defaults and starts the move.
// Request-scoped ctx is only checked before planning; playback outlives it.
func (c *Controller) Plan(ctx context.Context, req protocol.PlanRequest) (*Move, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	mr := session.MoveRequest{
		Target:   req.Target(),
		Elbow:    c.defaults.Elbow,
		Duration: c.defaults.Duration,
		Dt:       c.defaults.Dt,
	}
	if req.Elbow != "" {
		elbow, err := kinematics.ParseElbowMode(req.Elbow)
		if err != nil {
			return nil, err
		}
		mr.Elbow = elbow
	}
	if req.Duration != nil {
		mr.Duration = *req.Duration
	}
	if req.Dt != nil {
		mr.Dt = *req.Dt
	}
	animate := c.defaults.Animate
	if req.Animate != nil {
		animate = *req.Animate
	}

	return c.execute(mr, animate)
}

// Home moves to the configured home point with the default elbow.
func (c *Controller) Home(ctx context.Context) (*Move, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.execute(session.MoveRequest{
		Target:   c.defaults.Home,
		Elbow:    c.defaults.Elbow,
		Duration: c.defaults.Duration,
		Dt:       c.defaults.Dt,
	}, c.defaults.Animate)
}

func (c *Controller) execute(mr session.MoveRequest, animate bool) (*Move, error) {
	res, err := c.sess.Move(mr)
	if err != nil {
		return nil, err
	}
	move := &Move{Result: res, Animate: animate}

	if !animate {
		if err := c.sess.Commit(res.ID, res.Plan.Goal); err != nil {
			return nil, err
		}
		c.publishState()
		return move, nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.play(res)
	}()
	return move, nil
}

func (c *Controller) play(res *session.Result) {
	opts := playback.DefaultOptions(c.sess.Workspace().Links)
	if c.defaults.FrameRate > 0 {
		opts.FrameRate = c.defaults.FrameRate
	}
	if c.defaults.Speed > 0 {
		opts.Speed = c.defaults.Speed
	}
	opts.Gripper = res.Gripper
	opts.GripperLength = c.sess.Workspace().GripperLength

	out, err := c.player.Play(c.ctx, res.Samples, opts, func(f playback.Frame) bool {
		msg, err := protocol.NewFrameMessage(res.ID, f)
		if err != nil {
			log.Warn("encode frame", "plan", res.ID, "error", err)
			return true
		}
		if err := c.sink.Broadcast(msg); err != nil {
			log.Warn("broadcast frame", "plan", res.ID, "error", err)
		}
		return true
	})

	final := out.Final
	switch {
	case out.Completed:
		final = res.Plan.Goal
	case err != nil && out.Frames == 0:
		final = res.Plan.Start
	}
	if err != nil {
		log.Warn("playback interrupted", "plan", res.ID, "error", err, "frames", out.Frames)
	}
	if cerr := c.sess.Commit(res.ID, final); cerr != nil {
		log.Error("commit plan", "plan", res.ID, "error", cerr)
		return
	}
	log.Info("plan executed", "plan", res.ID, "completed", out.Completed, "frames", out.Frames)
	c.publishState()
}

// SetGripper toggles gripper-offset mode.
func (c *Controller) SetGripper(enabled bool) protocol.StateData {
	c.sess.SetGripper(enabled)
	log.Info("gripper mode", "enabled", enabled)
	return c.publishState()
}

// State returns the current state.
func (c *Controller) State() protocol.StateData {
	return protocol.State(c.sess.Snapshot(), c.player.State())
}

// Last returns the most recent plan, or nil.
func (c *Controller) Last() *session.Result {
	return c.sess.Last()
}

// Pause pauses the animated move, if any.
func (c *Controller) Pause() {
	c.player.Pause()
	c.publishState()
}

// Resume continues a paused move.
func (c *Controller) Resume() {
	c.player.Resume()
	c.publishState()
}

// Stop ends the animated move early; the pose reached so far is committed.
func (c *Controller) Stop() {
	c.player.Stop()
}

// Wait blocks until background playback has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close stops any playback in progress and waits for it to commit.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) publishState() protocol.StateData {
	st := c.State()
	msg, err := protocol.NewStateMessage(st)
	if err != nil {
		log.Warn("encode state", "error", err)
		return st
	}
	if err := c.sink.Broadcast(msg); err != nil {
		log.Warn("broadcast state", "error", err)
	}
	return st
}
