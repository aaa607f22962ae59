// Package playback renders a sampled trajectory in real time.
//
// Between samples the joint angles are linearly interpolated; the final
// frame is always the last sample, so the pose reported at completion is
// exactly the plan's goal.
package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/sampler"
)

// Player handles trajectory playback at a fixed frame rate.
type Player struct {
	mu      sync.RWMutex
	state   State
	startAt time.Time
	banked  time.Duration // wall time played before the last resume
	stopCh  chan struct{}
}

// NewPlayer creates a new player.
func NewPlayer() *Player {
	return &Player{
		state:  StateStopped,
		stopCh: make(chan struct{}),
	}
}

// Play walks samples, calling cb for each frame. Blocks until playback
// completes, the callback returns false, Stop is called or ctx is done.
// The returned Result is valid even when err is non-nil.
func (p *Player) Play(ctx context.Context, samples []sampler.Sample, opts Options, cb Callback) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrEmptyTrajectory
	}

	p.mu.Lock()
	if p.state != StateStopped {
		p.mu.Unlock()
		return Result{}, ErrAlreadyPlaying
	}
	p.state = StatePlaying
	p.startAt = time.Now()
	p.banked = 0
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
	}()

	res := Result{Final: samples[0].Joints()}
	duration := samples[len(samples)-1].T
	speed := opts.speed()

	ticker := time.NewTicker(opts.frameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()

		case <-stopCh:
			return res, nil

		case <-ticker.C:
			elapsed, paused := p.elapsed()
			if paused {
				continue
			}

			t := elapsed.Seconds() * speed
			if t >= duration {
				f := p.frame(samples[len(samples)-1].Joints(), duration, opts)
				f.Final = true
				cb(f)
				res.Final = f.Joints
				res.Frames++
				res.Completed = true
				return res, nil
			}

			f := p.frame(sampler.At(samples, t), t, opts)
			res.Final = f.Joints
			res.Frames++
			if !cb(f) {
				return res, nil
			}
		}
	}
}

func (p *Player) elapsed() (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state == StatePaused {
		return p.banked, true
	}
	return p.banked + time.Since(p.startAt), false
}

func (p *Player) frame(q kinematics.JointConfig, t float64, opts Options) Frame {
	f := Frame{
		T:        t,
		Joints:   q,
		Elbow:    kinematics.Elbow(q, opts.Links),
		Position: kinematics.Forward(q, opts.Links),
	}
	if opts.Gripper {
		half := opts.GripperLength / 2
		phi := q.Q1 + q.Q2
		tip := f.Position
		tip.X += half * math.Cos(phi)
		tip.Y += half * math.Sin(phi)
		f.Tip = &tip
	}
	return f
}

// Stop halts playback immediately.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePlaying || p.state == StatePaused {
		close(p.stopCh)
		p.state = StateStopped
	}
}

// Pause temporarily stops playback.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePlaying {
		p.banked += time.Since(p.startAt)
		p.state = StatePaused
	}
}

// Resume continues paused playback.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePaused {
		p.startAt = time.Now()
		p.state = StatePlaying
	}
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Elapsed returns how much wall time has been played.
func (p *Player) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch p.state {
	case StateStopped:
		return 0
	case StatePaused:
		return p.banked
	default:
		return p.banked + time.Since(p.startAt)
	}
}
