package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/planner"
	"github.com/teslashibe/go-twolink/pkg/sampler"
)

func workspace() geometry.Workspace {
	return geometry.Workspace{
		Links:         geometry.Links{L1: 0.12, L2: 0.12},
		GripperLength: 0.02,
	}
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewAtHome(workspace(), geometry.Pt(0.14, 0.14), kinematics.ElbowUp)
	require.NoError(t, err)
	return s
}

func TestNewAtHome(t *testing.T) {
	s := newSession(t)

	st := s.Snapshot()
	assert.InDelta(t, 0.14, st.Position.X, 1e-9)
	assert.InDelta(t, 0.14, st.Position.Y, 1e-9)
	assert.False(t, st.Gripper)
	assert.Empty(t, st.Executing)
	assert.Empty(t, st.LastPlan)
}

func TestNewAtHome_Unreachable(t *testing.T) {
	_, err := NewAtHome(workspace(), geometry.Pt(1, 1), kinematics.ElbowUp)
	assert.ErrorIs(t, err, planner.ErrUnreachableTarget)
}

func TestNew_InvalidLinks(t *testing.T) {
	_, err := New(geometry.Workspace{Links: geometry.Links{L1: -1, L2: 1}}, kinematics.JointConfig{})
	assert.ErrorIs(t, err, geometry.ErrInvalidLinks)
}

func TestMoveCommit(t *testing.T) {
	s := newSession(t)
	start := s.Pose()

	res, err := s.Move(MoveRequest{
		Target:   geometry.Pt(0.10, 0.15),
		Elbow:    kinematics.ElbowUp,
		Duration: 20,
		Dt:       0.05,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	assert.Len(t, res.Samples, 401)
	assert.Equal(t, start, res.Plan.Start)

	// The pose does not change until the plan is committed.
	assert.Equal(t, start, s.Pose())
	assert.Equal(t, res.ID, s.Snapshot().Executing)

	require.NoError(t, s.Commit(res.ID, res.Plan.Goal))
	assert.Equal(t, res.Plan.Goal, s.Pose())

	st := s.Snapshot()
	assert.Empty(t, st.Executing)
	assert.Equal(t, res.ID, st.LastPlan)
	assert.InDelta(t, 0.10, st.Position.X, 1e-9)
	assert.InDelta(t, 0.15, st.Position.Y, 1e-9)

	// The next move starts where the last one ended.
	next, err := s.Move(MoveRequest{Target: geometry.Pt(0.2, 0), Elbow: kinematics.ElbowDown, Duration: 1, Dt: 0.1})
	require.NoError(t, err)
	assert.Equal(t, res.Plan.Goal, next.Plan.Start)
}

func TestMove_Busy(t *testing.T) {
	s := newSession(t)

	res, err := s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 1, Dt: 0.1})
	require.NoError(t, err)

	_, err = s.Move(MoveRequest{Target: geometry.Pt(0.2, 0), Duration: 1, Dt: 0.1})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, s.Commit(res.ID, res.Plan.Goal))
	_, err = s.Move(MoveRequest{Target: geometry.Pt(0.2, 0), Duration: 1, Dt: 0.1})
	assert.NoError(t, err)
}

func TestMove_UnreachableLeavesStateAlone(t *testing.T) {
	s := newSession(t)
	before := s.Snapshot()

	_, err := s.Move(MoveRequest{Target: geometry.Pt(0.3, 0.3), Duration: 1, Dt: 0.1})
	var ute *planner.UnreachableTargetError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, geometry.Pt(0.3, 0.3), ute.Target)

	assert.Equal(t, before, s.Snapshot())
}

func TestMove_TooManySamplesReleasesSession(t *testing.T) {
	s := newSession(t)
	before := s.Snapshot()

	_, err := s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 20, Dt: 1e-15})
	assert.ErrorIs(t, err, sampler.ErrTooManySamples)
	assert.Equal(t, before, s.Snapshot())

	_, err = s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 1, Dt: 0.1})
	assert.NoError(t, err)
}

func TestCommit_WrongPlan(t *testing.T) {
	s := newSession(t)
	assert.ErrorIs(t, s.Commit("nope", kinematics.JointConfig{}), ErrNotExecuting)

	res, err := s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 1, Dt: 0.1})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Commit("other", res.Plan.Goal), ErrNotExecuting)
	assert.ErrorIs(t, s.Commit("", res.Plan.Goal), ErrNotExecuting)
}

func TestSetGripper(t *testing.T) {
	s := newSession(t)

	res, err := s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 2, Dt: 0.1})
	require.NoError(t, err)
	for _, smp := range res.Samples {
		require.Nil(t, smp.Tip)
	}

	s.SetGripper(true)
	assert.True(t, s.Gripper())

	last := s.Last()
	require.NotNil(t, last)
	assert.True(t, last.Gripper)
	require.Len(t, last.Samples, len(res.Samples))
	for i, smp := range last.Samples {
		require.NotNil(t, smp.Tip)
		assert.Equal(t, res.Samples[i].Q1, smp.Q1)
		assert.Equal(t, res.Samples[i].X, smp.X)
	}

	// The result handed out earlier is not mutated.
	assert.Nil(t, res.Samples[0].Tip)

	s.SetGripper(false)
	for _, smp := range s.Last().Samples {
		assert.Nil(t, smp.Tip)
	}
}

func TestMove_GripperModeHydratesTips(t *testing.T) {
	s := newSession(t)
	s.SetGripper(true)

	res, err := s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 1, Dt: 0.1})
	require.NoError(t, err)
	assert.True(t, res.Gripper)
	for _, smp := range res.Samples {
		assert.NotNil(t, smp.Tip)
	}
}

func TestMove_Concurrent(t *testing.T) {
	s := newSession(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, busy := 0, 0

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 1, Dt: 0.1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrBusy):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, busy)
}

func TestMove_GripperToggledWhileSampling(t *testing.T) {
	s := newSession(t)

	done := make(chan *Result, 1)
	go func() {
		res, err := s.Move(MoveRequest{Target: geometry.Pt(0.10, 0.15), Duration: 1000, Dt: 0.0125})
		assert.NoError(t, err)
		done <- res
	}()

	// Neither call waits for sampling to finish.
	_ = s.Snapshot()
	s.SetGripper(true)

	res := <-done
	require.NotNil(t, res)

	last := s.Last()
	require.NotNil(t, last)
	assert.Equal(t, res.ID, last.ID)
	assert.True(t, last.Gripper)
	for _, i := range []int{0, len(last.Samples) / 2, len(last.Samples) - 1} {
		assert.NotNil(t, last.Samples[i].Tip, "sample %d", i)
	}
	assert.Equal(t, res.ID, s.Snapshot().Executing)
}
