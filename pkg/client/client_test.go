package client

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-twolink/pkg/arm"
	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/hub"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/planner"
	"github.com/teslashibe/go-twolink/pkg/protocol"
	"github.com/teslashibe/go-twolink/pkg/session"
	"github.com/teslashibe/go-twolink/pkg/web"
)

// startServer runs a real web server on a loopback port.
func startServer(t *testing.T) string {
	t.Helper()

	ws := geometry.Workspace{Links: geometry.Links{L1: 0.12, L2: 0.12}, GripperLength: 0.02}
	home := geometry.Pt(0.14, 0.14)
	sess, err := session.NewAtHome(ws, home, kinematics.ElbowUp)
	require.NoError(t, err)

	stream := hub.New("stream")
	op := arm.NewController(sess, stream, arm.Defaults{
		Duration: 20,
		Dt:       0.05,
		Elbow:    kinematics.ElbowUp,
		Home:     home,
	})
	t.Cleanup(op.Close)
	srv := web.NewServer(web.Config{Workspace: ws}, op, stream)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	return url
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("localhost:8080")
	assert.Error(t, err)

	_, err = New("ftp://example.com")
	assert.Error(t, err)

	c, err := New("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.base.String())
}

func TestClient_EndToEnd(t *testing.T) {
	c, err := New(startServer(t))
	require.NoError(t, err)
	ctx := context.Background()

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.14, st.Position.X, 1e-9)
	assert.InDelta(t, 0.14, st.Position.Y, 1e-9)

	dur := 1.0
	res, err := c.Plan(ctx, protocol.PlanRequest{ID: "r1", X: 0.1, Y: 0.05, Duration: &dur})
	require.NoError(t, err)
	assert.Equal(t, "r1", res.RequestID)
	assert.NotEmpty(t, res.ID)
	require.Len(t, res.Samples, 21)
	last := res.Samples[len(res.Samples)-1]
	assert.InDelta(t, 0.1, last.X, 1e-9)
	assert.InDelta(t, 0.05, last.Y, 1e-9)

	st, err = c.SetGripper(ctx, true)
	require.NoError(t, err)
	assert.True(t, st.Gripper)

	var buf bytes.Buffer
	require.NoError(t, c.Plot(ctx, "q1", &buf))
	_, err = png.Decode(&buf)
	require.NoError(t, err)

	res, err = c.Home(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.14, res.Target.X, 1e-9)
}

func TestClient_Unreachable(t *testing.T) {
	c, err := New(startServer(t))
	require.NoError(t, err)

	_, err = c.Plan(context.Background(), protocol.PlanRequest{X: 1, Y: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrUnreachableTarget)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.NotNil(t, apiErr.Target)
	assert.InDelta(t, 1.0, apiErr.Target.X, 1e-9)
}

func TestClient_RetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"slow down"}`))
			return
		}
		w.Write([]byte(`{"pose":{"q1":0,"q2":0},"position":{"x":0.24,"y":0},"playback":"stopped"}`))
	}))
	defer ts.Close()

	c, err := New(ts.URL, WithMaxElapsed(5*time.Second))
	require.NoError(t, err)

	st, err := c.State(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.24, st.Position.X, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_PermanentErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_request","message":"bad elbow"}`))
	}))
	defer ts.Close()

	c, err := New(ts.URL)
	require.NoError(t, err)

	_, err = c.Plan(context.Background(), protocol.PlanRequest{X: 0.1, Elbow: "sideways"})
	assert.ErrorIs(t, err, protocol.ErrInvalidRequest)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BusyRetriedOnlyWhenWaiting(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"busy","message":"a move is executing"}`))
			return
		}
		w.Write([]byte(`{"id":"p1","target":{"x":0.1,"y":0},"samples":[]}`))
	}))
	defer ts.Close()

	c, err := New(ts.URL)
	require.NoError(t, err)
	_, err = c.Home(context.Background())
	assert.ErrorIs(t, err, session.ErrBusy)

	calls.Store(0)
	c, err = New(ts.URL, WithWaitBusy(true))
	require.NoError(t, err)
	res, err := c.Home(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", res.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	c, err := New(ts.URL, WithMaxElapsed(0))
	require.NoError(t, err)

	_, err = c.State(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, protocol.CodeInternal, apiErr.Code)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestClient_ContextCancelStopsRetry(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := New(ts.URL, WithMaxElapsed(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.State(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, errors.Is(err, planner.ErrUnreachableTarget))
}
