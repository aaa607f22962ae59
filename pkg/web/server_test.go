package web

import (
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-twolink/pkg/arm"
	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/hub"
	"github.com/teslashibe/go-twolink/pkg/kinematics"
	"github.com/teslashibe/go-twolink/pkg/protocol"
	"github.com/teslashibe/go-twolink/pkg/session"
)

var testWorkspace = geometry.Workspace{
	Links:         geometry.Links{L1: 0.12, L2: 0.12},
	GripperLength: 0.02,
}

func newServer(t *testing.T, cfg Config, defaults arm.Defaults) (*Server, *arm.Controller) {
	t.Helper()

	sess, err := session.NewAtHome(testWorkspace, geometry.Pt(0.14, 0.14), kinematics.ElbowUp)
	require.NoError(t, err)

	stream := hub.New("stream")
	op := arm.NewController(sess, stream, defaults)
	t.Cleanup(op.Close)

	cfg.Workspace = testWorkspace
	return NewServer(cfg, op, stream), op
}

func instantDefaults() arm.Defaults {
	return arm.Defaults{
		Duration: 20,
		Dt:       0.05,
		Elbow:    kinematics.ElbowUp,
		Home:     geometry.Pt(0.14, 0.14),
	}
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthAndState(t *testing.T) {
	s, _ := newServer(t, Config{}, instantDefaults())

	resp, body := do(t, s, "GET", "/health", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `"ok"`)

	resp, body = do(t, s, "GET", "/api/state", "")
	require.Equal(t, 200, resp.StatusCode)
	var st protocol.StateData
	require.NoError(t, json.Unmarshal(body, &st))
	assert.InDelta(t, 0.14, st.Position.X, 1e-9)
	assert.InDelta(t, 0.14, st.Position.Y, 1e-9)
	assert.Equal(t, "stopped", st.Playback)
}

func TestAccessLogAndCORS(t *testing.T) {
	s, _ := newServer(t, Config{AccessLog: true}, instantDefaults())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWorkspace(t *testing.T) {
	s, _ := newServer(t, Config{}, instantDefaults())

	resp, body := do(t, s, "GET", "/api/workspace", "")
	require.Equal(t, 200, resp.StatusCode)
	var ws WorkspaceInfo
	require.NoError(t, json.Unmarshal(body, &ws))
	assert.InDelta(t, 0.24, ws.OuterRadius, 1e-12)
	assert.InDelta(t, 0.26, ws.GripperRadius, 1e-12)
	assert.InDelta(t, 0, ws.InnerRadius, 1e-12)
}

func TestPlan(t *testing.T) {
	s, op := newServer(t, Config{}, instantDefaults())

	resp, body := do(t, s, "POST", "/api/plan", `{"id":"abc","x":0.10,"y":0.15,"elbow":"up"}`)
	require.Equal(t, 200, resp.StatusCode, string(body))

	var res protocol.PlanResultData
	require.NoError(t, json.Unmarshal(body, &res))
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "abc", res.RequestID)
	assert.Len(t, res.Samples, 401)
	assert.Equal(t, 20.0, res.Samples[400].T)
	assert.InDelta(t, 0.10, res.Samples[400].X, 1e-9)
	assert.InDelta(t, 0.15, res.Samples[400].Y, 1e-9)

	assert.Equal(t, res.ID, op.State().LastPlan)

	resp, body = do(t, s, "GET", "/api/plan/last", "")
	require.Equal(t, 200, resp.StatusCode)
	var last protocol.PlanResultData
	require.NoError(t, json.Unmarshal(body, &last))
	assert.Equal(t, res.ID, last.ID)
}

func TestPlan_Errors(t *testing.T) {
	s, _ := newServer(t, Config{}, instantDefaults())

	tests := []struct {
		name   string
		body   string
		status int
		code   protocol.ErrorCode
	}{
		{"unreachable", `{"x":0.3,"y":0.3}`, 422, protocol.CodeUnreachableTarget},
		{"bad json", `{"x":`, 400, protocol.CodeInvalidRequest},
		{"bad elbow", `{"x":0.1,"y":0.1,"elbow":"left"}`, 400, protocol.CodeInvalidRequest},
		{"zero duration", `{"x":0.1,"y":0.1,"duration":0}`, 400, protocol.CodeInvalidRequest},
		{"negative dt", `{"x":0.1,"y":0.1,"dt":-1}`, 400, protocol.CodeInvalidRequest},
		{"tiny dt", `{"x":0.1,"y":0.1,"dt":1e-15}`, 400, protocol.CodeInvalidRequest},
		{"huge duration", `{"x":0.1,"y":0.1,"duration":1e300}`, 400, protocol.CodeInvalidRequest},
		{"too many samples", `{"x":0.1,"y":0.1,"duration":3600,"dt":0.0001}`, 400, protocol.CodeInvalidRequest},
		{"too many samples with default duration", `{"x":0.1,"y":0.1,"dt":0.0001}`, 400, protocol.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, s, "POST", "/api/plan", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))

			var e errorBody
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, tt.code, e.Error)
		})
	}

	resp, body := do(t, s, "POST", "/api/plan", `{"x":0.3,"y":0.3}`)
	require.Equal(t, 422, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	require.NotNil(t, e.Target)
	assert.Equal(t, 0.3, e.Target.X)

	resp, _ = do(t, s, "GET", "/api/plan/last", "")
	assert.Equal(t, 404, resp.StatusCode)

	// Rejected requests leave the arm free for the next one.
	resp, body = do(t, s, "POST", "/api/plan", `{"x":0.1,"y":0.1,"duration":1}`)
	assert.Equal(t, 200, resp.StatusCode, string(body))
}

func TestPlan_RateLimited(t *testing.T) {
	s, _ := newServer(t, Config{RateLimit: 0.001, Burst: 1}, instantDefaults())

	resp, _ := do(t, s, "POST", "/api/plan", `{"x":0.1,"y":0.15}`)
	assert.Equal(t, 200, resp.StatusCode)

	resp, body := do(t, s, "POST", "/api/plan", `{"x":0.1,"y":0.15}`)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Contains(t, string(body), "rate_limited")
}

func TestPlan_BusyWhileAnimating(t *testing.T) {
	d := instantDefaults()
	d.Animate = true
	d.Speed = 0.01
	s, _ := newServer(t, Config{}, d)

	resp, _ := do(t, s, "POST", "/api/plan", `{"x":0.1,"y":0.15}`)
	require.Equal(t, 200, resp.StatusCode)

	resp, body := do(t, s, "POST", "/api/plan", `{"x":0.2,"y":0}`)
	assert.Equal(t, 409, resp.StatusCode)
	assert.Contains(t, string(body), "busy")

	resp, _ = do(t, s, "POST", "/api/playback/stop", "")
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = do(t, s, "POST", "/api/playback/rewind", "")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHomeAndGripper(t *testing.T) {
	s, _ := newServer(t, Config{}, instantDefaults())

	resp, _ := do(t, s, "POST", "/api/plan", `{"x":0.2,"y":0,"duration":1,"dt":0.5}`)
	require.Equal(t, 200, resp.StatusCode)

	resp, body := do(t, s, "POST", "/api/gripper", `{"enabled":true}`)
	require.Equal(t, 200, resp.StatusCode)
	var st protocol.StateData
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Gripper)

	resp, body = do(t, s, "POST", "/api/home", "")
	require.Equal(t, 200, resp.StatusCode)
	var res protocol.PlanResultData
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, protocol.PointData{X: 0.14, Y: 0.14}, res.Target)
	assert.NotNil(t, res.Samples[0].Tip)

	resp, _ = do(t, s, "POST", "/api/gripper", `nope`)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestPlot(t *testing.T) {
	s, _ := newServer(t, Config{}, instantDefaults())

	resp, _ := do(t, s, "GET", "/api/plot/q1", "")
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = do(t, s, "POST", "/api/plan", `{"x":0.1,"y":0.15,"duration":2}`)
	require.Equal(t, 200, resp.StatusCode)

	resp, body := do(t, s, "GET", "/api/plot/q2?width=2&height=1", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(strings.NewReader(string(body)))
	require.NoError(t, err)
	assert.Equal(t, 192, img.Bounds().Dx())

	resp, _ = do(t, s, "GET", "/api/plot/q9", "")
	assert.Equal(t, 400, resp.StatusCode)
}

func TestNotFoundShape(t *testing.T) {
	s, _ := newServer(t, Config{}, instantDefaults())

	resp, body := do(t, s, "GET", "/api/nothing", "")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, string(body), "not_found")

	resp, _ = do(t, s, "GET", "/ws/stream", "")
	assert.Equal(t, 426, resp.StatusCode)
}

func TestStreamReceivesFrames(t *testing.T) {
	d := instantDefaults()
	d.Animate = true
	d.Duration = 0.5
	d.FrameRate = 100
	d.Speed = 5
	s, op := newServer(t, Config{}, d)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	}()

	var ws *websocket.Conn
	require.Eventually(t, func() bool {
		ws, _, err = websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/stream", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer ws.Close()

	readMsg := func() *protocol.Message {
		ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.ParseMessage(data)
		require.NoError(t, err)
		return msg
	}

	// Greeting
	assert.Equal(t, protocol.TypeState, readMsg().Type)

	_, err = op.Plan(context.Background(), protocol.PlanRequest{X: 0.1, Y: 0.15})
	require.NoError(t, err)

	var final *protocol.FrameData
	for final == nil {
		msg := readMsg()
		if msg.Type != protocol.TypeFrame {
			continue
		}
		f, err := msg.GetFrameData()
		require.NoError(t, err)
		if f.Final {
			final = f
		}
	}
	assert.InDelta(t, 0.1, final.Position.X, 1e-9)
	assert.InDelta(t, 0.15, final.Position.Y, 1e-9)

	op.Wait()
}

func TestStreamConnectDisconnect(t *testing.T) {
	s, op := newServer(t, Config{}, instantDefaults())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	}()

	url := "ws://" + ln.Addr().String() + "/ws/stream"
	require.Eventually(t, func() bool {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		ws.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	// Keep frames flowing while clients come and go.
	stopBroadcast := make(chan struct{})
	broadcasting := make(chan struct{})
	go func() {
		defer close(broadcasting)
		for {
			select {
			case <-stopBroadcast:
				return
			default:
			}
			msg, _ := protocol.NewStateMessage(op.State())
			s.stream.Broadcast(msg)
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 25; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = ws.ReadMessage()
		require.NoError(t, err)

		if i%2 == 0 {
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		ws.Close()
	}

	close(stopBroadcast)
	<-broadcasting

	assert.Eventually(t, func() bool { return s.stream.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// A fresh client is still served.
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeState, msg.Type)
}
