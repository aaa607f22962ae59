// Package client is a typed HTTP client for a running armplan server.
//
// Rate-limited, server-side and network failures are retried with
// exponential backoff; everything else is returned as an *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/teslashibe/go-twolink/internal/log"
	"github.com/teslashibe/go-twolink/pkg/protocol"
)

// Client talks to one server.
type Client struct {
	base       *url.URL
	http       *http.Client
	maxElapsed time.Duration
	waitBusy   bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = newHTTPClient(d) }
}

// WithMaxElapsed bounds the total time spent retrying one call; 0 disables retries.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// WithWaitBusy retries moves rejected because another move is executing.
func WithWaitBusy(wait bool) Option {
	return func(c *Client) { c.waitBusy = wait }
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:       u,
		http:       newHTTPClient(DefaultTimeout),
		maxElapsed: DefaultMaxElapsed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the server's session state.
func (c *Client) State(ctx context.Context) (*protocol.StateData, error) {
	var out protocol.StateData
	if err := c.do(ctx, http.MethodGet, "/api/state", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Plan requests a move.
func (c *Client) Plan(ctx context.Context, req protocol.PlanRequest) (*protocol.PlanResultData, error) {
	var out protocol.PlanResultData
	if err := c.do(ctx, http.MethodPost, "/api/plan", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Home moves the arm back to its home position.
func (c *Client) Home(ctx context.Context) (*protocol.PlanResultData, error) {
	var out protocol.PlanResultData
	if err := c.do(ctx, http.MethodPost, "/api/home", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetGripper toggles gripper-offset mode.
func (c *Client) SetGripper(ctx context.Context, enabled bool) (*protocol.StateData, error) {
	var out protocol.StateData
	if err := c.do(ctx, http.MethodPost, "/api/gripper", protocol.GripperData{Enabled: enabled}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Plot downloads the PNG curve of joint ("q1" or "q2") for the last plan.
func (c *Client) Plot(ctx context.Context, joint string, w io.Writer) error {
	return c.retry(ctx, func() error {
		resp, err := c.send(ctx, http.MethodGet, "/api/plot/"+url.PathEscape(joint), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return c.classify(err)
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			return backoff.Permanent(fmt.Errorf("read plot: %w", err))
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return c.retry(ctx, func() error {
		resp, err := c.send(ctx, method, path, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return c.classify(err)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	})
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		log.Debug("request failed, retrying", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) classify(err *APIError) error {
	if err.temporary() || (c.waitBusy && err.Code == protocol.CodeBusy) {
		log.Debug("server asked us to retry", "status", err.Status, "code", err.Code)
		return err
	}
	return backoff.Permanent(err)
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if c.maxElapsed > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 100 * time.Millisecond
		eb.MaxInterval = 2 * time.Second
		eb.MaxElapsedTime = c.maxElapsed
		b = eb
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func checkStatus(resp *http.Response) *APIError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
		apiErr.Code = protocol.CodeInternal
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
