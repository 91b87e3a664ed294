// SPDX-License-Identifier: MIT

// Package recog is the HTTP client for the recognition service that owns
// enrollment sessions and face scoring.
package recog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the recognition service. All methods honour the supplied
// context; responses are decoded tolerantly so unknown fields added by the
// server do not break the agent.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the given base URL.
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
// Long-poll callers need a timeout larger than their wait window.
func NewWithHTTPClient(base string, hc *http.Client) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// StartRequest carries the identity fields of a new enrollment session.
type StartRequest struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	CameraID   string `json:"cameraId"`
	CompanyID  string `json:"companyId,omitempty"`
}

type sessionEnvelope struct {
	Session *Session `json:"session"`
	Error   string   `json:"error,omitempty"`
}

// StartSession creates a new enrollment session on the recognition service.
func (c *Client) StartSession(ctx context.Context, req StartRequest) (*Session, error) {
	var env sessionEnvelope
	if err := c.post(ctx, "/session/start", req, &env); err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}
	if env.Session == nil {
		return nil, fmt.Errorf("session start: %w", errOrDefault(env.Error, "no session in response"))
	}
	return env.Session, nil
}

// SessionStatus fetches the authoritative session snapshot. A nil session
// with nil error means the service has no active session.
func (c *Client) SessionStatus(ctx context.Context) (*Session, error) {
	var env sessionEnvelope
	if err := c.get(ctx, "/session/status", &env); err != nil {
		return nil, fmt.Errorf("session status: %w", err)
	}
	return env.Session, nil
}

// StopSession terminates the active session. Stopping when no session is
// active is not an error.
func (c *Client) StopSession(ctx context.Context) error {
	if err := c.post(ctx, "/session/stop", nil, nil); err != nil {
		return fmt.Errorf("session stop: %w", err)
	}
	return nil
}

type angleRequest struct {
	Angle Angle `json:"angle"`
}

// Capture requests a manual capture for the given pose.
func (c *Client) Capture(ctx context.Context, angle Angle) (*OpResponse, error) {
	var resp OpResponse
	if err := c.post(ctx, "/enroll/capture", angleRequest{Angle: angle}, &resp); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &resp, nil
}

// ChangeAngle asks the service to advance to the given pose.
func (c *Client) ChangeAngle(ctx context.Context, angle Angle) (*Session, error) {
	var env sessionEnvelope
	if err := c.post(ctx, "/enroll/angle", angleRequest{Angle: angle}, &env); err != nil {
		return nil, fmt.Errorf("change angle: %w", err)
	}
	return env.Session, nil
}

// ClearAngle discards the collected captures for one pose so it can be
// rescanned.
func (c *Client) ClearAngle(ctx context.Context, angle Angle) (*Session, error) {
	var env sessionEnvelope
	if err := c.post(ctx, "/enroll/clear-angle", angleRequest{Angle: angle}, &env); err != nil {
		return nil, fmt.Errorf("clear angle: %w", err)
	}
	return env.Session, nil
}

// Tick fires one paced verification step. A tick may fail while still
// carrying a fresh session snapshot; callers must merge it regardless.
func (c *Client) Tick(ctx context.Context) (*OpResponse, error) {
	var resp OpResponse
	if err := c.post(ctx, "/enroll/kyc/tick", nil, &resp); err != nil {
		return nil, fmt.Errorf("kyc tick: %w", err)
	}
	return &resp, nil
}

// Save persists the collected captures.
func (c *Client) Save(ctx context.Context) (*SaveResponse, error) {
	var resp SaveResponse
	if err := c.post(ctx, "/enroll/save", nil, &resp); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	return &resp, nil
}

// Cancel aborts the enrollment without saving.
func (c *Client) Cancel(ctx context.Context) error {
	if err := c.post(ctx, "/enroll/cancel", nil, nil); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

// PollEvents issues one long-poll request for notification events after the
// given sequence number. With waitMs=0 the server answers immediately, which
// callers use to seed their cursor without replaying backlog.
func (c *Client) PollEvents(ctx context.Context, afterSeq int64, limit int, waitMs int) (*EventsResponse, error) {
	q := url.Values{}
	q.Set("afterSeq", strconv.FormatInt(afterSeq, 10))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("waitMs", strconv.Itoa(waitMs))

	var resp EventsResponse
	if err := c.get(ctx, "/events?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("poll events: %w", err)
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return decodeError(res)
	}
	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
