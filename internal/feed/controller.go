// SPDX-License-Identifier: MIT

// Package feed keeps a continuously-reloaded overlay image stream alive.
//
// The stream is an MJPEG-style endpoint with no native "connected"
// callback: liveness can only be inferred from whether a frame has rendered
// within a bounded window. Recovery therefore needs both a reactive path
// (explicit error events) and a proactive one (a stall watchdog for
// transports that hang without signaling failure).
package feed

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/evisio/enrolld/internal/log"
	"github.com/evisio/enrolld/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// retryBase is the first retry delay after a failure.
	retryBase = 250 * time.Millisecond
	// retryCap bounds the exponential backoff.
	retryCap = 3 * time.Second
	// maxBackoffExp caps the exponent so the delay formula stays bounded.
	maxBackoffExp = 4
	// stallAfter is how long we wait for a first frame before assuming the
	// transport hung silently.
	stallAfter = 3500 * time.Millisecond
)

// Snapshot is a point-in-time view of the controller state.
type Snapshot struct {
	Attempt    int  `json:"attempt"`
	HasFrame   bool `json:"has_frame"`
	RetryCount int  `json:"retry_count"`
	Enabled    bool `json:"enabled"`
}

// Controller owns the reconnect state for one overlay feed. It is
// exclusively owned by the screen/controller that created it.
type Controller struct {
	mu      sync.Mutex
	logger  zerolog.Logger
	baseURL string
	enabled bool

	attempt    int
	hasFrame   bool
	retryCount int

	retryTimer    *time.Timer
	watchdogTimer *time.Timer
	closed        bool

	// onReconnect, when set, is invoked (without the lock) after every
	// attempt bump so the rendering side can swap the image source.
	onReconnect func(src string)

	stallAfter time.Duration // overridable in tests
}

// Option configures a Controller.
type Option func(*Controller)

// WithStallThreshold overrides the watchdog window (tests).
func WithStallThreshold(d time.Duration) Option {
	return func(c *Controller) { c.stallAfter = d }
}

// WithReconnectHook registers a callback fired after each attempt bump.
func WithReconnectHook(fn func(src string)) Option {
	return func(c *Controller) { c.onReconnect = fn }
}

// New creates a Controller for the given base stream URL.
func New(baseURL string, opts ...Option) *Controller {
	c := &Controller{
		logger:     log.WithComponent("feed"),
		baseURL:    baseURL,
		stallAfter: stallAfter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamURL builds the overlay feed URL for a camera. The t parameter is
// appended by SrcURL and carries no meaning beyond defeating caches.
func StreamURL(base, cameraID, cameraName, companyID string) string {
	u := strings.TrimRight(base, "/") + "/stream/" + url.PathEscape(cameraID)
	if cameraName != "" {
		u += "/" + url.PathEscape(cameraName)
	}
	q := url.Values{}
	q.Set("type", "attendance")
	q.Set("companyId", companyID)
	return u + "?" + q.Encode()
}

// SetEnabled turns the feed on or off. Disabling cancels all timers.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	if enabled {
		c.armWatchdogLocked()
	} else {
		c.stopTimersLocked()
	}
	c.mu.Unlock()
}

// SetBaseURL swaps the underlying stream URL (camera identity change) and
// forces a fresh connection.
func (c *Controller) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = baseURL
	c.mu.Unlock()
	c.Reset()
}

// SrcURL returns the cache-busted stream URL, or "" while disabled.
func (c *Controller) SrcURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.srcURLLocked()
}

func (c *Controller) srcURLLocked() string {
	if !c.enabled || c.baseURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%d", c.baseURL, sep, c.attempt)
}

// OnFrame records that a frame rendered: pending retries are cancelled and
// the failure counter starts over.
func (c *Controller) OnFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.watchdogTimer != nil {
		c.watchdogTimer.Stop()
		c.watchdogTimer = nil
	}
	c.retryCount = 0
	c.hasFrame = true
}

// OnError schedules a reconnect with exponential backoff.
func (c *Controller) OnError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.enabled {
		return
	}
	c.hasFrame = false
	delay := RetryDelay(c.retryCount)
	c.retryCount++
	metrics.ObserveFeedRetryDelay(delay)
	c.logger.Debug().
		Int(log.FieldRetryCount, c.retryCount).
		Dur("delay", delay).
		Msg("feed error, scheduling reconnect")

	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(delay, func() {
		c.bump("error")
	})
}

// RetryDelay returns the backoff delay for the given consecutive failure
// count: min(3s, 250ms * 2^min(n,4)).
func RetryDelay(retryCount int) time.Duration {
	exp := retryCount
	if exp > maxBackoffExp {
		exp = maxBackoffExp
	}
	delay := retryBase * (1 << uint(exp))
	if delay > retryCap {
		delay = retryCap
	}
	return delay
}

// Reset cancels pending timers, zeroes retry state and forces a fresh
// connection. Used whenever the camera identity changes so a stale
// transport is never reused.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.stopTimersLocked()
	c.retryCount = 0
	c.hasFrame = false
	c.mu.Unlock()
	c.bump("reset")
}

// Close permanently stops the controller, cancelling all timers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.enabled = false
	c.stopTimersLocked()
}

// Snapshot returns the current state for the status endpoint.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Attempt:    c.attempt,
		HasFrame:   c.hasFrame,
		RetryCount: c.retryCount,
		Enabled:    c.enabled,
	}
}

// bump advances the attempt counter and re-arms the watchdog.
func (c *Controller) bump(cause string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.attempt++
	c.hasFrame = false
	metrics.IncFeedReconnect(cause)
	c.logger.Debug().
		Int(log.FieldAttempt, c.attempt).
		Str("cause", cause).
		Msg("feed reconnect")
	c.armWatchdogLocked()
	hook := c.onReconnect
	src := c.srcURLLocked()
	c.mu.Unlock()

	if hook != nil {
		hook(src)
	}
}

// armWatchdogLocked starts the stall watchdog: if no frame arrives within
// the window while the feed is enabled with a URL set, the attempt counter
// is force-advanced even though no explicit error event fired.
func (c *Controller) armWatchdogLocked() {
	if c.closed || !c.enabled || c.baseURL == "" || c.hasFrame {
		return
	}
	if c.watchdogTimer != nil {
		c.watchdogTimer.Stop()
	}
	c.watchdogTimer = time.AfterFunc(c.stallAfter, func() {
		c.mu.Lock()
		stalled := !c.hasFrame && c.enabled && !c.closed
		c.mu.Unlock()
		if stalled {
			c.bump("stall")
		}
	})
}

func (c *Controller) stopTimersLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.watchdogTimer != nil {
		c.watchdogTimer.Stop()
		c.watchdogTimer = nil
	}
}
