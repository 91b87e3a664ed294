// Package events delivers near-real-time domain notifications without a
// push channel, using long-poll requests against the recognition service.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/evisio/enrolld/internal/log"
	"github.com/evisio/enrolld/internal/metrics"
	"github.com/evisio/enrolld/internal/recog"
	"github.com/rs/zerolog"
)

const (
	defaultLimit  = 50
	defaultWaitMs = 25000
	retryBackoff  = 2 * time.Second
)

// Poller issues one long-poll request. *recog.Client satisfies it.
type Poller interface {
	PollEvents(ctx context.Context, afterSeq int64, limit int, waitMs int) (*recog.EventsResponse, error)
}

// Handler receives non-empty event batches in arrival order.
type Handler func(events []recog.Event)

// Client maintains a monotone cursor over the remote event sequence and
// re-issues long-polls, bounded by an in-flight guard so overlapping
// requests never occur.
type Client struct {
	poller  Poller
	logger  zerolog.Logger
	limit   int
	waitMs  int
	backoff time.Duration

	mu       sync.Mutex
	lastSeq  int64
	inFlight bool
}

// Option configures a Client.
type Option func(*Client)

// WithLimit sets the per-request event limit.
func WithLimit(n int) Option {
	return func(c *Client) { c.limit = n }
}

// WithWait sets the long-poll hold window in milliseconds.
func WithWait(ms int) Option {
	return func(c *Client) { c.waitMs = ms }
}

// WithBackoff sets the delay before retrying after a transport failure.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates a Client over the given poller.
func New(poller Poller, opts ...Option) *Client {
	c := &Client{
		poller:  poller,
		logger:  log.WithComponent("events"),
		limit:   defaultLimit,
		waitMs:  defaultWaitMs,
		backoff: retryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastSeq returns the current cursor position.
func (c *Client) LastSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// Run polls until ctx is cancelled. The cursor is seeded with a zero-wait
// request, retried until it succeeds, so historical backlog is never
// replayed as "new" to the handler.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	for {
		resp, err := c.poll(ctx, 0)
		if err == nil {
			c.advance(resp)
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("initial cursor sync failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.poll(ctx, c.waitMs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug().Err(err).Msg("long-poll failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}
		fresh := c.advance(resp)
		if len(fresh) > 0 && handler != nil {
			handler(fresh)
		}
	}
}

// poll issues one request under the in-flight guard.
func (c *Client) poll(ctx context.Context, waitMs int) (*recog.EventsResponse, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return &recog.EventsResponse{}, nil
	}
	c.inFlight = true
	after := c.lastSeq
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()
	return c.poller.PollEvents(ctx, after, c.limit, waitMs)
}

// advance moves the cursor forward and returns the events that are genuinely
// new, deduplicated by sequence. The cursor never decreases, whatever the
// response claims.
func (c *Client) advance(resp *recog.EventsResponse) []recog.Event {
	if resp == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []recog.Event
	for _, ev := range resp.Events {
		if ev.Seq > c.lastSeq {
			c.lastSeq = ev.Seq
			fresh = append(fresh, ev)
		}
	}
	if resp.LatestSeq > c.lastSeq {
		c.lastSeq = resp.LatestSeq
	}
	if n := len(fresh); n > 0 {
		metrics.EventsReceived.Add(float64(n))
	}
	return fresh
}
