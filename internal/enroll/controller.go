// Package enroll drives the guided face-enrollment workflow: it owns the
// camera publisher, the overlay feed, the stability estimator and the voice
// narration, and keeps the local view reconciled against the authoritative
// session on the recognition service.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/evisio/enrolld/internal/feed"
	"github.com/evisio/enrolld/internal/log"
	"github.com/evisio/enrolld/internal/metrics"
	"github.com/evisio/enrolld/internal/recog"
	"github.com/evisio/enrolld/internal/stability"
	"github.com/evisio/enrolld/internal/voice"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrValidation is returned when required identity fields are missing.
var ErrValidation = errors.New("employee id, name and camera id are required")

// ErrBusy is returned when an enrollment is already in progress.
var ErrBusy = errors.New("enrollment already in progress")

// SessionAPI is the recognition-service surface the controller drives.
// *recog.Client satisfies it.
type SessionAPI interface {
	StartSession(ctx context.Context, req recog.StartRequest) (*recog.Session, error)
	SessionStatus(ctx context.Context) (*recog.Session, error)
	StopSession(ctx context.Context) error
	Capture(ctx context.Context, angle recog.Angle) (*recog.OpResponse, error)
	ChangeAngle(ctx context.Context, angle recog.Angle) (*recog.Session, error)
	ClearAngle(ctx context.Context, angle recog.Angle) (*recog.Session, error)
	Tick(ctx context.Context) (*recog.OpResponse, error)
	Save(ctx context.Context) (*recog.SaveResponse, error)
	Cancel(ctx context.Context) error
}

// Camera abstracts the device feeding the session: the local publisher, or
// a remote device started through the backend.
type Camera interface {
	Start(ctx context.Context) error
	Stop() error
}

// Options wires a Controller.
type Options struct {
	API       SessionAPI
	Camera    Camera // optional; nil when a remote device is managed elsewhere
	Feed      *feed.Controller
	Stability *stability.Estimator
	Voice     *voice.Announcer

	CompanyID string

	KYCEnabled bool
	AutoScan   bool
	NoScan     bool

	PollActive  time.Duration
	PollIdle    time.Duration
	TickCadence time.Duration
	TickMinGap  time.Duration
}

// Controller is the top-level orchestrator of one enrollment screen.
//
// All mutable state is guarded by mu; loops talk to the network without the
// lock and re-acquire it to apply results. A generation counter makes
// cancellation cooperative: a response from a previous run can never mutate
// state after a stop or restart.
type Controller struct {
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	starting  bool
	sess      *recog.Session
	msg       string
	gen       int
	runCancel context.CancelFunc

	cameraUp   bool
	completing bool

	pollInFlight bool
	tickInFlight bool
	tickLimiter  *rate.Limiter

	lastSpokenSeq int64
}

// NewController creates a Controller in the setup state.
func NewController(opts Options) *Controller {
	if opts.PollActive <= 0 {
		opts.PollActive = 400 * time.Millisecond
	}
	if opts.PollIdle <= 0 {
		opts.PollIdle = 1500 * time.Millisecond
	}
	if opts.TickCadence <= 0 {
		opts.TickCadence = 250 * time.Millisecond
	}
	if opts.TickMinGap <= 0 {
		opts.TickMinGap = 1100 * time.Millisecond
	}
	return &Controller{
		opts:        opts,
		logger:      log.WithComponent("enroll"),
		state:       StateSetup,
		tickLimiter: rate.NewLimiter(rate.Every(opts.TickMinGap), 1),
	}
}

// Start validates the identity fields, brings the camera up, creates the
// remote session and launches the reconciliation loops. On any failure the
// camera it started is rolled back and the state stays setup.
func (c *Controller) Start(ctx context.Context, employeeID, name, cameraID string) error {
	if employeeID == "" || name == "" || cameraID == "" {
		return ErrValidation
	}

	c.mu.Lock()
	if c.state == StateEnrolling || c.starting {
		c.mu.Unlock()
		return ErrBusy
	}
	// Claim the slot before the network phase so a concurrent Start cannot
	// create a second remote session while this one is still setting up.
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	cameraStarted := false
	if c.opts.Camera != nil {
		if err := c.opts.Camera.Start(ctx); err != nil {
			return fmt.Errorf("camera start: %w", err)
		}
		cameraStarted = true
	}

	sess, err := c.opts.API.StartSession(ctx, recog.StartRequest{
		EmployeeID: employeeID,
		Name:       name,
		CameraID:   cameraID,
		CompanyID:  c.opts.CompanyID,
	})
	if err != nil {
		// Roll back only what this operation acquired.
		if cameraStarted {
			_ = c.opts.Camera.Stop()
		}
		return fmt.Errorf("session start: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.state = StateEnrolling
	c.sess = sess
	c.msg = ""
	c.cameraUp = cameraStarted
	c.completing = false
	c.lastSpokenSeq = 0
	c.gen++
	gen := c.gen
	c.runCancel = cancel
	c.mu.Unlock()

	if c.opts.Stability != nil {
		c.opts.Stability.Reset()
	}
	if c.opts.Voice != nil {
		c.opts.Voice.ResetKey()
	}
	if c.opts.Feed != nil {
		c.opts.Feed.SetEnabled(true)
		c.opts.Feed.Reset()
	}

	c.logger.Info().
		Str(log.FieldSessionID, sess.SessionID).
		Str(log.FieldEmployeeID, employeeID).
		Str(log.FieldCameraID, cameraID).
		Msg("enrollment started")

	go c.pollLoop(runCtx, gen)
	if c.autoScanWanted() {
		go c.tickLoop(runCtx, gen)
	}
	return nil
}

func (c *Controller) autoScanWanted() bool {
	return c.opts.AutoScan && c.opts.KYCEnabled && !c.opts.NoScan
}

// stale reports whether a response belongs to a superseded run.
func (c *Controller) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// pollLoop reconciles the local view against the server at 400ms while the
// session is running and 1500ms otherwise. Poll errors are never fatal.
func (c *Controller) pollLoop(ctx context.Context, gen int) {
	for {
		interval := c.opts.PollIdle
		c.mu.Lock()
		if c.sess != nil && c.sess.Status == recog.StatusRunning {
			interval = c.opts.PollActive
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		c.mu.Lock()
		if c.pollInFlight {
			c.mu.Unlock()
			continue
		}
		c.pollInFlight = true
		c.mu.Unlock()

		start := time.Now()
		sess, err := c.opts.API.SessionStatus(ctx)
		metrics.ObserveSessionPoll(time.Since(start))

		c.mu.Lock()
		c.pollInFlight = false
		c.mu.Unlock()

		if ctx.Err() != nil || c.stale(gen) {
			return
		}
		if err != nil {
			c.logger.Debug().Err(err).Msg("status poll failed")
			continue
		}
		if sess == nil {
			// The server no longer knows the session we believe is
			// running: trust the server.
			c.desync("session lost on server")
			return
		}
		c.apply(sess)
	}
}

// tickLoop fires paced verification steps while auto-scan is active. The
// UI cadence is fast, but actual requests are limited to one per minimum
// gap and never overlap.
func (c *Controller) tickLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(c.opts.TickCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		running := c.state == StateEnrolling && c.sess != nil && c.sess.Status == recog.StatusRunning
		busy := c.tickInFlight
		c.mu.Unlock()
		if !running || busy {
			continue
		}
		if c.opts.Stability != nil && !c.opts.Stability.Ready() {
			continue
		}
		if !c.tickLimiter.Allow() {
			continue
		}

		c.mu.Lock()
		if c.tickInFlight {
			c.mu.Unlock()
			continue
		}
		c.tickInFlight = true
		c.mu.Unlock()

		resp, err := c.opts.API.Tick(ctx)

		c.mu.Lock()
		c.tickInFlight = false
		c.mu.Unlock()

		if ctx.Err() != nil || c.stale(gen) {
			return
		}
		if err != nil {
			metrics.IncTick("transport_error")
			c.logger.Debug().Err(err).Msg("tick failed")
			continue
		}
		c.handleTickResponse(ctx, resp)
	}
}

// handleTickResponse merges whatever session snapshot the tick carried.
// A failed tick with a snapshot is still a successful sync; only a tick
// lacking any session payload falls back to a full status refresh.
func (c *Controller) handleTickResponse(ctx context.Context, resp *recog.OpResponse) {
	ok := resp != nil && resp.Ok && (resp.Result == nil || resp.Result.Ok)
	switch {
	case ok:
		metrics.IncTick("ok")
	case resp != nil && resp.Result != nil && resp.Result.Throttled:
		metrics.IncTick("throttled")
	default:
		metrics.IncTick("rejected")
	}

	if resp != nil && resp.Session != nil {
		if !ok {
			c.setMessage(recog.FailureMessage(resp, "verification paused"))
		}
		c.apply(resp.Session)
		return
	}

	c.setMessage(recog.FailureMessage(resp, "verification paused"))
	sess, err := c.opts.API.SessionStatus(ctx)
	if err != nil || ctx.Err() != nil {
		return
	}
	if sess != nil {
		c.apply(sess)
	}
}

// apply is the single orchestration pipeline invoked for every session
// snapshot: monotonic merge, then stability update, then voice triggers,
// then terminal-state evaluation. Collapsing this into one function keeps
// the ordering deterministic.
func (c *Controller) apply(server *recog.Session) {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return
	}
	c.sess.MergeFrom(server)
	sess := c.sess

	var speakSeq int64
	var speakText string
	if sess.VoiceSeq > c.lastSpokenSeq && sess.VoiceText != "" {
		c.lastSpokenSeq = sess.VoiceSeq
		speakSeq = sess.VoiceSeq
		speakText = sess.VoiceText
	}
	bbox := sess.LastBBox
	status := sess.Status
	completed := sess.Completed() && !c.completing
	if completed {
		c.completing = true
	}
	lastMessage := sess.LastMessage
	c.mu.Unlock()

	if c.opts.Stability != nil {
		c.opts.Stability.Update(bbox)
	}
	if speakText != "" && c.opts.Voice != nil {
		c.opts.Voice.Say(strconv.FormatInt(speakSeq, 10), speakText)
	}

	switch {
	case completed:
		go c.complete()
	case status == recog.StatusSaved:
		c.finish(StateSaved, "enrollment saved")
	case status == recog.StatusError:
		msg := lastMessage
		if msg == "" {
			msg = "enrollment failed"
		}
		c.finish(StateError, msg)
	case status == recog.StatusStopped:
		c.finish(StateSetup, "")
	}
}

// complete reacts to the terminal success condition reported by the
// server: stop the remote session, release the camera, reset progress.
func (c *Controller) complete() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.opts.API.StopSession(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("stop after completion failed")
	}
	c.finish(StateSaved, "enrollment complete")
}

// finish transitions to a terminal (or setup) state and releases all local
// resources. Every exit path of the controller funnels through here.
func (c *Controller) finish(state State, msg string) {
	c.mu.Lock()
	old := c.state
	c.state = state
	if msg != "" {
		c.msg = msg
	}
	if state != StateEnrolling {
		if c.runCancel != nil {
			c.runCancel()
			c.runCancel = nil
		}
		c.gen++
	}
	cameraUp := c.cameraUp
	c.cameraUp = false
	// Every terminal state destroys the session; only the message survives.
	if state != StateEnrolling {
		c.sess = nil
	}
	c.mu.Unlock()

	if cameraUp && c.opts.Camera != nil {
		_ = c.opts.Camera.Stop()
	}
	if c.opts.Feed != nil {
		c.opts.Feed.SetEnabled(false)
	}
	if c.opts.Stability != nil {
		c.opts.Stability.Reset()
	}

	if old != state {
		c.logger.Info().
			Str(log.FieldOldState, string(old)).
			Str(log.FieldNewState, string(state)).
			Msg("enrollment state changed")
	}
}

// desync resolves a disagreement with the server by trusting the server
// and resetting to setup.
func (c *Controller) desync(reason string) {
	c.logger.Warn().Str("reason", reason).Msg("session desync, resetting")
	c.finish(StateSetup, reason)
}

// Capture requests a manual capture for the given pose.
func (c *Controller) Capture(ctx context.Context, angle recog.Angle) error {
	if !recog.ValidAngle(angle) {
		return fmt.Errorf("unknown angle %q", angle)
	}
	resp, err := c.opts.API.Capture(ctx, angle)
	if err != nil {
		c.setMessage("capture failed")
		c.refresh(ctx)
		return err
	}
	if resp.Session != nil {
		c.apply(resp.Session)
	}
	if !resp.Ok || (resp.Result != nil && !resp.Result.Ok) {
		msg := recog.FailureMessage(resp, "capture rejected")
		c.setMessage(msg)
		if resp.Session == nil {
			c.refresh(ctx)
		}
		return errors.New(msg)
	}
	return nil
}

// ChangeAngle advances the session to the given pose.
func (c *Controller) ChangeAngle(ctx context.Context, angle recog.Angle) error {
	if !recog.ValidAngle(angle) {
		return fmt.Errorf("unknown angle %q", angle)
	}
	sess, err := c.opts.API.ChangeAngle(ctx, angle)
	if err != nil {
		c.refresh(ctx)
		return err
	}
	if sess != nil {
		c.apply(sess)
	}
	return nil
}

// RescanAngle discards the collected captures for a pose and makes it the
// current pose again.
func (c *Controller) RescanAngle(ctx context.Context, angle recog.Angle) error {
	if !recog.ValidAngle(angle) {
		return fmt.Errorf("unknown angle %q", angle)
	}
	sess, err := c.opts.API.ClearAngle(ctx, angle)
	if err != nil {
		c.refresh(ctx)
		return err
	}
	if sess != nil {
		c.apply(sess)
	}
	return c.ChangeAngle(ctx, angle)
}

// Save persists the collected captures and finishes the enrollment.
func (c *Controller) Save(ctx context.Context) ([]recog.Angle, error) {
	resp, err := c.opts.API.Save(ctx)
	if err != nil {
		c.setMessage("save failed")
		c.refresh(ctx)
		return nil, err
	}
	c.finish(StateSaved, "enrollment saved")
	return resp.Result.SavedAngles, nil
}

// Cancel aborts the enrollment without saving.
func (c *Controller) Cancel(ctx context.Context) error {
	err := c.opts.API.Cancel(ctx)
	c.finish(StateSetup, "")
	return err
}

// Stop tears the enrollment down: remote session, camera, loops, feed.
// It is idempotent.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	hadSession := c.sess != nil
	c.mu.Unlock()

	var err error
	if hadSession {
		err = c.opts.API.StopSession(ctx)
	}
	c.finish(StateSetup, "")
	return err
}

// refresh pulls a fresh status snapshot so the local view never diverges
// from the server after a failed operation.
func (c *Controller) refresh(ctx context.Context) {
	sess, err := c.opts.API.SessionStatus(ctx)
	if err != nil {
		return
	}
	if sess == nil {
		c.mu.Lock()
		enrolling := c.state == StateEnrolling
		c.mu.Unlock()
		if enrolling {
			c.desync("session lost on server")
		}
		return
	}
	c.apply(sess)
}

func (c *Controller) setMessage(msg string) {
	c.mu.Lock()
	c.msg = msg
	c.mu.Unlock()
}

// Message returns the last user-facing message.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the observable controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:    c.state,
		Message:  c.msg,
		AutoScan: c.autoScanWanted(),
	}
	if c.sess != nil {
		sess := *c.sess
		collected := make(map[recog.Angle]int, len(sess.Collected))
		for a, n := range sess.Collected {
			collected[a] = n
		}
		sess.Collected = collected
		snap.Session = &sess
	}
	if c.opts.Stability != nil {
		snap.SteadyMs = c.opts.Stability.SteadyMs()
		snap.Ready = c.opts.Stability.Ready()
	}
	return snap
}
