// Package stability decides when a detected face has been held still long
// enough to request an automatic capture. It is a pure state machine over a
// stream of normalized bounding boxes and is independent of the server's
// own pose/quality scoring.
package stability

import (
	"sync"
	"time"

	"github.com/evisio/enrolld/internal/recog"
)

const (
	// MinFaceArea is the smallest normalized box area treated as a usable face.
	MinFaceArea = 0.03
	// MoveThreshold is the L1 box delta above which the face counts as moving.
	MoveThreshold = 0.06
	// MinStable is how long the face must hold still before Ready reports true.
	MinStable = 800 * time.Millisecond
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock injects a deterministic clock for tests.
func WithClock(c clock) Option {
	return func(e *Estimator) { e.clock = c }
}

// Estimator tracks how long a face has remained effectively stationary.
type Estimator struct {
	mu          sync.Mutex
	clock       clock
	lastBox     *recog.BBox
	stableSince time.Time
	area        float64
}

// New creates an Estimator.
func New(opts ...Option) *Estimator {
	e := &Estimator{clock: realClock{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Update feeds the next observed box, or nil when no face is present.
func (e *Estimator) Update(box *recog.BBox) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if box == nil || box.Area() < MinFaceArea {
		e.lastBox = nil
		e.stableSince = time.Time{}
		e.area = 0
		return
	}

	now := e.clock.Now()
	e.area = box.Area()

	if e.lastBox == nil || delta(*e.lastBox, *box) > MoveThreshold {
		// Movement, or first sighting: restart the hold-still timer.
		e.stableSince = now
	}
	b := *box
	e.lastBox = &b
}

// SteadyMs returns how long the current face has been stationary, in
// milliseconds. Zero when no usable face is tracked.
func (e *Estimator) SteadyMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastBox == nil || e.stableSince.IsZero() {
		return 0
	}
	return e.clock.Now().Sub(e.stableSince).Milliseconds()
}

// Ready reports whether the face is large enough and has held still long
// enough to permit an automatic capture tick.
func (e *Estimator) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastBox == nil || e.stableSince.IsZero() || e.area < MinFaceArea {
		return false
	}
	return e.clock.Now().Sub(e.stableSince) >= MinStable
}

// Reset clears all tracked state.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastBox = nil
	e.stableSince = time.Time{}
	e.area = 0
}

func delta(a, b recog.BBox) float64 {
	return abs(a.X-b.X) + abs(a.Y-b.Y) + abs(a.W-b.W) + abs(a.H-b.H)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
