package stability

import (
	"testing"
	"time"

	"github.com/evisio/enrolld/internal/recog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func box(x, y, w, h float64) *recog.BBox {
	return &recog.BBox{X: x, Y: y, W: w, H: h}
}

func TestReadyAfterHoldingStill(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e := New(WithClock(clk))

	e.Update(box(0.4, 0.3, 0.2, 0.25))
	assert.False(t, e.Ready(), "not ready immediately after first sighting")

	clk.advance(MinStable)
	e.Update(box(0.4, 0.3, 0.2, 0.25))
	assert.True(t, e.Ready())
	assert.GreaterOrEqual(t, e.SteadyMs(), MinStable.Milliseconds())
}

func TestMovementResetsSteadiness(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e := New(WithClock(clk))

	e.Update(box(0.4, 0.3, 0.2, 0.25))
	clk.advance(time.Second)
	require.True(t, e.Ready())

	// Shift well past the movement threshold.
	e.Update(box(0.5, 0.3, 0.2, 0.25))
	assert.Zero(t, e.SteadyMs())
	assert.False(t, e.Ready())
}

func TestSmallMovementAccumulates(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e := New(WithClock(clk))

	e.Update(box(0.4, 0.3, 0.2, 0.25))
	clk.advance(500 * time.Millisecond)
	// Jitter below the threshold keeps the hold-still timer running.
	e.Update(box(0.41, 0.3, 0.2, 0.25))
	clk.advance(500 * time.Millisecond)
	assert.True(t, e.Ready())
}

func TestTinyFaceNeverReady(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e := New(WithClock(clk))

	// 0.1 * 0.1 = 0.01 < MinFaceArea.
	e.Update(box(0.4, 0.3, 0.1, 0.1))
	clk.advance(5 * time.Second)
	e.Update(box(0.4, 0.3, 0.1, 0.1))
	assert.False(t, e.Ready())
	assert.Zero(t, e.SteadyMs())
}

func TestNilBoxResets(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e := New(WithClock(clk))

	e.Update(box(0.4, 0.3, 0.2, 0.25))
	clk.advance(time.Second)
	require.True(t, e.Ready())

	e.Update(nil)
	assert.False(t, e.Ready())
	assert.Zero(t, e.SteadyMs())

	// Reappearance starts the window over.
	e.Update(box(0.4, 0.3, 0.2, 0.25))
	assert.False(t, e.Ready())
}

func TestReset(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e := New(WithClock(clk))

	e.Update(box(0.4, 0.3, 0.2, 0.25))
	clk.advance(time.Second)
	e.Reset()
	assert.False(t, e.Ready())
	assert.Zero(t, e.SteadyMs())
}
