package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelaySchedule(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 250 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 3 * time.Second}, // 4s capped at 3s
		{5, 3 * time.Second},
		{100, 3 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.retryCount), "retryCount=%d", tt.retryCount)
	}
}

func TestDelaysNonDecreasingUntilFrame(t *testing.T) {
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := RetryDelay(i)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestOnFrameResetsRetryState(t *testing.T) {
	c := New("http://cam.local/stream/c1?type=attendance")
	defer c.Close()
	c.SetEnabled(true)

	c.OnError()
	c.OnError()
	require.Equal(t, 2, c.Snapshot().RetryCount)

	c.OnFrame()
	snap := c.Snapshot()
	assert.Zero(t, snap.RetryCount)
	assert.True(t, snap.HasFrame)
}

func TestSrcURLCacheBusting(t *testing.T) {
	c := New("http://cam.local/stream/c1?type=attendance")
	defer c.Close()

	assert.Empty(t, c.SrcURL(), "no URL while disabled")

	c.SetEnabled(true)
	first := c.SrcURL()
	require.True(t, strings.HasSuffix(first, "&t=0"), "got %q", first)

	c.Reset()
	second := c.SrcURL()
	assert.True(t, strings.HasSuffix(second, "&t=1"), "got %q", second)
	assert.NotEqual(t, first, second)
}

func TestWatchdogForcesReconnect(t *testing.T) {
	c := New("http://cam.local/stream/c1?type=attendance",
		WithStallThreshold(20*time.Millisecond))
	defer c.Close()

	c.SetEnabled(true)
	require.Equal(t, 0, c.Snapshot().Attempt)

	// No frame, no explicit error: the watchdog must advance the attempt.
	assert.Eventually(t, func() bool {
		return c.Snapshot().Attempt >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestWatchdogQuietAfterFrame(t *testing.T) {
	c := New("http://cam.local/stream/c1?type=attendance",
		WithStallThreshold(20*time.Millisecond))
	defer c.Close()

	c.SetEnabled(true)
	c.OnFrame()
	attempt := c.Snapshot().Attempt

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, attempt, c.Snapshot().Attempt, "no reconnect while frames flow")
}

func TestErrorSchedulesReconnect(t *testing.T) {
	c := New("http://cam.local/stream/c1?type=attendance")
	defer c.Close()
	c.SetEnabled(true)

	before := c.Snapshot().Attempt
	c.OnError()
	assert.Eventually(t, func() bool {
		return c.Snapshot().Attempt > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestErrorIgnoredWhileDisabled(t *testing.T) {
	c := New("http://cam.local/stream/c1?type=attendance")
	defer c.Close()

	before := c.Snapshot().Attempt
	c.OnError()
	time.Sleep(retryBase + 100*time.Millisecond)
	assert.Equal(t, before, c.Snapshot().Attempt, "a disabled feed must not reconnect")
}

func TestCloseCancelsTimers(t *testing.T) {
	c := New("http://cam.local/stream/c1?type=attendance",
		WithStallThreshold(20*time.Millisecond))
	c.SetEnabled(true)
	c.OnError()
	c.Close()

	attempt := c.Snapshot().Attempt
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, attempt, c.Snapshot().Attempt, "closed controller must not reconnect")
}

func TestStreamURL(t *testing.T) {
	u := StreamURL("http://cam.local", "cam-1", "lobby", "acme")
	assert.Contains(t, u, "/stream/cam-1/lobby?")
	assert.Contains(t, u, "type=attendance")
	assert.Contains(t, u, "companyId=acme")

	noName := StreamURL("http://cam.local/", "cam-1", "", "acme")
	assert.Contains(t, noName, "/stream/cam-1?")
}
