package recog

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycleAgainstMock(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	c := New(mock.URL)
	ctx := context.Background()

	// No session yet.
	sess, err := c.SessionStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	sess, err = c.StartSession(ctx, StartRequest{
		EmployeeID: "e-1",
		Name:       "Ada",
		CameraID:   "cam-1",
		CompanyID:  "acme",
	})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, StatusRunning, sess.Status)
	assert.Equal(t, AngleFront, sess.CurrentAngle)
	assert.Equal(t, "e-1", sess.EmployeeID)

	resp, err := c.Capture(ctx, AngleFront)
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	assert.True(t, resp.Ok)
	assert.Equal(t, 1, resp.Session.CollectedCount(AngleFront))

	sess, err = c.ChangeAngle(ctx, AngleLeft)
	require.NoError(t, err)
	assert.Equal(t, AngleLeft, sess.CurrentAngle)

	sess, err = c.ClearAngle(ctx, AngleFront)
	require.NoError(t, err)
	assert.Zero(t, sess.CollectedCount(AngleFront))

	require.NoError(t, c.StopSession(ctx))
	sess, err = c.SessionStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestTickCarriesConfiguredResponse(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	c := New(mock.URL)
	ctx := context.Background()

	_, err := c.StartSession(ctx, StartRequest{EmployeeID: "e", Name: "n", CameraID: "c"})
	require.NoError(t, err)

	mock.SetTickResponse(&OpResponse{
		Ok:     false,
		Result: &OpResult{Throttled: true, Reason: "cooldown"},
		Session: &Session{
			SessionID: "s",
			Status:    StatusRunning,
			LastBBox:  &BBox{X: 0.1, Y: 0.1, W: 0.3, H: 0.3},
		},
	})

	resp, err := c.Tick(ctx)
	require.NoError(t, err, "a throttled tick is not a transport error")
	assert.False(t, resp.Ok)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Throttled)
	require.NotNil(t, resp.Session)
	assert.NotNil(t, resp.Session.LastBBox)
}

func TestServerErrorsSurfaceStatusCode(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	c := New(mock.URL)
	ctx := context.Background()

	mock.FailNext("/session/status", 1)
	_, err := c.SessionStatus(ctx)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Code)
	assert.Contains(t, apiErr.Message, "induced failure")
}

func TestPollEventsLongPoll(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	c := NewWithHTTPClient(mock.URL, &http.Client{Timeout: 10 * time.Second})
	ctx := context.Background()

	// Zero wait returns immediately even with no events.
	resp, err := c.PollEvents(ctx, 0, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Events)

	mock.AppendEvent(Event{Seq: 1, At: "2026-01-01T00:00:00Z", Type: "attendance"})
	mock.AppendEvent(Event{Seq: 2, At: "2026-01-01T00:00:01Z", Type: "attendance"})

	resp, err = c.PollEvents(ctx, 0, 10, 500)
	require.NoError(t, err)
	require.Len(t, resp.Events, 2)
	assert.EqualValues(t, 1, resp.Events[0].Seq)
	assert.EqualValues(t, 2, resp.LatestSeq)

	// The cursor filters already-seen events.
	resp, err = c.PollEvents(ctx, 2, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Events)
	assert.EqualValues(t, 2, resp.LatestSeq)
}

func TestSaveReportsSavedAngles(t *testing.T) {
	mock := NewMockServer()
	defer mock.Close()
	c := New(mock.URL)
	ctx := context.Background()

	_, err := c.StartSession(ctx, StartRequest{EmployeeID: "e", Name: "n", CameraID: "c"})
	require.NoError(t, err)
	_, err = c.Capture(ctx, AngleFront)
	require.NoError(t, err)
	_, err = c.Capture(ctx, AngleLeft)
	require.NoError(t, err)

	resp, err := c.Save(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Angle{AngleFront, AngleLeft}, resp.Result.SavedAngles)
}
