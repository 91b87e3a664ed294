package recog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestMergeFromIsMonotonic(t *testing.T) {
	local := &Session{
		SessionID: "s1",
		Status:    StatusRunning,
		Collected: map[Angle]int{AngleFront: 3, AngleLeft: 1},
		VoiceSeq:  5,
		VoiceText: "Turn left",
	}

	// A stale, reordered snapshot: lower counts, older voice seq.
	server := &Session{
		SessionID:    "s1",
		Status:       StatusRunning,
		CurrentAngle: AngleLeft,
		Collected:    map[Angle]int{AngleFront: 1, AngleRight: 2},
		VoiceSeq:     3,
		VoiceText:    "Look straight",
	}

	local.MergeFrom(server)

	want := map[Angle]int{AngleFront: 3, AngleLeft: 1, AngleRight: 2}
	if diff := cmp.Diff(want, local.Collected); diff != "" {
		t.Fatalf("collected counts mismatch (-want +got):\n%s", diff)
	}
	assert.EqualValues(t, 5, local.VoiceSeq, "voice seq must not go backwards")
	assert.Equal(t, "Turn left", local.VoiceText)
	assert.Equal(t, AngleLeft, local.CurrentAngle, "server owns the current angle")
}

func TestMergeSequenceNeverRegresses(t *testing.T) {
	local := &Session{Collected: map[Angle]int{}}
	counts := []int{1, 3, 2, 5, 4, 5, 0}

	prev := 0
	for _, n := range counts {
		local.MergeFrom(&Session{Collected: map[Angle]int{AngleFront: n}})
		got := local.CollectedCount(AngleFront)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
	assert.Equal(t, 5, local.CollectedCount(AngleFront))
}

func TestMergeFromNilIsNoop(t *testing.T) {
	local := &Session{SessionID: "s1", Collected: map[Angle]int{AngleFront: 2}}
	local.MergeFrom(nil)
	assert.Equal(t, 2, local.CollectedCount(AngleFront))
}

func TestCompleted(t *testing.T) {
	assert.False(t, (&Session{}).Completed())
	assert.False(t, (&Session{KYCStage: string(FinalAngle)}).Completed())
	assert.False(t, (&Session{KYCStage: string(FinalAngle), KYCOk: boolPtr(false)}).Completed())
	assert.False(t, (&Session{KYCStage: "front", KYCOk: boolPtr(true)}).Completed())
	assert.True(t, (&Session{KYCStage: string(FinalAngle), KYCOk: boolPtr(true)}).Completed())
}

func TestFailureMessagePrecedence(t *testing.T) {
	sess := &Session{LastMessage: "session says no"}

	assert.Equal(t, "result error", FailureMessage(&OpResponse{
		Error:   "top error",
		Result:  &OpResult{Error: "result error", Reason: "reason"},
		Session: sess,
	}, "fallback"))

	assert.Equal(t, "cooldown", FailureMessage(&OpResponse{
		Result:  &OpResult{Throttled: true, Reason: "cooldown"},
		Session: sess,
	}, "fallback"))

	assert.Equal(t, "top error", FailureMessage(&OpResponse{
		Error:   "top error",
		Session: sess,
	}, "fallback"))

	assert.Equal(t, "session says no", FailureMessage(&OpResponse{
		Session: sess,
	}, "fallback"))

	assert.Equal(t, "fallback", FailureMessage(nil, "fallback"))
	assert.Equal(t, "fallback", FailureMessage(&OpResponse{}, "fallback"))
}

func TestValidAngle(t *testing.T) {
	for _, a := range Angles {
		assert.True(t, ValidAngle(a))
	}
	assert.False(t, ValidAngle("sideways"))
}
