// SPDX-License-Identifier: MIT

package recog

// Status is the server-authoritative lifecycle state of an enrollment session.
type Status string

const (
	StatusRunning Status = "running"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)

// Angle is one capture pose of the guided enrollment.
type Angle string

const (
	AngleFront Angle = "front"
	AngleLeft  Angle = "left"
	AngleRight Angle = "right"
	AngleUp    Angle = "up"
	AngleDown  Angle = "down"
)

// Angles lists the capture poses in guided order. The last entry is the
// terminal stage used for completion detection.
var Angles = []Angle{AngleFront, AngleLeft, AngleRight, AngleUp, AngleDown}

// FinalAngle is the last pose of the guided sequence.
const FinalAngle = AngleDown

// ValidAngle reports whether a is one of the known capture poses.
func ValidAngle(a Angle) bool {
	for _, known := range Angles {
		if a == known {
			return true
		}
	}
	return false
}

// BBox is a normalized face rectangle; all fields are in [0,1].
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns the normalized area of the box.
func (b BBox) Area() float64 {
	return b.W * b.H
}

// Session mirrors the authoritative enrollment session owned by the
// recognition service. Identity fields are immutable for the session's
// lifetime; everything else is server-driven.
type Session struct {
	SessionID  string `json:"sessionId"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	CameraID   string `json:"cameraId"`

	Status       Status        `json:"status"`
	CurrentAngle Angle         `json:"currentAngle"`
	Collected    map[Angle]int `json:"collected"`
	LastBBox     *BBox         `json:"lastBBox,omitempty"`

	KYCOk     *bool  `json:"kycOk,omitempty"`
	KYCReason string `json:"kycReason,omitempty"`
	KYCStage  string `json:"kycStage,omitempty"`

	VoiceSeq  int64  `json:"voiceSeq"`
	VoiceText string `json:"voiceText,omitempty"`

	LastMessage string `json:"lastMessage,omitempty"`
}

// MergeFrom folds a server snapshot into s using a monotonic merge: per-angle
// collected counts and the voice sequence only ever move forward, so a stale
// or reordered response can never make visible progress regress. All other
// fields are taken from the server, which is authoritative for them.
func (s *Session) MergeFrom(server *Session) {
	if server == nil {
		return
	}
	prev := s.Collected
	prevVoiceSeq := s.VoiceSeq
	prevVoiceText := s.VoiceText

	*s = *server

	merged := make(map[Angle]int, len(Angles))
	for a, n := range prev {
		merged[a] = n
	}
	for a, n := range server.Collected {
		if n > merged[a] {
			merged[a] = n
		}
	}
	s.Collected = merged

	if server.VoiceSeq < prevVoiceSeq {
		s.VoiceSeq = prevVoiceSeq
		s.VoiceText = prevVoiceText
	}
}

// CollectedCount returns the accepted capture count for one pose.
func (s *Session) CollectedCount(a Angle) int {
	if s == nil || s.Collected == nil {
		return 0
	}
	return s.Collected[a]
}

// Completed reports the terminal success condition: the server has advanced
// the verification stage to the final pose and flagged the subject verified.
func (s *Session) Completed() bool {
	return s != nil && s.KYCStage == string(FinalAngle) && s.KYCOk != nil && *s.KYCOk
}

// OpResult is the per-operation result envelope returned by capture and
// tick calls.
type OpResult struct {
	Ok        bool   `json:"ok"`
	Throttled bool   `json:"throttled,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OpResponse is the common response shape of enrollment operations that
// return both a result and a session snapshot.
type OpResponse struct {
	Ok      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	Result  *OpResult `json:"result,omitempty"`
	Session *Session  `json:"session,omitempty"`
}

// SaveResponse is returned by the save operation.
type SaveResponse struct {
	Result struct {
		SavedAngles []Angle `json:"saved_angles"`
	} `json:"result"`
}

// Event is one long-poll notification event. Payload carries the
// domain-specific body and is opaque to this client.
type Event struct {
	Seq     int64                  `json:"seq"`
	At      string                 `json:"at"`
	Type    string                 `json:"type,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// EventsResponse is the long-poll response envelope.
type EventsResponse struct {
	Events    []Event `json:"events"`
	LatestSeq int64   `json:"latest_seq"`
}
