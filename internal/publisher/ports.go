// SPDX-License-Identifier: MIT

// Package publisher acquires the local camera and negotiates the peer
// transport that carries its video to the recognition service. Media flows
// over WebRTC; SDP and ICE are exchanged over a multiplexed websocket
// signaling channel keyed by camera identity.
package publisher

import (
	"context"
	"time"

	"github.com/pion/webrtc/v3"
)

// FrameSource is the local camera abstraction. Implementations must bound
// the capture resolution themselves.
type FrameSource interface {
	// Open acquires the device. On failure no resources may be retained.
	Open(ctx context.Context) error
	// ReadFrame blocks until the next encoded video sample is available.
	ReadFrame(ctx context.Context) (data []byte, duration time.Duration, err error)
	// Close releases the device. Must be safe to call twice.
	Close() error
}

// Preview is the local rendering sink that mirrors outgoing frames.
type Preview interface {
	Render(frame []byte)
	Detach()
}

// NopPreview discards frames; used when the agent runs headless.
type NopPreview struct{}

func (NopPreview) Render([]byte) {}
func (NopPreview) Detach()       {}

// Message is one signaling-channel payload. Exactly one of SDP/ICE is
// populated. Messages are filtered by exact cameraId match before being
// applied to a local peer connection.
type Message struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	ICE       *webrtc.ICECandidateInit   `json:"ice,omitempty"`
	CameraID  string                     `json:"cameraId"`
	CompanyID string                     `json:"companyId,omitempty"`
	Type      string                     `json:"type,omitempty"`
	Purpose   string                     `json:"purpose,omitempty"`
}

// Signaler manages the signaling channel.
type Signaler interface {
	// Dial opens the channel.
	Dial(ctx context.Context) error
	// Send writes one message. Callers must check Open first.
	Send(msg Message) error
	// Messages returns the inbound stream. The channel is closed when the
	// socket errors or closes.
	Messages() <-chan Message
	// Open reports whether the channel is currently usable.
	Open() bool
	// Close tears the channel down. Safe to call twice.
	Close() error
}

// Peer manages the WebRTC peer connection and the outgoing video track.
type Peer interface {
	// Offer creates an offer and installs it as the local description.
	Offer() (webrtc.SessionDescription, error)
	// OnICECandidate registers the local candidate callback. A nil init
	// marks the end of gathering.
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	// SetAnswer applies the remote answer.
	SetAnswer(sdp webrtc.SessionDescription) error
	// AddRemoteCandidate applies a remote ICE candidate.
	AddRemoteCandidate(c webrtc.ICECandidateInit) error
	// WriteSample pushes one encoded video sample onto the outgoing track.
	WriteSample(data []byte, duration time.Duration) error
	// Close releases the peer connection. Safe to call twice.
	Close() error
}
