// SPDX-License-Identifier: MIT

package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evisio/enrolld/internal/log"
	"github.com/evisio/enrolld/internal/metrics"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
)

// Identity names the logical camera a publisher speaks for. Signaling
// messages are multiplexed; only messages tagged with the exact CameraID
// are applied locally.
type Identity struct {
	CameraID  string
	CompanyID string
}

// Publisher owns one set of capture resources (media source, peer
// connection, signaling socket) at a time. Starting while active first
// fully releases the previous set; no two live resource sets ever exist
// for the same logical camera.
type Publisher struct {
	mu     sync.Mutex
	logger zerolog.Logger

	purpose     string
	newPeer     func() (Peer, error)
	newSignaler func() Signaler
	preview     Preview

	// onDown is invoked after an implicit stop caused by a signaling
	// failure, so the owning controller can surface a transient error.
	onDown func(err error)

	// live resources, nil unless active
	identity Identity
	source   FrameSource
	peer     Peer
	signaler Signaler
	cancel   context.CancelFunc
	active   bool
}

// ErrNotActive is returned by operations that require a running publisher.
var ErrNotActive = errors.New("publisher not active")

// Config wires a Publisher.
type Config struct {
	Purpose     string
	Preview     Preview
	NewPeer     func() (Peer, error)
	NewSignaler func() Signaler
	OnDown      func(err error)
}

// New creates a Publisher.
func New(cfg Config) *Publisher {
	preview := cfg.Preview
	if preview == nil {
		preview = NopPreview{}
	}
	return &Publisher{
		logger:      log.WithComponent("publisher"),
		purpose:     cfg.Purpose,
		newPeer:     cfg.NewPeer,
		newSignaler: cfg.NewSignaler,
		preview:     preview,
		onDown:      cfg.OnDown,
	}
}

// Start acquires the camera, negotiates the peer transport and begins
// publishing. If a previous capture is active it is fully released first.
// On any failure no resources are retained.
func (p *Publisher) Start(ctx context.Context, source FrameSource, id Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		// Identity changes never reuse stale resources.
		p.stopLocked()
	}

	if err := source.Open(ctx); err != nil {
		return fmt.Errorf("acquire media: %w", err)
	}

	peer, err := p.newPeer()
	if err != nil {
		_ = source.Close()
		return fmt.Errorf("peer setup: %w", err)
	}

	signaler := p.newSignaler()

	// Local candidates are sent tagged with our identity, guarded by the
	// channel-open check: gathering may outlive the socket.
	peer.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		if c == nil || !signaler.Open() {
			return
		}
		if err := signaler.Send(Message{
			ICE:       c,
			CameraID:  id.CameraID,
			CompanyID: id.CompanyID,
			Type:      "candidate",
		}); err != nil {
			p.logger.Debug().Err(err).Msg("ice candidate send failed")
		}
	})

	if err := signaler.Dial(ctx); err != nil {
		_ = peer.Close()
		_ = source.Close()
		return fmt.Errorf("signaling dial: %w", err)
	}

	// Channel is open: create the offer and announce ourselves.
	offer, err := peer.Offer()
	if err != nil {
		_ = signaler.Close()
		_ = peer.Close()
		_ = source.Close()
		return err
	}
	if err := signaler.Send(Message{
		SDP:       &offer,
		CameraID:  id.CameraID,
		CompanyID: id.CompanyID,
		Type:      "offer",
		Purpose:   p.purpose,
	}); err != nil {
		_ = signaler.Close()
		_ = peer.Close()
		_ = source.Close()
		return fmt.Errorf("send offer: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.identity = id
	p.source = source
	p.peer = peer
	p.signaler = signaler
	p.cancel = cancel
	p.active = true
	metrics.IncPublisherTransition("active")
	p.logger.Info().
		Str(log.FieldCameraID, id.CameraID).
		Str(log.FieldCompanyID, id.CompanyID).
		Msg("publisher started")

	go p.routeLoop(runCtx, signaler, peer, id)
	go p.pumpLoop(runCtx, source, peer)
	return nil
}

// routeLoop applies inbound signaling messages to the peer connection.
// Messages tagged with a different cameraId belong to another publisher on
// the multiplexed channel and are ignored.
func (p *Publisher) routeLoop(ctx context.Context, signaler Signaler, peer Peer, id Identity) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-signaler.Messages():
			if !ok {
				// Socket errored or closed underneath us while the peer
				// is still referenced: treat as an implicit stop.
				p.handleChannelDown(ctx)
				return
			}
			if msg.CameraID != id.CameraID {
				continue
			}
			switch {
			case msg.SDP != nil:
				if err := peer.SetAnswer(*msg.SDP); err != nil {
					p.logger.Warn().Err(err).Msg("apply answer failed")
				}
			case msg.ICE != nil:
				if err := peer.AddRemoteCandidate(*msg.ICE); err != nil {
					p.logger.Warn().Err(err).Msg("apply remote candidate failed")
				}
			}
		}
	}
}

func (p *Publisher) handleChannelDown(ctx context.Context) {
	if ctx.Err() != nil {
		// Normal teardown already in progress.
		return
	}
	p.logger.Warn().Msg("signaling channel lost, stopping publisher")
	_ = p.Stop()
	if p.onDown != nil {
		p.onDown(ErrChannelClosed)
	}
}

// pumpLoop forwards encoded frames from the source to the outgoing track
// and mirrors them into the local preview.
func (p *Publisher) pumpLoop(ctx context.Context, source FrameSource, peer Peer) {
	for {
		data, duration, err := source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Debug().Err(err).Msg("frame read ended")
			}
			return
		}
		p.preview.Render(data)
		if err := peer.WriteSample(data, duration); err != nil {
			p.logger.Debug().Err(err).Msg("sample write failed")
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Stop releases all publisher resources. It is idempotent; a second call
// observes the same fully-released state and returns nil.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Publisher) stopLocked() {
	if !p.active && p.source == nil && p.peer == nil && p.signaler == nil {
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("media close failed")
		}
		p.source = nil
	}
	p.preview.Detach()
	if p.peer != nil {
		if err := p.peer.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("peer close failed")
		}
		p.peer = nil
	}
	if p.signaler != nil {
		if err := p.signaler.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("signaler close failed")
		}
		p.signaler = nil
	}
	p.identity = Identity{}
	p.active = false
	metrics.IncPublisherTransition("stopped")
	p.logger.Info().Msg("publisher stopped")
}

// Active reports whether a capture is currently live.
func (p *Publisher) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// CurrentIdentity returns the identity of the live capture, if any.
func (p *Publisher) CurrentIdentity() (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity, p.active
}
