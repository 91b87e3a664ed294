// Package voice narrates the guided enrollment. Speech output goes through
// an injected AnnouncerPort so the core stays testable without a real audio
// backend.
package voice

import (
	"sync"

	"github.com/evisio/enrolld/internal/log"
)

// AnnouncerPort is the audio backend boundary.
type AnnouncerPort interface {
	// Speak starts speaking the given text, interrupting nothing by itself.
	Speak(text string) error
	// Cancel aborts any in-flight utterance.
	Cancel()
}

// Announcer deduplicates and forwards narration. Calling Say twice with the
// same key speaks at most once; a new key cancels whatever is in flight.
type Announcer struct {
	mu      sync.Mutex
	port    AnnouncerPort
	enabled bool
	lastKey string
}

// New creates an Announcer over the given port.
func New(port AnnouncerPort, enabled bool) *Announcer {
	return &Announcer{port: port, enabled: enabled}
}

// Say speaks text unless disabled, text is empty, or key matches the last
// spoken key.
func (a *Announcer) Say(key, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled || text == "" || key == a.lastKey {
		return
	}
	a.lastKey = key
	a.port.Cancel()
	if err := a.port.Speak(text); err != nil {
		logger := log.WithComponent("voice")
		logger.Warn().Err(err).Str("key", key).Msg("speak failed")
	}
}

// ResetKey clears the dedup key so the next Say always speaks. Used when a
// new session starts and narration may legitimately repeat.
func (a *Announcer) ResetKey() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastKey = ""
}

// SetEnabled toggles narration at runtime.
func (a *Announcer) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	if !enabled {
		a.port.Cancel()
	}
}
