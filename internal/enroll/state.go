package enroll

import (
	"github.com/evisio/enrolld/internal/recog"
)

// State is the controller-local lifecycle, distinct from the
// server-authoritative session status it reconciles against.
type State string

const (
	// StateSetup is the idle state before and after an enrollment.
	StateSetup State = "setup"
	// StateEnrolling means a remote session exists and loops are running.
	StateEnrolling State = "enrolling"
	// StateSaved is the terminal success state.
	StateSaved State = "saved"
	// StateError is the terminal failure state.
	StateError State = "error"
)

// Snapshot is a point-in-time view of the controller for the status
// endpoint and tests.
type Snapshot struct {
	State    State          `json:"state"`
	Session  *recog.Session `json:"session,omitempty"`
	Message  string         `json:"message,omitempty"`
	SteadyMs int64          `json:"steady_ms"`
	Ready    bool           `json:"ready"`
	AutoScan bool           `json:"auto_scan"`
}
