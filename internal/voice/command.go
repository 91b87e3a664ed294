package voice

import (
	"os/exec"
	"sync"
)

// CommandAnnouncer speaks by running an external TTS command (espeak,
// flite, say) with the text as final argument. It implements StatusPort so
// the serialized queue can introspect playback.
type CommandAnnouncer struct {
	command string
	args    []string

	mu      sync.Mutex
	current *exec.Cmd
	done    chan struct{}
}

// NewCommandAnnouncer creates a CommandAnnouncer for the given command.
func NewCommandAnnouncer(command string, args ...string) *CommandAnnouncer {
	closed := make(chan struct{})
	close(closed)
	return &CommandAnnouncer{command: command, args: args, done: closed}
}

func (a *CommandAnnouncer) Speak(text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	args := append(append([]string{}, a.args...), text)
	cmd := exec.Command(a.command, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan struct{})
	a.current = cmd
	a.done = done

	go func() {
		_ = cmd.Wait()
		a.mu.Lock()
		if a.current == cmd {
			a.current = nil
		}
		a.mu.Unlock()
		close(done)
	}()
	return nil
}

func (a *CommandAnnouncer) Cancel() {
	a.mu.Lock()
	cmd := a.current
	a.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (a *CommandAnnouncer) Speaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

func (a *CommandAnnouncer) Pending() bool { return false }

func (a *CommandAnnouncer) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// NopAnnouncer discards narration; used when voice is disabled or no TTS
// command is available.
type NopAnnouncer struct{}

func (NopAnnouncer) Speak(string) error { return nil }
func (NopAnnouncer) Cancel()            {}
func (NopAnnouncer) Speaking() bool     { return false }
func (NopAnnouncer) Pending() bool      { return false }
func (NopAnnouncer) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
