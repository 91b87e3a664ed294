package voice

import (
	"sync"
	"time"

	"github.com/evisio/enrolld/internal/log"
	"github.com/evisio/enrolld/internal/metrics"
)

// maxQueued bounds the playback buffer; when full the oldest utterance is
// dropped so narration never lags far behind the session.
const maxQueued = 128

// blockedProbeDelay is how long after enqueueing we check whether the
// backend actually started playing. Some audio backends silently refuse
// output until unlocked by a user gesture; they report neither speaking
// nor pending shortly after being handed an utterance.
const blockedProbeDelay = 250 * time.Millisecond

// StatusPort extends AnnouncerPort with playback introspection, needed to
// detect policy-blocked audio.
type StatusPort interface {
	AnnouncerPort
	// Speaking reports whether an utterance is currently being played.
	Speaking() bool
	// Pending reports whether utterances are queued inside the backend.
	Pending() bool
	// Done returns a channel that receives after the current utterance
	// finishes.
	Done() <-chan struct{}
}

// Queue plays utterances strictly one at a time. When the backend appears
// blocked, playback is deferred until Unlock is called.
type Queue struct {
	mu      sync.Mutex
	port    StatusPort
	items   []string
	playing bool
	blocked bool
	closed  bool
	wake    chan struct{}
}

// NewQueue creates a serialized playback queue over the given port and
// starts its playback loop.
func NewQueue(port StatusPort) *Queue {
	q := &Queue{
		port: port,
		wake: make(chan struct{}, 1),
	}
	go q.loop()
	return q
}

// Enqueue buffers one utterance for serialized playback.
func (q *Queue) Enqueue(text string) {
	if text == "" {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, text)
	if len(q.items) > maxQueued {
		q.items = q.items[len(q.items)-maxQueued:]
	}
	metrics.SpeechQueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()
	q.kick()
}

// Unlock resumes playback after a user gesture made audio output available.
func (q *Queue) Unlock() {
	q.mu.Lock()
	q.blocked = false
	q.mu.Unlock()
	q.kick()
}

// Close stops the playback loop and cancels any in-flight utterance.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	metrics.SpeechQueueDepth.Set(0)
	q.mu.Unlock()
	q.port.Cancel()
	q.kick()
}

// Depth returns the number of buffered utterances.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) loop() {
	logger := log.WithComponent("voice")
	for range q.wake {
		for {
			q.mu.Lock()
			if q.closed {
				q.mu.Unlock()
				return
			}
			if q.blocked || q.playing || len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			text := q.items[0]
			q.items = q.items[1:]
			q.playing = true
			metrics.SpeechQueueDepth.Set(float64(len(q.items)))
			q.mu.Unlock()

			if err := q.port.Speak(text); err != nil {
				logger.Warn().Err(err).Msg("speak failed, dropping utterance")
				q.mu.Lock()
				q.playing = false
				q.mu.Unlock()
				continue
			}

			// Probe for policy-blocked audio: if the backend shows no
			// activity shortly after being handed the utterance, defer
			// everything until Unlock.
			time.Sleep(blockedProbeDelay)
			if !q.port.Speaking() && !q.port.Pending() {
				logger.Info().Msg("audio output appears blocked, deferring narration")
				q.mu.Lock()
				q.blocked = true
				q.playing = false
				// Put the utterance back so it plays after unlock.
				q.items = append([]string{text}, q.items...)
				if len(q.items) > maxQueued {
					q.items = q.items[:maxQueued]
				}
				metrics.SpeechQueueDepth.Set(float64(len(q.items)))
				q.mu.Unlock()
				break
			}

			<-q.port.Done()
			q.mu.Lock()
			q.playing = false
			q.mu.Unlock()
		}
	}
}
