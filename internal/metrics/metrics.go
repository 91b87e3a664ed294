// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the enrollment agent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedReconnectTotal tracks forced reconnects of the overlay feed by cause.
	FeedReconnectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrolld_feed_reconnect_total",
		Help: "Total number of overlay feed reconnects by cause",
	}, []string{"cause"})

	// FeedRetryDelay tracks the retry delay chosen after a feed failure.
	FeedRetryDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrolld_feed_retry_delay_seconds",
		Help:    "Backoff delay scheduled after an overlay feed failure",
		Buckets: []float64{0.25, 0.5, 1, 2, 3},
	})

	// SessionPollDuration tracks the latency of session status polls.
	SessionPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrolld_session_poll_duration_seconds",
		Help:    "Latency of session status polls against the recognition service",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// TickTotal tracks auto-scan tick outcomes.
	TickTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrolld_tick_total",
		Help: "Total number of auto-scan tick requests by result",
	}, []string{"result"})

	// PublisherStateTransitions tracks camera publisher lifecycle transitions.
	PublisherStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrolld_publisher_transitions_total",
		Help: "Camera publisher lifecycle transitions by target state",
	}, []string{"state"})

	// EventsReceived tracks long-poll events delivered to subscribers.
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrolld_events_received_total",
		Help: "Total number of long-poll notification events received",
	})

	// SpeechQueueDepth tracks the number of utterances waiting for playback.
	SpeechQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enrolld_speech_queue_depth",
		Help: "Number of utterances buffered for serialized playback",
	})
)

// IncFeedReconnect records a forced feed reconnect.
func IncFeedReconnect(cause string) {
	FeedReconnectTotal.WithLabelValues(cause).Inc()
}

// ObserveFeedRetryDelay records the backoff delay scheduled after a failure.
func ObserveFeedRetryDelay(d time.Duration) {
	FeedRetryDelay.Observe(d.Seconds())
}

// ObserveSessionPoll records the latency of one status poll.
func ObserveSessionPoll(d time.Duration) {
	SessionPollDuration.Observe(d.Seconds())
}

// IncTick records an auto-scan tick outcome.
func IncTick(result string) {
	TickTotal.WithLabelValues(result).Inc()
}

// IncPublisherTransition records a publisher lifecycle transition.
func IncPublisherTransition(state string) {
	PublisherStateTransitions.WithLabelValues(state).Inc()
}
