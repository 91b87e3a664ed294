package api

import (
	"context"
	"fmt"

	"github.com/evisio/enrolld/internal/publisher"
	"github.com/evisio/enrolld/internal/recog"
)

// RecognitionChecker probes the recognition service with a status call.
type RecognitionChecker struct {
	Client *recog.Client
}

func (c RecognitionChecker) Name() string { return "recognition" }

func (c RecognitionChecker) Check(ctx context.Context) error {
	if _, err := c.Client.SessionStatus(ctx); err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	return nil
}

// PublisherChecker reports the camera publisher state. An inactive
// publisher is not a failure; only readiness detail.
type PublisherChecker struct {
	Publisher *publisher.Publisher
}

func (c PublisherChecker) Name() string { return "publisher" }

func (c PublisherChecker) Check(ctx context.Context) error {
	// The publisher is demand-started with each enrollment; its mere
	// existence means wiring succeeded.
	if c.Publisher == nil {
		return fmt.Errorf("not configured")
	}
	return nil
}
