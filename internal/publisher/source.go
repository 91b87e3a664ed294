package publisher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v3/pkg/media/h264reader"
)

// H264Source reads Annex-B H264 from a file or named pipe, typically fed by
// an external capture process that also enforces the bounded resolution.
type H264Source struct {
	path string
	fps  int

	mu     sync.Mutex
	file   *os.File
	reader *h264reader.H264Reader
}

// NewH264Source creates a source for the given path at the given frame rate.
func NewH264Source(path string, fps int) *H264Source {
	if fps <= 0 {
		fps = 15
	}
	return &H264Source{path: path, fps: fps}
}

func (s *H264Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return fmt.Errorf("source already open")
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open capture source %s: %w", s.path, err)
	}
	r, err := h264reader.NewReader(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("h264 reader: %w", err)
	}
	s.file = f
	s.reader = r
	return nil
}

func (s *H264Source) ReadFrame(ctx context.Context) ([]byte, time.Duration, error) {
	s.mu.Lock()
	r := s.reader
	s.mu.Unlock()
	if r == nil {
		return nil, 0, fmt.Errorf("source not open")
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	nal, err := r.NextNAL()
	if err != nil {
		return nil, 0, err
	}
	return nal.Data, time.Second / time.Duration(s.fps), nil
}

func (s *H264Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = nil
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
