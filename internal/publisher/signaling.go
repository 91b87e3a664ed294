package publisher

import (
	"context"
	"errors"
	"sync"

	"github.com/evisio/enrolld/internal/log"
	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned by Send after the signaling channel closed.
var ErrChannelClosed = errors.New("signaling channel closed")

// wsSignaler is the gorilla/websocket implementation of Signaler.
type wsSignaler struct {
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	open   bool
	closed bool

	inbox chan Message
	done  chan struct{}
}

// NewWebsocketSignaler creates a Signaler that dials the given ws:// URL.
func NewWebsocketSignaler(url string) Signaler {
	return &wsSignaler{
		url:   url,
		inbox: make(chan Message, 16),
		done:  make(chan struct{}),
	}
}

func (s *wsSignaler) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrChannelClosed
	}
	s.conn = conn
	s.open = true
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

func (s *wsSignaler) readLoop(conn *websocket.Conn) {
	logger := log.WithComponent("signaling")
	defer close(s.inbox)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			wasOpen := s.open
			s.open = false
			s.mu.Unlock()
			if wasOpen {
				logger.Debug().Err(err).Msg("signaling read ended")
			}
			return
		}
		select {
		case s.inbox <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *wsSignaler) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.conn == nil {
		return ErrChannelClosed
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSignaler) Messages() <-chan Message {
	return s.inbox
}

func (s *wsSignaler) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *wsSignaler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.open = false
	conn := s.conn
	s.conn = nil
	close(s.done)
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
