package viewer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is one physical viewer connection. Its identity is opaque; the
// engine only cares whether it is still the tracked peer and whether it has
// gone away.
type Session struct {
	id        uuid.UUID
	remote    string
	conn      *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	started   time.Time

	detached   chan struct{}
	detachOnce sync.Once
}

// NewSession wraps conn in a Session. conn may be nil for sessions that never
// write (tests, replays).
func NewSession(conn *websocket.Conn) *Session {
	s := &Session{
		id:       uuid.New(),
		conn:     conn,
		done:     make(chan struct{}),
		detached: make(chan struct{}),
		started:  time.Now(),
	}
	if conn != nil {
		s.remote = conn.RemoteAddr().String()
	}
	return s
}

// ID returns the opaque peer identity.
func (s *Session) ID() string { return s.id.String() }

// RemoteAddr returns the peer's network address, if known.
func (s *Session) RemoteAddr() string { return s.remote }

// Started returns when the connection was accepted.
func (s *Session) Started() time.Time { return s.started }

// Done is closed once the connection has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Detached is closed once the session is no longer the tracked peer,
// either because it ended or because a newer viewer replaced it.
func (s *Session) Detached() <-chan struct{} { return s.detached }

// End marks the session finished. Safe to call more than once.
func (s *Session) End() {
	s.closeOnce.Do(func() { close(s.done) })
	s.detach()
}

func (s *Session) detach() {
	s.detachOnce.Do(func() { close(s.detached) })
}

// Ended reports whether End has been called.
func (s *Session) Ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) writeText(text string, timeout time.Duration) error {
	if s.conn == nil {
		return ErrNoPeer
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if timeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *Session) close() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.End()
}
