// Package viewer implements the persistent channel to the single remote
// viewer: a WebSocket listener that tracks at most one peer, delivers its
// inbound text frames to a handler, and pushes outbound text frames.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/telemetry-gui/internal/fsutil"
	"github.com/banshee-data/telemetry-gui/internal/monitoring"
)

var (
	// ErrNoPeer is returned by Send when no viewer is attached.
	ErrNoPeer = errors.New("viewer: no peer attached")
	// ErrServerRunning is returned by Start on a running server.
	ErrServerRunning = errors.New("viewer: server already running")
)

// Config holds configuration for the viewer channel.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "0.0.0.0:2303")
	ListenAddr string

	// ReadyMarker is the readiness marker path; empty disables the marker.
	ReadyMarker string
	// ReadyRetry is the delay between marker write attempts.
	ReadyRetry time.Duration
	// FS is the filesystem the marker is written to (defaults to the OS).
	FS fsutil.FileSystem

	// HealthAddr enables a gRPC health endpoint when non-empty.
	HealthAddr string

	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "0.0.0.0:2303",
		ReadyMarker:  "~/ws_gui.log",
		ReadyRetry:   100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// ConnectHandler is called when a viewer attaches.
type ConnectHandler func(s *Session)

// MessageHandler is called for each inbound text frame.
type MessageHandler func(s *Session, text string)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the viewer channel. The tracked peer is held in an atomic
// pointer; a new connection replaces it without closing the previous socket.
type Server struct {
	config Config
	mux    *http.ServeMux
	http   *http.Server

	listener net.Listener
	marker   *ReadinessMarker
	health   *HealthServer

	onConnect ConnectHandler
	onMessage MessageHandler

	current atomic.Pointer[Session]

	// attached is closed and replaced every time a peer attaches.
	attachMu sync.Mutex
	attached chan struct{}

	// live holds every open connection so Stop can close them.
	liveMu sync.Mutex
	live   map[*Session]struct{}

	connects atomic.Uint64
	sent     atomic.Uint64
	noPeer   atomic.Uint64

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg Config) *Server {
	s := &Server{
		config:   cfg,
		mux:      http.NewServeMux(),
		attached: make(chan struct{}),
		live:     make(map[*Session]struct{}),
	}
	s.mux.HandleFunc("/", s.handleWebSocket)
	return s
}

// OnConnect registers the connect handler. Call before Start.
func (s *Server) OnConnect(h ConnectHandler) { s.onConnect = h }

// OnMessage registers the inbound message handler. Call before Start.
func (s *Server) OnMessage(h MessageHandler) { s.onMessage = h }

// Mux returns the HTTP mux serving the WebSocket endpoint so callers can
// attach debug routes before Start.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Start binds the listener, serves in the background and then signals
// readiness.
func (s *Server) Start() error {
	if s.running.Load() {
		return ErrServerRunning
	}

	monitoring.Logf("[Viewer] Attempting to bind to %s...", s.config.ListenAddr)
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	s.http = &http.Server{Handler: s.mux}

	if s.config.HealthAddr != "" {
		s.health = NewHealthServer(s.config.HealthAddr)
		if err := s.health.Start(); err != nil {
			lis.Close()
			return err
		}
	}

	if s.config.ReadyMarker != "" {
		marker, err := NewReadinessMarker(s.config.FS, s.config.ReadyMarker, s.config.ReadyRetry)
		if err != nil {
			lis.Close()
			if s.health != nil {
				s.health.Stop()
			}
			return fmt.Errorf("invalid readiness marker path: %w", err)
		}
		s.marker = marker
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("[Viewer] WebSocket channel listening on %s", lis.Addr())
		if err := s.http.Serve(lis); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("[Viewer] Server error: %v", err)
		}
	}()

	if s.health != nil {
		s.health.SetServing(true)
	}
	if s.marker != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.marker.MarkReady(ctx)
		}()
	}

	return nil
}

// Stop closes the listener, every open connection and the health endpoint,
// and removes the readiness marker.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[Viewer] Shutdown error: %v", err)
		s.http.Close()
	}

	// Hijacked WebSocket connections are not closed by Shutdown.
	s.liveMu.Lock()
	for sess := range s.live {
		sess.close()
	}
	s.liveMu.Unlock()
	s.current.Store(nil)

	if s.health != nil {
		s.health.Stop()
	}
	s.wg.Wait()
	if s.marker != nil {
		s.marker.Clear()
	}
	monitoring.Logf("[Viewer] Channel stopped")
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HealthAddr returns the gRPC health listener address, or nil if disabled.
func (s *Server) HealthAddr() net.Addr {
	if s.health == nil {
		return nil
	}
	return s.health.Addr()
}

// MarkerPath returns the expanded readiness marker path, or "" if disabled.
func (s *Server) MarkerPath() string {
	if s.marker == nil {
		return ""
	}
	return s.marker.Path()
}

// Connected reports whether a viewer is currently tracked.
func (s *Server) Connected() bool {
	return s.current.Load() != nil
}

// Current returns the tracked session, or nil.
func (s *Server) Current() *Session {
	return s.current.Load()
}

// WaitForViewer blocks until a viewer is attached or ctx ends.
func (s *Server) WaitForViewer(ctx context.Context) (*Session, error) {
	for {
		s.attachMu.Lock()
		wait := s.attached
		s.attachMu.Unlock()

		if sess := s.current.Load(); sess != nil && !sess.Ended() {
			return sess, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Send pushes one text frame to the tracked viewer. Without a viewer the
// frame is dropped and ErrNoPeer returned; callers log, never abort.
func (s *Server) Send(text string) error {
	sess := s.current.Load()
	if sess == nil {
		s.noPeer.Add(1)
		monitoring.Debugf("[Viewer] Dropping frame (%d bytes): no peer attached", len(text))
		return ErrNoPeer
	}
	if err := sess.writeText(text, s.config.WriteTimeout); err != nil {
		monitoring.Logf("[Viewer] Send to %s failed: %v", sess.ID(), err)
		return err
	}
	s.sent.Add(1)
	return nil
}

// Stats returns channel counters.
func (s *Server) Stats() ChannelStats {
	stats := ChannelStats{
		Connects:     s.connects.Load(),
		FramesSent:   s.sent.Load(),
		NoPeerDrops:  s.noPeer.Load(),
		Running:      s.running.Load(),
		ViewerActive: s.Connected(),
	}
	if sess := s.current.Load(); sess != nil {
		stats.PeerID = sess.ID()
		stats.PeerAddr = sess.RemoteAddr()
		stats.PeerSince = sess.Started()
	}
	return stats
}

// ChannelStats contains channel statistics.
type ChannelStats struct {
	Connects     uint64    `json:"connects"`
	FramesSent   uint64    `json:"frames_sent"`
	NoPeerDrops  uint64    `json:"no_peer_drops"`
	Running      bool      `json:"running"`
	ViewerActive bool      `json:"viewer_active"`
	PeerID       string    `json:"peer_id,omitempty"`
	PeerAddr     string    `json:"peer_addr,omitempty"`
	PeerSince    time.Time `json:"peer_since,omitzero"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[Viewer] Failed to upgrade WebSocket from %s: %v", r.RemoteAddr, err)
		return
	}

	// Disable Nagle's algorithm for lower latency
	if tcpConn, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sess := NewSession(conn)
	s.attach(sess)
	s.readLoop(sess)
}

// attach makes sess the tracked peer. The previous peer, if any, is left
// open; its reads still reach the message handler until it disconnects.
func (s *Server) attach(sess *Session) {
	s.liveMu.Lock()
	s.live[sess] = struct{}{}
	s.liveMu.Unlock()

	prev := s.current.Swap(sess)
	n := s.connects.Add(1)
	if prev != nil {
		prev.detach()
		monitoring.Logf("[Viewer] Viewer %s replaces %s (connects: %d)", sess.ID(), prev.ID(), n)
	} else {
		monitoring.Logf("[Viewer] Viewer connected: %s from %s (connects: %d)", sess.ID(), sess.RemoteAddr(), n)
	}

	if s.onConnect != nil {
		s.onConnect(sess)
	}

	s.attachMu.Lock()
	close(s.attached)
	s.attached = make(chan struct{})
	s.attachMu.Unlock()
}

func (s *Server) readLoop(sess *Session) {
	defer s.detach(sess)

	for {
		msgType, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				monitoring.Logf("[Viewer] WebSocket error for %s: %v", sess.ID(), err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if s.onMessage != nil {
			s.onMessage(sess, string(message))
		}
	}
}

func (s *Server) detach(sess *Session) {
	sess.close()

	s.liveMu.Lock()
	delete(s.live, sess)
	s.liveMu.Unlock()

	if s.current.CompareAndSwap(sess, nil) {
		monitoring.Logf("[Viewer] Viewer disconnected: %s", sess.ID())
	}
}
