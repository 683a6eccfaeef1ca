package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/telemetry-gui/internal/timeutil"
	"github.com/banshee-data/telemetry-gui/internal/viewer"
)

// fakePose is a PoseMap with a fixed pose and a linear grid mapping.
type fakePose struct {
	mu      sync.Mutex
	x, y    float64
	yaw     float64
	resets  int
	lookups [][2]float64

	// clock, when set, is advanced by step on every Coordinates call to
	// simulate producer work inside a cycle.
	clock *timeutil.MockClock
	step  time.Duration
}

func (p *fakePose) Coordinates() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clock != nil {
		p.clock.Advance(p.step)
	}
	return p.x, p.y
}

func (p *fakePose) Heading() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.yaw
}

func (p *fakePose) GridToWorld(gx, gy float64) (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups = append(p.lookups, [2]float64{gx, gy})
	return gx * 0.05, gy * 0.05
}

func (p *fakePose) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.x, p.y, p.yaw = 0, 0, 0
}

// fakeChannel hands out queued sessions and records every send.
type fakeChannel struct {
	sessions chan *viewer.Session
	sent     chan string
	onSend   func(text string)
	sendErr  error

	mu     sync.Mutex
	frames []string

	outstanding atomic.Int32
	overlap     atomic.Bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		sessions: make(chan *viewer.Session, 4),
		sent:     make(chan string, 256),
	}
}

func (c *fakeChannel) WaitForViewer(ctx context.Context) (*viewer.Session, error) {
	select {
	case s := <-c.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeChannel) Send(text string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.outstanding.Add(1) > 1 {
		c.overlap.Store(true)
	}
	c.mu.Lock()
	c.frames = append(c.frames, text)
	c.mu.Unlock()
	if c.onSend != nil {
		c.onSend(text)
	}
	select {
	case c.sent <- text:
	default:
	}
	return nil
}

// acked marks the outstanding frame as acknowledged by the viewer.
func (c *fakeChannel) acked() {
	c.outstanding.Add(-1)
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// stubSource returns a fixed frame or error from Compose.
type stubSource struct {
	err   error
	calls atomic.Int32
	hook  func(n int32)
}

func (s *stubSource) Compose() (*Frame, error) {
	n := s.calls.Add(1)
	if s.hook != nil {
		s.hook(n)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Frame{Map: []float64{0, 0, 0}}, nil
}
