package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/banshee-data/telemetry-gui/internal/monitoring"
	"github.com/banshee-data/telemetry-gui/internal/timeutil"
	"github.com/banshee-data/telemetry-gui/internal/viewer"
)

// PacerState is the position of the pacer in its send cycle.
type PacerState int32

const (
	StateWaitForViewer PacerState = iota
	StateSend
	StateAwaitAck
	StateThrottle
)

func (s PacerState) String() string {
	switch s {
	case StateWaitForViewer:
		return "wait_for_viewer"
	case StateSend:
		return "send"
	case StateAwaitAck:
		return "await_ack"
	case StateThrottle:
		return "throttle"
	default:
		return "unknown"
	}
}

// Channel is the outbound side of the viewer connection.
type Channel interface {
	WaitForViewer(ctx context.Context) (*viewer.Session, error)
	Send(text string) error
}

// PacerStats holds pacer counters.
type PacerStats struct {
	State       string `json:"state"`
	Sent        uint64 `json:"sent"`
	Acked       uint64 `json:"acked"`
	NotReady    uint64 `json:"not_ready"`
	SendErrors  uint64 `json:"send_errors"`
	AckTimeouts uint64 `json:"ack_timeouts"`
	ViewerLost  uint64 `json:"viewer_lost"`
}

// Pacer drives the send cycle: wait for a viewer, compose and send one
// frame, wait for its acknowledgement, then sleep out the rest of the
// target period. At most one frame is ever unacknowledged.
type Pacer struct {
	channel    Channel
	source     FrameSource
	gate       *AckGate
	stats      *CycleStats
	clock      timeutil.Clock
	period     time.Duration
	ackTimeout time.Duration

	state       atomic.Int32
	sent        atomic.Uint64
	notReady    atomic.Uint64
	sendErrors  atomic.Uint64
	ackTimeouts atomic.Uint64
	viewerLost  atomic.Uint64
}

// NewPacer wires a pacer. A zero ackTimeout waits for acknowledgements
// without bound.
func NewPacer(channel Channel, source FrameSource, gate *AckGate, stats *CycleStats, clock timeutil.Clock, period, ackTimeout time.Duration) *Pacer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pacer{
		channel:    channel,
		source:     source,
		gate:       gate,
		stats:      stats,
		clock:      clock,
		period:     period,
		ackTimeout: ackTimeout,
	}
}

// State returns the current cycle state.
func (p *Pacer) State() PacerState {
	return PacerState(p.state.Load())
}

func (p *Pacer) setState(s PacerState) {
	p.state.Store(int32(s))
}

// Stats returns a snapshot of the pacer counters.
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		State:       p.State().String(),
		Sent:        p.sent.Load(),
		Acked:       p.stats.Total(),
		NotReady:    p.notReady.Load(),
		SendErrors:  p.sendErrors.Load(),
		AckTimeouts: p.ackTimeouts.Load(),
		ViewerLost:  p.viewerLost.Load(),
	}
}

// Run executes the cycle until ctx is cancelled. When the viewer goes away
// the pacer returns to waiting for the next one.
func (p *Pacer) Run(ctx context.Context) error {
	for {
		p.setState(StateWaitForViewer)
		sess, err := p.channel.WaitForViewer(ctx)
		if err != nil {
			return err
		}
		monitoring.Logf("[Pacer] Viewer %s attached, streaming at %v", sess.ID(), p.period)
		p.gate.Reset()

		if err := p.serve(ctx, sess); err != nil {
			return err
		}
		p.viewerLost.Add(1)
		monitoring.Logf("[Pacer] Viewer %s gone, waiting for next viewer", sess.ID())
	}
}

// serve runs cycles for one session. It returns nil once the session ends
// or is replaced, and ctx.Err() on cancellation.
func (p *Pacer) serve(ctx context.Context, sess *viewer.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Detached():
			return nil
		default:
		}

		p.setState(StateSend)
		start := p.clock.Now()
		if !p.send() {
			if err := p.sleep(ctx, p.period); err != nil {
				return err
			}
			continue
		}

		p.setState(StateAwaitAck)
		err := p.gate.WaitForAck(ctx, sess.Detached(), p.ackTimeout)
		switch {
		case err == nil:
			p.stats.RecordFrame(p.clock.Since(start))
		case errors.Is(err, ErrAckTimeout):
			p.ackTimeouts.Add(1)
			p.gate.Reset()
			monitoring.Logf("[Pacer] No acknowledgement within %v, dropping frame", p.ackTimeout)
		case errors.Is(err, ErrViewerGone):
			return nil
		default:
			return err
		}

		p.setState(StateThrottle)
		if remaining := p.period - p.clock.Since(start); remaining > 0 {
			if err := p.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
}

// send composes and transmits one frame, reporting whether an
// acknowledgement should be awaited.
func (p *Pacer) send() bool {
	frame, err := p.source.Compose()
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			p.notReady.Add(1)
			monitoring.Debugf("[Pacer] Nothing to send yet")
		} else {
			monitoring.Logf("[Pacer] Compose failed: %v", err)
		}
		return false
	}

	text, err := frame.Encode()
	if err != nil {
		monitoring.Logf("[Pacer] Encode failed: %v", err)
		return false
	}

	// Acks for earlier frames must not release this one.
	p.gate.Reset()
	if err := p.channel.Send(text); err != nil {
		p.sendErrors.Add(1)
		return false
	}
	p.sent.Add(1)
	return true
}

func (p *Pacer) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-p.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
