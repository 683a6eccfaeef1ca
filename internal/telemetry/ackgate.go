package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrViewerGone is returned when the viewer disconnects while a frame
	// is awaiting acknowledgement.
	ErrViewerGone = errors.New("telemetry: viewer disconnected")

	// ErrAckTimeout is returned when an acknowledgement did not arrive
	// within the configured bound.
	ErrAckTimeout = errors.New("telemetry: acknowledgement timed out")
)

// AckGate is a single boolean shared between the inbound dispatcher, which
// sets it on "#ack", and the pacer, which waits on it and clears it before
// the next send. Waiters are woken through a one-slot notification channel
// rather than polling.
type AckGate struct {
	mu     sync.Mutex
	ack    bool
	notify chan struct{}
}

// NewAckGate returns a gate in the cleared state.
func NewAckGate() *AckGate {
	return &AckGate{notify: make(chan struct{}, 1)}
}

// SetAck sets the flag. Setting true when already true is a no-op.
func (g *AckGate) SetAck(v bool) {
	g.mu.Lock()
	g.ack = v
	g.mu.Unlock()
	if v {
		select {
		case g.notify <- struct{}{}:
		default:
		}
	}
}

// GetAck reports the current flag value.
func (g *AckGate) GetAck() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ack
}

// Reset clears the flag and drains any pending notification.
func (g *AckGate) Reset() {
	g.mu.Lock()
	g.ack = false
	g.mu.Unlock()
	select {
	case <-g.notify:
	default:
	}
}

// consume clears the flag if it is set and reports whether it was.
func (g *AckGate) consume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ack {
		return false
	}
	g.ack = false
	return true
}

// WaitForAck blocks until the flag is set, then clears it. It returns
// ErrViewerGone if gone closes first, ErrAckTimeout if timeout is positive
// and elapses first, or ctx.Err() on cancellation. A zero timeout waits
// without bound.
func (g *AckGate) WaitForAck(ctx context.Context, gone <-chan struct{}, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if g.consume() {
			return nil
		}
		select {
		case <-g.notify:
		case <-gone:
			if g.consume() {
				return nil
			}
			return ErrViewerGone
		case <-expired:
			if g.consume() {
				return nil
			}
			return ErrAckTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
