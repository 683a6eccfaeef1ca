package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckGate_SetIsIdempotent(t *testing.T) {
	g := NewAckGate()
	assert.False(t, g.GetAck())

	g.SetAck(true)
	g.SetAck(true)
	assert.True(t, g.GetAck())

	require.NoError(t, g.WaitForAck(context.Background(), nil, 0))
	assert.False(t, g.GetAck(), "wait should consume the ack")
}

func TestAckGate_WaitBlocksUntilSet(t *testing.T) {
	g := NewAckGate()
	done := make(chan error, 1)
	go func() { done <- g.WaitForAck(context.Background(), nil, 0) }()

	select {
	case err := <-done:
		t.Fatalf("WaitForAck returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	g.SetAck(true)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForAck did not wake after SetAck")
	}
}

func TestAckGate_ViewerGone(t *testing.T) {
	g := NewAckGate()
	gone := make(chan struct{})
	close(gone)

	err := g.WaitForAck(context.Background(), gone, 0)
	assert.ErrorIs(t, err, ErrViewerGone)
}

func TestAckGate_Timeout(t *testing.T) {
	g := NewAckGate()
	start := time.Now()
	err := g.WaitForAck(context.Background(), nil, 15*time.Millisecond)
	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestAckGate_Cancelled(t *testing.T) {
	g := NewAckGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.WaitForAck(ctx, nil, 0), context.Canceled)
}

func TestAckGate_ResetDropsStaleAck(t *testing.T) {
	g := NewAckGate()
	g.SetAck(true)
	g.Reset()
	assert.False(t, g.GetAck())

	err := g.WaitForAck(context.Background(), nil, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrAckTimeout, "a reset gate must not pass a stale ack")
}

func TestAckGate_SetFalse(t *testing.T) {
	g := NewAckGate()
	g.SetAck(true)
	g.SetAck(false)
	assert.False(t, g.GetAck())
	assert.ErrorIs(t, g.WaitForAck(context.Background(), nil, 10*time.Millisecond), ErrAckTimeout)
}
