package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPathOverlay_Publish(t *testing.T) {
	p := NewPathOverlay()
	assert.Equal(t, KeyPath, p.Key())
	_, ok := p.Overlay()
	assert.False(t, ok)

	require.NoError(t, p.Publish([][2]float64{{0, 0}, {1.5, 2}}))
	s, ok := p.Overlay()
	require.True(t, ok)
	assert.Equal(t, "[[0.0, 0.0],[1.5, 2.0]]", s)

	require.NoError(t, p.Publish([][]float64{{3, 4}}))
	s, _ = p.Overlay()
	assert.Equal(t, "[[3.0, 4.0]]", s)

	assert.ErrorIs(t, p.Publish([][]float64{{1, 2, 3}}), ErrUnsupportedOverlay)
	assert.ErrorIs(t, p.Publish("nope"), ErrUnsupportedOverlay)
	s, _ = p.Overlay()
	assert.Equal(t, "[[3.0, 4.0]]", s, "rejected publish leaves the value unchanged")

	p.Clear()
	_, ok = p.Overlay()
	assert.False(t, ok)
}

func TestNavGridOverlay_Publish(t *testing.T) {
	g := NewNavGridOverlay()
	assert.Equal(t, KeyNav, g.Key())

	require.NoError(t, g.Publish([][]int{{0, 1}, {2, 3}}))
	s, ok := g.Overlay()
	require.True(t, ok)
	assert.Equal(t, "[[0, 1], [2, 3]]", s)

	require.NoError(t, g.Publish(mat.NewDense(1, 2, []float64{4, 5})))
	s, _ = g.Overlay()
	assert.Equal(t, "[[4, 5]]", s)

	require.NoError(t, g.Publish([][]int{}))
	s, _ = g.Overlay()
	assert.Equal(t, "[]", s)

	assert.ErrorIs(t, g.Publish([][]int{{1, 2}, {3}}), ErrUnsupportedOverlay)
	assert.ErrorIs(t, g.Publish(42), ErrUnsupportedOverlay)
}
