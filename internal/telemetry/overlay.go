package telemetry

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnsupportedOverlay is returned when an overlay is published with a
	// value of the wrong type.
	ErrUnsupportedOverlay = errors.New("telemetry: unsupported overlay data")

	// ErrUnknownOverlay is returned when no producer owns the overlay key.
	ErrUnknownOverlay = errors.New("telemetry: unknown overlay key")
)

// OverlayProducer owns one optional key of the outbound payload. Publish
// replaces the held value; Overlay returns the encoded string, or false
// when nothing has been published yet and the key must encode as null.
type OverlayProducer interface {
	Key() string
	Publish(data any) error
	Overlay() (string, bool)
	Clear()
}

// PathOverlay carries planned waypoints under the "array" key.
type PathOverlay struct {
	slot Slot[string]
}

// NewPathOverlay returns an empty path overlay.
func NewPathOverlay() *PathOverlay { return &PathOverlay{} }

func (p *PathOverlay) Key() string { return KeyPath }

// PublishPath replaces the current path.
func (p *PathOverlay) PublishPath(points [][2]float64) {
	p.slot.Store(FormatPath(points))
}

// Publish accepts [][2]float64 or [][]float64 with two values per point.
func (p *PathOverlay) Publish(data any) error {
	switch v := data.(type) {
	case [][2]float64:
		p.PublishPath(v)
	case [][]float64:
		points := make([][2]float64, len(v))
		for i, pt := range v {
			if len(pt) != 2 {
				return fmt.Errorf("%w: path point %d has %d values", ErrUnsupportedOverlay, i, len(pt))
			}
			points[i] = [2]float64{pt[0], pt[1]}
		}
		p.PublishPath(points)
	default:
		return fmt.Errorf("%w: path from %T", ErrUnsupportedOverlay, data)
	}
	return nil
}

func (p *PathOverlay) Overlay() (string, bool) {
	s, _, ok := p.slot.Load()
	return s, ok
}

func (p *PathOverlay) Clear() { p.slot.Clear() }

// NavGridOverlay carries a colour-coded navigation grid under the "nav" key.
type NavGridOverlay struct {
	slot Slot[string]
}

// NewNavGridOverlay returns an empty grid overlay.
func NewNavGridOverlay() *NavGridOverlay { return &NavGridOverlay{} }

func (g *NavGridOverlay) Key() string { return KeyNav }

// PublishGrid replaces the current grid.
func (g *NavGridOverlay) PublishGrid(m mat.Matrix) {
	g.slot.Store(FormatGrid(m))
}

// Publish accepts a mat.Matrix or a rectangular [][]int.
func (g *NavGridOverlay) Publish(data any) error {
	switch v := data.(type) {
	case mat.Matrix:
		g.PublishGrid(v)
	case [][]int:
		if len(v) == 0 || len(v[0]) == 0 {
			g.slot.Store("[]")
			return nil
		}
		cols := len(v[0])
		cells := make([]float64, 0, len(v)*cols)
		for r, row := range v {
			if len(row) != cols {
				return fmt.Errorf("%w: grid row %d has %d cells, want %d", ErrUnsupportedOverlay, r, len(row), cols)
			}
			for _, c := range row {
				cells = append(cells, float64(c))
			}
		}
		g.PublishGrid(mat.NewDense(len(v), cols, cells))
	default:
		return fmt.Errorf("%w: grid from %T", ErrUnsupportedOverlay, data)
	}
	return nil
}

func (g *NavGridOverlay) Overlay() (string, bool) {
	s, _, ok := g.slot.Load()
	return s, ok
}

func (g *NavGridOverlay) Clear() { g.slot.Clear() }
