// Package pose provides the reference pose/map collaborator consumed by the
// telemetry engine: the robot's current position and heading, and the
// transform between occupancy-grid cells and world coordinates.
package pose

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// GridConfig describes how grid cells map onto the world frame.
type GridConfig struct {
	// Resolution is the cell size in metres.
	Resolution float64
	// OriginX, OriginY are the world coordinates of cell (0, 0).
	OriginX, OriginY float64
	// Rotation is the grid's rotation relative to the world frame, radians.
	Rotation float64

	// Initial pose restored by Reset.
	InitialX, InitialY, InitialYaw float64
}

// DefaultGridConfig returns a 5cm grid anchored at the world origin.
func DefaultGridConfig() GridConfig {
	return GridConfig{Resolution: 0.05}
}

// GridMap tracks the latest pose and converts grid picks to world targets.
// All methods are safe for concurrent use.
type GridMap struct {
	cfg GridConfig

	toWorld *mat.Dense // 3x3 affine, grid -> world
	toGrid  *mat.Dense // inverse

	mu  sync.RWMutex
	x   float64
	y   float64
	yaw float64
}

// NewGridMap builds the affine transforms for cfg.
func NewGridMap(cfg GridConfig) (*GridMap, error) {
	if cfg.Resolution <= 0 {
		return nil, fmt.Errorf("grid resolution must be positive, got %f", cfg.Resolution)
	}

	c, s := math.Cos(cfg.Rotation), math.Sin(cfg.Rotation)
	r := cfg.Resolution
	toWorld := mat.NewDense(3, 3, []float64{
		r * c, -r * s, cfg.OriginX,
		r * s, r * c, cfg.OriginY,
		0, 0, 1,
	})

	var toGrid mat.Dense
	if err := toGrid.Inverse(toWorld); err != nil {
		return nil, fmt.Errorf("grid transform not invertible: %w", err)
	}

	return &GridMap{
		cfg:     cfg,
		toWorld: toWorld,
		toGrid:  &toGrid,
		x:       cfg.InitialX,
		y:       cfg.InitialY,
		yaw:     cfg.InitialYaw,
	}, nil
}

// SetPose records the latest odometry reading.
func (m *GridMap) SetPose(x, y, yaw float64) {
	m.mu.Lock()
	m.x, m.y, m.yaw = x, y, yaw
	m.mu.Unlock()
}

// Coordinates returns the current position in world coordinates.
func (m *GridMap) Coordinates() (float64, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.x, m.y
}

// Heading returns the current yaw in radians.
func (m *GridMap) Heading() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.yaw
}

// GridToWorld converts a grid cell to world coordinates.
func (m *GridMap) GridToWorld(gx, gy float64) (float64, float64) {
	return apply(m.toWorld, gx, gy)
}

// WorldToGrid converts world coordinates to (fractional) grid cells.
func (m *GridMap) WorldToGrid(wx, wy float64) (float64, float64) {
	return apply(m.toGrid, wx, wy)
}

// Reset restores the initial pose.
func (m *GridMap) Reset() {
	m.SetPose(m.cfg.InitialX, m.cfg.InitialY, m.cfg.InitialYaw)
}

func apply(t *mat.Dense, a, b float64) (float64, float64) {
	in := mat.NewVecDense(3, []float64{a, b, 1})
	var out mat.VecDense
	out.MulVec(t, in)
	return out.AtVec(0), out.AtVec(1)
}
