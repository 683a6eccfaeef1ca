package pose

import (
	"math"
	"sync"
	"testing"
)

const eps = 1e-9

func TestNewGridMap_RejectsBadResolution(t *testing.T) {
	if _, err := NewGridMap(GridConfig{Resolution: 0}); err == nil {
		t.Error("expected error for zero resolution")
	}
}

func TestGridToWorld(t *testing.T) {
	tests := []struct {
		name   string
		cfg    GridConfig
		gx, gy float64
		wx, wy float64
	}{
		{"identity scale", GridConfig{Resolution: 1}, 5, 7, 5, 7},
		{"scaled with origin", GridConfig{Resolution: 0.5, OriginX: -10, OriginY: 2}, 4, 6, -8, 5},
		{"rotated 90deg", GridConfig{Resolution: 1, Rotation: math.Pi / 2}, 1, 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewGridMap(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			wx, wy := m.GridToWorld(tt.gx, tt.gy)
			if math.Abs(wx-tt.wx) > eps || math.Abs(wy-tt.wy) > eps {
				t.Errorf("GridToWorld(%v,%v) = (%v,%v), want (%v,%v)", tt.gx, tt.gy, wx, wy, tt.wx, tt.wy)
			}
			gx, gy := m.WorldToGrid(wx, wy)
			if math.Abs(gx-tt.gx) > eps || math.Abs(gy-tt.gy) > eps {
				t.Errorf("WorldToGrid round trip = (%v,%v), want (%v,%v)", gx, gy, tt.gx, tt.gy)
			}
		})
	}
}

func TestPoseAndReset(t *testing.T) {
	m, err := NewGridMap(GridConfig{Resolution: 0.05, InitialX: 1, InitialY: 2, InitialYaw: 0.5})
	if err != nil {
		t.Fatal(err)
	}

	m.SetPose(3, 4, 1.25)
	if x, y := m.Coordinates(); x != 3 || y != 4 {
		t.Errorf("Coordinates() = (%v,%v)", x, y)
	}
	if m.Heading() != 1.25 {
		t.Errorf("Heading() = %v", m.Heading())
	}

	m.Reset()
	if x, y := m.Coordinates(); x != 1 || y != 2 {
		t.Errorf("after Reset Coordinates() = (%v,%v)", x, y)
	}
	if m.Heading() != 0.5 {
		t.Errorf("after Reset Heading() = %v", m.Heading())
	}
}

func TestConcurrentPoseAccess(t *testing.T) {
	m, _ := NewGridMap(DefaultGridConfig())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				m.SetPose(float64(j), float64(j), float64(i))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				x, y := m.Coordinates()
				if x != y {
					t.Errorf("torn read: x=%v y=%v", x, y)
					return
				}
			}
		}()
	}
	wg.Wait()
}
