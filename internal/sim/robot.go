// Package sim drives the telemetry engine with a synthetic robot that
// circles a fixed track, for demos and local testing without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/telemetry-gui/internal/config"
	"github.com/banshee-data/telemetry-gui/internal/monitoring"
	"github.com/banshee-data/telemetry-gui/internal/timeutil"
)

// Publisher receives rendered frames and overlays.
type Publisher interface {
	PublishImage(img image.Image)
	PublishOverlay(key string, data any) error
}

// PoseSetter receives the simulated pose.
type PoseSetter interface {
	SetPose(x, y, yaw float64)
}

// Config holds simulation settings.
type Config struct {
	Profile      string  // overlay profile: path or navgrid
	Radius       float64 // metres, radius of the circular track
	AngularSpeed float64 // radians per second
	FrameRate    float64 // frames per second
	ImageWidth   int     // pixels
	ImageHeight  int     // pixels
	PathPoints   int     // waypoints ahead of the robot
	GridSize     int     // navigation grid cells per side
	CellSize     float64 // metres per navigation grid cell
}

// DefaultConfig returns a 4m track lapped every ~21s at 15 fps.
func DefaultConfig() Config {
	return Config{
		Profile:      config.ProfilePath,
		Radius:       4.0,
		AngularSpeed: 0.3,
		FrameRate:    15,
		ImageWidth:   320,
		ImageHeight:  240,
		PathPoints:   8,
		GridSize:     20,
		CellSize:     0.5,
	}
}

// Navigation grid cell values.
const (
	CellFree     = 0
	CellTrack    = 1
	CellObstacle = 2
	CellRobot    = 3
)

// ErrInvalidFrameRate is returned by Run when FrameRate is not positive.
var ErrInvalidFrameRate = errors.New("sim: frame rate must be positive")

// Robot is a synthetic robot moving counter-clockwise around a circle
// centred on the world origin.
type Robot struct {
	cfg     Config
	pose    PoseSetter
	clock   timeutil.Clock
	start   time.Time
	frameID atomic.Uint64
}

// NewRobot creates a robot that reports its pose to pose.
func NewRobot(cfg Config, pose PoseSetter, clock timeutil.Clock) *Robot {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Robot{cfg: cfg, pose: pose, clock: clock, start: clock.Now()}
}

// PoseAt returns the pose after elapsed time on the track.
func (r *Robot) PoseAt(elapsed time.Duration) (x, y, yaw float64) {
	theta := r.cfg.AngularSpeed * elapsed.Seconds()
	x = r.cfg.Radius * math.Cos(theta)
	y = r.cfg.Radius * math.Sin(theta)
	yaw = math.Mod(theta+math.Pi/2, 2*math.Pi)
	return x, y, yaw
}

// Frames returns how many frames have been produced.
func (r *Robot) Frames() uint64 { return r.frameID.Load() }

// Step advances the simulation to the current clock time, updates the
// pose and publishes one image plus the profile's overlay.
func (r *Robot) Step(pub Publisher) error {
	frameID := r.frameID.Add(1)
	x, y, yaw := r.PoseAt(r.clock.Since(r.start))
	r.pose.SetPose(x, y, yaw)

	img, err := r.Render(x, y, yaw)
	if err != nil {
		return fmt.Errorf("render frame %d: %w", frameID, err)
	}
	pub.PublishImage(img)

	switch r.cfg.Profile {
	case config.ProfileNavGrid:
		return pub.PublishOverlay("nav", r.NavGrid(x, y))
	default:
		return pub.PublishOverlay("array", r.Path(x, y))
	}
}

// Run steps at the configured frame rate until ctx is cancelled.
func (r *Robot) Run(ctx context.Context, pub Publisher) error {
	if r.cfg.FrameRate <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidFrameRate, r.cfg.FrameRate)
	}
	interval := time.Duration(float64(time.Second) / r.cfg.FrameRate)
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	monitoring.Logf("[Sim] Robot running at %.1f fps on a %.1fm track", r.cfg.FrameRate, r.cfg.Radius)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := r.Step(pub); err != nil {
				monitoring.Logf("[Sim] Step failed: %v", err)
			}
		}
	}
}

// Path returns waypoints ahead of the robot along the track.
func (r *Robot) Path(x, y float64) [][2]float64 {
	theta := math.Atan2(y, x)
	points := make([][2]float64, r.cfg.PathPoints)
	for i := range points {
		a := theta + float64(i+1)*0.15
		points[i] = [2]float64{
			round3(r.cfg.Radius * math.Cos(a)),
			round3(r.cfg.Radius * math.Sin(a)),
		}
	}
	return points
}

// NavGrid returns a square grid centred on the origin marking the track,
// a fixed obstacle at the centre and the robot's cell.
func (r *Robot) NavGrid(x, y float64) *mat.Dense {
	n := r.cfg.GridSize
	grid := mat.NewDense(n, n, nil)
	half := float64(n) / 2
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cx := (float64(col) - half + 0.5) * r.cfg.CellSize
			cy := (half - float64(row) - 0.5) * r.cfg.CellSize
			d := math.Hypot(cx, cy)
			switch {
			case d < r.cfg.CellSize:
				grid.Set(row, col, CellObstacle)
			case math.Abs(d-r.cfg.Radius) < r.cfg.CellSize/2:
				grid.Set(row, col, CellTrack)
			}
		}
	}
	if row, col, ok := r.cell(x, y); ok {
		grid.Set(row, col, CellRobot)
	}
	return grid
}

func (r *Robot) cell(x, y float64) (int, int, bool) {
	n := r.cfg.GridSize
	half := float64(n) / 2
	col := int(math.Floor(x/r.cfg.CellSize + half))
	row := int(math.Floor(half - y/r.cfg.CellSize))
	if row < 0 || row >= n || col < 0 || col >= n {
		return 0, 0, false
	}
	return row, col, true
}

// Render draws a top-down view of the track with the robot and its
// heading.
func (r *Robot) Render(x, y, yaw float64) (image.Image, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("frame %d", r.frameID.Load())
	extent := r.cfg.Radius + 1
	p.X.Min, p.X.Max = -extent, extent
	p.Y.Min, p.Y.Max = -extent, extent
	p.BackgroundColor = color.RGBA{R: 24, G: 24, B: 24, A: 255}

	track := make(plotter.XYs, 0, 73)
	for i := 0; i <= 72; i++ {
		a := float64(i) * 2 * math.Pi / 72
		track = append(track, plotter.XY{X: r.cfg.Radius * math.Cos(a), Y: r.cfg.Radius * math.Sin(a)})
	}
	trackLine, err := plotter.NewLine(track)
	if err != nil {
		return nil, err
	}
	trackLine.Color = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	trackLine.Width = vg.Points(1)

	heading, err := plotter.NewLine(plotter.XYs{
		{X: x, Y: y},
		{X: x + 0.8*math.Cos(yaw), Y: y + 0.8*math.Sin(yaw)},
	})
	if err != nil {
		return nil, err
	}
	heading.Color = color.RGBA{R: 255, G: 200, B: 0, A: 255}
	heading.Width = vg.Points(2)

	robot, err := plotter.NewScatter(plotter.XYs{{X: x, Y: y}})
	if err != nil {
		return nil, err
	}
	robot.Color = color.RGBA{R: 0, G: 200, B: 255, A: 255}
	robot.Radius = vg.Points(5)

	p.Add(trackLine, heading, robot)

	// At 72 DPI one point is one pixel.
	canvas := vgimg.NewWith(
		vgimg.UseWH(vg.Length(r.cfg.ImageWidth), vg.Length(r.cfg.ImageHeight)),
		vgimg.UseDPI(72),
	)
	p.Draw(draw.New(canvas))
	return canvas.Image(), nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
