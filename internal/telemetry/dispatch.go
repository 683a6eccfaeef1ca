package telemetry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/telemetry-gui/internal/monitoring"
	"github.com/banshee-data/telemetry-gui/internal/viewer"
)

// ErrMalformedPick is returned by ParsePick for anything other than two
// comma-separated numbers, optionally wrapped in matching brackets.
var ErrMalformedPick = errors.New("telemetry: malformed pick coordinates")

// MapSource converts grid cell coordinates to world coordinates.
type MapSource interface {
	GridToWorld(gx, gy float64) (wx, wy float64)
}

// Target is the last point the operator picked on the map.
type Target struct {
	GridX  float64   `json:"grid_x"`
	GridY  float64   `json:"grid_y"`
	WorldX float64   `json:"world_x"`
	WorldY float64   `json:"world_y"`
	At     time.Time `json:"at"`
}

// DispatchStats holds inbound message counters.
type DispatchStats struct {
	Acks     uint64 `json:"acks"`
	Picks    uint64 `json:"picks"`
	Rejected uint64 `json:"rejected"`
	Unknown  uint64 `json:"unknown"`
}

// Dispatcher routes inbound viewer messages by prefix.
type Dispatcher struct {
	gate   *AckGate
	mapper MapSource

	mu     sync.RWMutex
	target *Target

	acks     atomic.Uint64
	picks    atomic.Uint64
	rejected atomic.Uint64
	unknown  atomic.Uint64
}

// NewDispatcher creates a dispatcher feeding gate and resolving picks
// through mapper.
func NewDispatcher(gate *AckGate, mapper MapSource) *Dispatcher {
	return &Dispatcher{gate: gate, mapper: mapper}
}

// Handle adapts HandleMessage to viewer.MessageHandler.
func (d *Dispatcher) Handle(_ *viewer.Session, text string) {
	d.HandleMessage(text)
}

// HandleMessage processes one inbound text message. Unknown prefixes are
// ignored.
func (d *Dispatcher) HandleMessage(text string) {
	switch {
	case strings.HasPrefix(text, AckPrefix):
		d.acks.Add(1)
		d.gate.SetAck(true)
	case strings.HasPrefix(text, PickPrefix):
		gx, gy, err := ParsePick(strings.TrimPrefix(text, PickPrefix))
		if err != nil {
			d.rejected.Add(1)
			monitoring.Logf("[Dispatch] Ignoring pick %q: %v", text, err)
			return
		}
		wx, wy := d.mapper.GridToWorld(gx, gy)
		d.mu.Lock()
		d.target = &Target{GridX: gx, GridY: gy, WorldX: wx, WorldY: wy, At: time.Now()}
		d.mu.Unlock()
		d.picks.Add(1)
		monitoring.Logf("[Dispatch] Picked grid (%g, %g) -> world (%.3f, %.3f)", gx, gy, wx, wy)
	default:
		d.unknown.Add(1)
		monitoring.Debugf("[Dispatch] Ignoring unknown message (%d bytes)", len(text))
	}
}

var pickPattern = regexp.MustCompile(
	`^\s*([\[(]?)\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*,\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*([\])]?)\s*$`)

// ParsePick parses the body of a "#pick" message into grid coordinates.
// Accepted forms are "x,y", "[x, y]" and "(x, y)".
func ParsePick(body string) (float64, float64, error) {
	m := pickPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, 0, ErrMalformedPick
	}
	open, closing := m[1], m[4]
	if (open == "" && closing != "") || (open == "[" && closing != "]") || (open == "(" && closing != ")") {
		return 0, 0, ErrMalformedPick
	}

	x, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformedPick, err)
	}
	y, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformedPick, err)
	}
	return x, y, nil
}

// PickedTarget returns the last picked target, if any.
func (d *Dispatcher) PickedTarget() (Target, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.target == nil {
		return Target{}, false
	}
	return *d.target, true
}

// TargetPose returns the picked target as (world y, world x), the order
// the navigation stack consumes.
func (d *Dispatcher) TargetPose() ([2]float64, bool) {
	t, ok := d.PickedTarget()
	if !ok {
		return [2]float64{}, false
	}
	return [2]float64{t.WorldY, t.WorldX}, true
}

// ClearTarget forgets the picked target.
func (d *Dispatcher) ClearTarget() {
	d.mu.Lock()
	d.target = nil
	d.mu.Unlock()
}

// Stats returns inbound counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Acks:     d.acks.Load(),
		Picks:    d.picks.Load(),
		Rejected: d.rejected.Load(),
		Unknown:  d.unknown.Load(),
	}
}
