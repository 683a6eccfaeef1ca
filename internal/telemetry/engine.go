// Package telemetry streams camera frames, robot pose and planning overlays
// to a browser viewer over a WebSocket, paced by viewer acknowledgements.
//
// Producers publish into single-slot buffers at their own rate. The pacer
// sends one composed frame, waits for "#ack", then sleeps out the rest of
// the target period. Operator picks ("#pick") are mapped from grid to
// world coordinates and held as the current target.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/telemetry-gui/internal/config"
	"github.com/banshee-data/telemetry-gui/internal/monitoring"
	"github.com/banshee-data/telemetry-gui/internal/timeutil"
	"github.com/banshee-data/telemetry-gui/internal/viewer"
)

// ErrEngineRunning is returned by Start when the engine is already running.
var ErrEngineRunning = errors.New("telemetry: engine already running")

// PoseMap is the robot-side collaborator: current pose, grid-to-world
// conversion and reset.
type PoseMap interface {
	PoseSource
	MapSource
	Reset()
}

// Config holds engine settings.
type Config struct {
	Viewer         viewer.Config
	TargetPeriod   time.Duration
	SampleInterval time.Duration
	AckTimeout     time.Duration
	Profile        string
	HistorySize    int
	StatsInterval  time.Duration
	Clock          timeutil.Clock
}

// DefaultConfig returns an 80ms target period with a 2s measurement window.
func DefaultConfig() Config {
	return Config{
		Viewer:         viewer.DefaultConfig(),
		TargetPeriod:   80 * time.Millisecond,
		SampleInterval: 2 * time.Second,
		Profile:        config.ProfilePath,
		HistorySize:    300,
		StatsInterval:  10 * time.Second,
	}
}

// ConfigFromEngineConfig maps a loaded EngineConfig onto engine settings.
func ConfigFromEngineConfig(ec *config.EngineConfig) Config {
	cfg := DefaultConfig()
	cfg.Viewer.ListenAddr = ec.GetListenAddr()
	cfg.Viewer.ReadyMarker = ec.GetReadyMarker()
	cfg.Viewer.ReadyRetry = ec.GetReadyRetry()
	cfg.Viewer.HealthAddr = ec.GetHealthAddr()
	cfg.TargetPeriod = ec.GetTargetPeriod()
	cfg.SampleInterval = ec.GetSampleInterval()
	cfg.AckTimeout = ec.GetAckTimeout()
	cfg.Profile = ec.GetProfile()
	cfg.HistorySize = ec.GetHistorySize()
	return cfg
}

// ProfileOverlays returns the overlay producers for a named profile.
func ProfileOverlays(profile string) ([]OverlayProducer, error) {
	switch profile {
	case config.ProfilePath, "":
		return []OverlayProducer{NewPathOverlay()}, nil
	case config.ProfileNavGrid:
		return []OverlayProducer{NewNavGridOverlay()}, nil
	default:
		return nil, fmt.Errorf("telemetry: unknown profile %q", profile)
	}
}

// Stats aggregates counters from every engine component.
type Stats struct {
	Running          bool                `json:"running"`
	Profile          string              `json:"profile"`
	TargetPeriodMs   float64             `json:"target_period_ms"`
	MeasuredPeriodMs float64             `json:"measured_period_ms"`
	ImageOverwrites  uint64              `json:"image_overwrites"`
	Channel          viewer.ChannelStats `json:"channel"`
	Pacer            PacerStats          `json:"pacer"`
	Dispatch         DispatchStats       `json:"dispatch"`
	Target           *Target             `json:"target,omitempty"`
}

// Engine owns the channel, buffers, pacer, monitor and dispatcher.
type Engine struct {
	config   Config
	poseMap  PoseMap
	channel  *viewer.Server
	images   *FrameBuffer
	overlays map[string]OverlayProducer
	gate     *AckGate
	cycles   *CycleStats
	composer *Composer
	pacer    *Pacer
	monitor  *FrequencyMonitor
	dispatch *Dispatcher

	running atomic.Bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEngine wires an engine around poseMap. Without explicit overlays the
// profile's default set is used.
func NewEngine(cfg Config, poseMap PoseMap, overlays ...OverlayProducer) (*Engine, error) {
	if poseMap == nil {
		return nil, errors.New("telemetry: pose source is required")
	}
	if cfg.TargetPeriod <= 0 {
		return nil, fmt.Errorf("telemetry: target period must be positive, got %v", cfg.TargetPeriod)
	}
	if cfg.SampleInterval <= 0 {
		return nil, fmt.Errorf("telemetry: sample interval must be positive, got %v", cfg.SampleInterval)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if len(overlays) == 0 {
		var err error
		if overlays, err = ProfileOverlays(cfg.Profile); err != nil {
			return nil, err
		}
	}

	byKey := make(map[string]OverlayProducer, len(overlays))
	for _, o := range overlays {
		if o.Key() == KeyImage || o.Key() == KeyMap {
			return nil, fmt.Errorf("telemetry: overlay key %q is reserved", o.Key())
		}
		if _, dup := byKey[o.Key()]; dup {
			return nil, fmt.Errorf("telemetry: duplicate overlay key %q", o.Key())
		}
		byKey[o.Key()] = o
	}

	e := &Engine{
		config:   cfg,
		poseMap:  poseMap,
		channel:  viewer.NewServer(cfg.Viewer),
		images:   NewFrameBuffer(),
		overlays: byKey,
		gate:     NewAckGate(),
		cycles:   &CycleStats{},
	}
	e.composer = NewComposer(e.images, poseMap, overlays...)
	e.pacer = NewPacer(e.channel, e.composer, e.gate, e.cycles, cfg.Clock, cfg.TargetPeriod, cfg.AckTimeout)
	e.monitor = NewFrequencyMonitor(e.cycles, cfg.Clock, cfg.SampleInterval, cfg.HistorySize,
		float64(cfg.TargetPeriod)/float64(time.Millisecond))
	e.dispatch = NewDispatcher(e.gate, poseMap)
	e.channel.OnMessage(e.dispatch.Handle)
	return e, nil
}

// Start opens the viewer channel and launches the pacer and monitor.
func (e *Engine) Start() error {
	if e.running.Load() {
		return ErrEngineRunning
	}
	if err := e.channel.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.stopCh = make(chan struct{})
	e.running.Store(true)

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		if err := e.pacer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("[Telemetry] Pacer stopped: %v", err)
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := e.monitor.Run(ctx, e.channel); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("[Telemetry] Frequency monitor stopped: %v", err)
		}
	}()
	go e.logStats()

	monitoring.Logf("[Telemetry] Engine started on %s (profile %s, target %v)",
		e.channel.Addr(), e.config.Profile, e.config.TargetPeriod)
	return nil
}

// Stop halts the pacer and monitor, then closes the channel.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	close(e.stopCh)
	e.wg.Wait()
	e.channel.Stop()
	monitoring.Logf("[Telemetry] Engine stopped")
}

func (e *Engine) logStats() {
	defer e.wg.Done()
	if e.config.StatsInterval <= 0 {
		<-e.stopCh
		return
	}

	ticker := time.NewTicker(e.config.StatsInterval)
	defer ticker.Stop()
	var lastAcked uint64
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			s := e.Stats()
			if s.Pacer.Acked == lastAcked && !s.Channel.ViewerActive {
				continue
			}
			monitoring.Logf("[Telemetry] acked=%d sent=%d period=%.1fms timeouts=%d viewer=%v",
				s.Pacer.Acked, s.Pacer.Sent, s.MeasuredPeriodMs, s.Pacer.AckTimeouts, s.Channel.ViewerActive)
			lastAcked = s.Pacer.Acked
		}
	}
}

// PublishImage replaces the current camera image.
func (e *Engine) PublishImage(img image.Image) {
	e.images.PublishImage(img)
}

// PublishOverlay replaces the value held for an overlay key.
func (e *Engine) PublishOverlay(key string, data any) error {
	o, ok := e.overlays[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOverlay, key)
	}
	return o.Publish(data)
}

// Overlay returns the producer registered for key.
func (e *Engine) Overlay(key string) (OverlayProducer, bool) {
	o, ok := e.overlays[key]
	return o, ok
}

// Reset returns the pose to its initial state and forgets the picked
// target.
func (e *Engine) Reset() {
	e.poseMap.Reset()
	e.dispatch.ClearTarget()
	monitoring.Logf("[Telemetry] Reset pose and target")
}

// PickedTarget returns the last picked target.
func (e *Engine) PickedTarget() (Target, bool) { return e.dispatch.PickedTarget() }

// TargetPose returns the picked target as (world y, world x).
func (e *Engine) TargetPose() ([2]float64, bool) { return e.dispatch.TargetPose() }

// Channel returns the viewer server.
func (e *Engine) Channel() *viewer.Server { return e.channel }

// Monitor returns the frequency monitor.
func (e *Engine) Monitor() *FrequencyMonitor { return e.monitor }

// Stats returns a snapshot of all counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Running:          e.running.Load(),
		Profile:          e.config.Profile,
		TargetPeriodMs:   float64(e.config.TargetPeriod) / float64(time.Millisecond),
		MeasuredPeriodMs: e.monitor.Measured(),
		ImageOverwrites:  e.images.Overwrites(),
		Channel:          e.channel.Stats(),
		Pacer:            e.pacer.Stats(),
		Dispatch:         e.dispatch.Stats(),
	}
	if t, ok := e.dispatch.PickedTarget(); ok {
		s.Target = &t
	}
	return s
}
