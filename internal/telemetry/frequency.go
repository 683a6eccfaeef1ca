package telemetry

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/telemetry-gui/internal/monitoring"
	"github.com/banshee-data/telemetry-gui/internal/timeutil"
	"github.com/banshee-data/telemetry-gui/internal/viewer"
)

// ViewerWaiter blocks until a viewer is attached.
type ViewerWaiter interface {
	WaitForViewer(ctx context.Context) (*viewer.Session, error)
}

// Sample is one frequency measurement window.
type Sample struct {
	At               time.Time `json:"at"`
	Frames           uint64    `json:"frames"`
	MeasuredPeriodMs float64   `json:"measured_period_ms"`
	LatencyMeanMs    float64   `json:"latency_mean_ms"`
	LatencyStdDevMs  float64   `json:"latency_stddev_ms"`
}

// FrequencyMonitor periodically derives the achieved cycle period from the
// frames acknowledged in each window.
type FrequencyMonitor struct {
	stats    *CycleStats
	clock    timeutil.Clock
	interval time.Duration
	maxHist  int

	mu        sync.RWMutex
	lastStart time.Time
	measured  float64
	history   []Sample
}

// NewFrequencyMonitor creates a monitor. measured starts at initialMs until
// the first window closes.
func NewFrequencyMonitor(stats *CycleStats, clock timeutil.Clock, interval time.Duration, historySize int, initialMs float64) *FrequencyMonitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if historySize <= 0 {
		historySize = 1
	}
	return &FrequencyMonitor{
		stats:    stats,
		clock:    clock,
		interval: interval,
		maxHist:  historySize,
		measured: initialMs,
	}
}

// Run waits for the first viewer, then samples every interval until ctx
// is cancelled.
func (m *FrequencyMonitor) Run(ctx context.Context, waiter ViewerWaiter) error {
	if waiter != nil {
		if _, err := waiter.WaitForViewer(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.lastStart = m.clock.Now()
	m.mu.Unlock()
	// Drop anything recorded before the first window opened.
	m.stats.TakeWindow()

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s := m.Sample()
			monitoring.Debugf("[Frequency] %d frames, period %.1fms, latency %.1f±%.1fms",
				s.Frames, s.MeasuredPeriodMs, s.LatencyMeanMs, s.LatencyStdDevMs)
		}
	}
}

// Sample closes the current window and opens the next one. A window with
// no frames reports a period of zero.
func (m *FrequencyMonitor) Sample() Sample {
	now := m.clock.Now()
	frames, latencies := m.stats.TakeWindow()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastStart.IsZero() {
		m.lastStart = now
	}
	elapsed := now.Sub(m.lastStart)
	m.lastStart = now

	s := Sample{At: now, Frames: frames}
	if frames > 0 {
		s.MeasuredPeriodMs = float64(elapsed) / float64(time.Millisecond) / float64(frames)
	}
	if len(latencies) > 0 {
		s.LatencyMeanMs = stat.Mean(latencies, nil)
	}
	if len(latencies) > 1 {
		s.LatencyStdDevMs = stat.StdDev(latencies, nil)
	}

	m.measured = s.MeasuredPeriodMs
	m.history = append(m.history, s)
	if len(m.history) > m.maxHist {
		m.history = m.history[len(m.history)-m.maxHist:]
	}
	return s
}

// Measured returns the most recent measured period in milliseconds.
func (m *FrequencyMonitor) Measured() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.measured
}

// History returns retained samples, oldest first.
func (m *FrequencyMonitor) History() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sample, len(m.history))
	copy(out, m.history)
	return out
}
