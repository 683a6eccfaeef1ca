package telemetry

import (
	"sync"
	"time"
)

// CycleStats accumulates completed cycles for the frequency monitor. The
// pacer records one entry per acknowledged frame; the monitor takes and
// resets the window atomically.
type CycleStats struct {
	mu        sync.Mutex
	frames    uint64
	latencies []float64 // milliseconds
	total     uint64
}

// RecordFrame counts one acknowledged frame and its send-to-ack latency.
func (s *CycleStats) RecordFrame(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.total++
	s.latencies = append(s.latencies, float64(latency)/float64(time.Millisecond))
}

// TakeWindow returns the frames and latencies recorded since the previous
// call and resets the window.
func (s *CycleStats) TakeWindow() (uint64, []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames, latencies := s.frames, s.latencies
	s.frames = 0
	s.latencies = nil
	return frames, latencies
}

// Total returns the lifetime acknowledged frame count.
func (s *CycleStats) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
