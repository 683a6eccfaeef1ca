package telemetry

import "sync"

// Slot is a single-value mailbox with overwrite semantics. Store replaces
// whatever was held; Load never consumes. Readers see either the previous
// or the new value, never a mix.
type Slot[T any] struct {
	mu         sync.Mutex
	value      T
	seq        uint64
	set        bool
	overwrites uint64
	lastRead   uint64
}

// Store replaces the held value and returns its sequence number.
func (s *Slot[T]) Store(v T) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set && s.lastRead != s.seq {
		s.overwrites++
	}
	s.value = v
	s.seq++
	s.set = true
	return s.seq
}

// Load returns the held value, its sequence number and whether any value
// has been stored.
func (s *Slot[T]) Load() (T, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRead = s.seq
	return s.value, s.seq, s.set
}

// Clear drops the held value. The sequence keeps counting.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.set = false
}

// Overwrites counts values replaced before any reader observed them.
func (s *Slot[T]) Overwrites() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overwrites
}
