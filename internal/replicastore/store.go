// Package replicastore implements a replica's ingress endpoint and the
// applier that turns out-of-order arrivals into a monotone, contiguous
// visible prefix.
package replicastore

import (
	"sync"
	"time"
)

// Store holds one replica's applied prefix and its out-of-order buffer.
// applied is holes-free by construction; pending only ever holds seqs
// strictly greater than len(applied)+1.
type Store struct {
	mu      sync.RWMutex
	applied []string
	pending map[int64]string

	// delay is an artificial sleep injected before applying, purely to
	// make the write-concern wait contract observable in tests/demos
	// (DELAY_MS in SPEC_FULL.md §6).
	delay time.Duration
}

// New returns an empty Store with the given artificial ingress delay.
func New(delay time.Duration) *Store {
	return &Store{
		pending: make(map[int64]string),
		delay:   delay,
	}
}

// Delay returns the configured artificial ingress delay, for /health.
func (s *Store) Delay() time.Duration { return s.delay }

// Replicate applies exactly-once semantics for (seq, payload): a seq
// already present in applied or pending is reported as a duplicate and
// never reapplied. Otherwise it either extends applied immediately (if
// contiguous) or is buffered in pending until the gap fills.
func (s *Store) Replicate(seq int64, payload string) (duplicate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.has(seq) {
		return true
	}

	if s.delay > 0 {
		// The lock is released for the sleep so reads are not blocked
		// by a slow ingress; seq is checked again once it is re-taken.
		// This is what makes the semi-sync W=1 scenario in SPEC_FULL.md
		// §8 (S2) observable.
		s.mu.Unlock()
		time.Sleep(s.delay)
		s.mu.Lock()
		if s.has(seq) {
			return true
		}
	}

	if seq == int64(len(s.applied))+1 {
		s.applied = append(s.applied, payload)
		s.drainPending()
		return false
	}

	s.pending[seq] = payload
	return false
}

// has reports whether seq is already applied or buffered. Caller holds mu.
func (s *Store) has(seq int64) bool {
	if seq >= 1 && seq <= int64(len(s.applied)) {
		return true
	}
	_, buffered := s.pending[seq]
	return buffered
}

// drainPending promotes contiguous buffered entries into applied. Caller
// holds mu.
func (s *Store) drainPending() {
	for {
		next := int64(len(s.applied)) + 1
		payload, ok := s.pending[next]
		if !ok {
			return
		}
		s.applied = append(s.applied, payload)
		delete(s.pending, next)
	}
}

// Snapshot returns a copy of the applied payloads in order. Pending
// entries are never visible here.
func (s *Store) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.applied))
	copy(out, s.applied)
	return out
}

// AppliedLen returns len(applied), for /health.
func (s *Store) AppliedLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.applied)
}
