// Package ledger implements the primary's authoritative, append-only,
// in-memory log and its sequence-number allocator.
package ledger

import (
	"sync"

	"github.com/elgrassa/replicated-log/internal/model"
)

// Ledger is the single writer of the primary's log. Assign is the only
// mutation; it is serialized so concurrent clients observe a total order.
type Ledger struct {
	mu  sync.RWMutex
	log []model.Entry
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{}
}

// Assign appends payload under the next sequence number and returns the
// resulting entry. next_seq is always len(log)+1.
func (l *Ledger) Assign(payload string) model.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := model.Entry{
		Seq:     int64(len(l.log)) + 1,
		Payload: payload,
	}
	l.log = append(l.log, entry)
	return entry
}

// Snapshot returns a copy of the payloads in seq order.
func (l *Ledger) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.log))
	for i, e := range l.log {
		out[i] = e.Payload
	}
	return out
}

// Entries returns a copy of the full entries in seq order.
func (l *Ledger) Entries() []model.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Entry, len(l.log))
	copy(out, l.log)
	return out
}

// Size returns the number of entries in the log.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.log)
}
