package events

import (
	"strings"
	"sync"

	"swaplock/core/types"
)

// Payload is implemented by anything the ledger can emit.
type Payload interface {
	EventType() string
	Event() *types.Event
}

// Emitter receives events produced by state transitions.
type Emitter interface {
	Emit(Payload)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Payload) {}

// Ring keeps the most recent events in memory for RPC queries. Writes never
// block; once the capacity is reached the oldest entries are dropped.
type Ring struct {
	mu       sync.RWMutex
	capacity int
	next     uint64
	entries  []Entry
}

// Entry is an event plus its assigned sequence number.
type Entry struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

const defaultRingCapacity = 1024

// NewRing builds a ring buffer emitter. A non-positive capacity falls back to
// the default.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Ring{capacity: capacity}
}

func (r *Ring) Emit(p Payload) {
	if r == nil || p == nil {
		return
	}
	evt := p.Event()
	if evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries = append(r.entries, Entry{Sequence: r.next, Event: evt.Clone()})
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

// List returns up to limit retained events whose type starts with prefix,
// newest last. A limit <= 0 returns everything retained.
func (r *Ring) List(prefix string, limit int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		if prefix != "" && !strings.HasPrefix(entry.Event.Type, prefix) {
			continue
		}
		out = append(out, Entry{Sequence: entry.Sequence, Event: entry.Event.Clone()})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
