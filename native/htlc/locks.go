package htlc

import "sync"

// keyLocks provides mutual exclusion per escrow key. State transitions on the
// same key serialise; operations on different keys proceed in parallel. Lock
// entries are reference counted and removed once the last holder releases.
type keyLocks struct {
	mu      sync.Mutex
	entries map[[32]byte]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{entries: make(map[[32]byte]*keyLock)}
}

func (l *keyLocks) lock(key [32]byte) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyLock{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()
	entry.mu.Lock()
}

func (l *keyLocks) unlock(key [32]byte) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
	}
	l.mu.Unlock()
	if ok {
		entry.mu.Unlock()
	}
}
