// Package utils holds the lock shared by the allocator, its block lists, its dedicated
// allocation lists, its allocations and the driver memory objects beneath them.
package utils

import "sync"

// Lock is a read-write mutex that can be switched off for an allocator created externally
// synchronized. The zero value is an active lock.
type Lock struct {
	mu      sync.RWMutex
	skipped bool
}

// Synchronize enables or disables locking. It must be called before the lock is shared.
func (l *Lock) Synchronize(enabled bool) {
	l.skipped = !enabled
}

// Synchronized returns false if Lock and RLock do nothing
func (l *Lock) Synchronized() bool {
	return !l.skipped
}

func (l *Lock) Lock() {
	if !l.skipped {
		l.mu.Lock()
	}
}

func (l *Lock) Unlock() {
	if !l.skipped {
		l.mu.Unlock()
	}
}

func (l *Lock) RLock() {
	if !l.skipped {
		l.mu.RLock()
	}
}

func (l *Lock) RUnlock() {
	if !l.skipped {
		l.mu.RUnlock()
	}
}

// Locked runs fn while holding the write lock
func (l *Lock) Locked(fn func()) {
	l.Lock()
	defer l.Unlock()

	fn()
}
