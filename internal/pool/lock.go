package pool

import (
	"context"
	"sync"
)

// LockTable provides at most one outstanding operation per credential. Each
// entry is a busy flag plus an ordered waiter queue; release hands the lock to
// the head waiter directly so ordering is strictly FIFO under contention.
//
// When disabled (DISABLE_CREDENTIAL_LOCK), Acquire and Release become no-ops.
type LockTable struct {
	mu       sync.Mutex
	entries  map[string]*lockEntry
	disabled bool
}

type lockEntry struct {
	busy    bool
	waiters []chan struct{}
}

// NewLockTable creates a lock table. Pass disabled=true to skip all locking.
func NewLockTable(disabled bool) *LockTable {
	return &LockTable{
		entries:  make(map[string]*lockEntry),
		disabled: disabled,
	}
}

// Acquire blocks until the caller owns the credential's lock or the context is
// cancelled. On cancellation the waiter is unregistered; if ownership was
// handed over concurrently with cancellation, the lock is passed on so it is
// never stranded.
func (t *LockTable) Acquire(ctx context.Context, key string) error {
	if t.disabled {
		return nil
	}
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{}
		t.entries[key] = e
	}
	if !e.busy {
		e.busy = true
		t.mu.Unlock()
		return nil
	}
	wait := make(chan struct{})
	e.waiters = append(e.waiters, wait)
	t.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		for i, w := range e.waiters {
			if w == wait {
				e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
				t.mu.Unlock()
				return ctx.Err()
			}
		}
		t.mu.Unlock()
		// Ownership arrived while cancelling; pass it on.
		t.Release(key)
		return ctx.Err()
	}
}

// Release transfers the lock to the head waiter, or marks it free when no
// waiter is queued. Callers must pair every successful Acquire with exactly
// one Release, including on error paths and after streaming completion.
func (t *LockTable) Release(key string) {
	if t.disabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || !e.busy {
		return
	}
	if len(e.waiters) > 0 {
		head := e.waiters[0]
		e.waiters = e.waiters[1:]
		// busy stays set; ownership moves to the head waiter.
		close(head)
		return
	}
	e.busy = false
}

// Busy reports whether the credential's lock is currently held.
func (t *LockTable) Busy(key string) bool {
	if t.disabled {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return ok && e.busy
}

// Waiters returns the current queue length for the credential.
func (t *LockTable) Waiters(key string) int {
	if t.disabled {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return 0
	}
	return len(e.waiters)
}
