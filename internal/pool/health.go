// Package pool implements in-memory credential pool coordination: health
// tracking, per-credential FIFO locking, LRU selection, and single-flight
// token refresh. One Pool instance serves all providers; entries are keyed by
// the credential's provider-scoped key.
package pool

import (
	"sync"
	"time"
)

const (
	// unhealthyThreshold is the consecutive error count that flips an entry
	// to unhealthy.
	unhealthyThreshold = 3

	// recoveryCooldown is how long an unhealthy entry waits before the pool
	// may attempt it again.
	recoveryCooldown = 5 * time.Minute
)

// Health is an immutable snapshot of one credential's in-memory health state.
type Health struct {
	Healthy     bool
	ErrorCount  int
	LastErrorAt time.Time
	LastError   string
	LastUsedAt  time.Time
	UseCount    int64
}

// HealthRegistry tracks per-credential health, usage timestamps, and error
// counters. Reads return value snapshots; writes are guarded by a single
// RWMutex, which is sufficient at pool sizes of tens of credentials.
type HealthRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Health
	now     func() time.Time
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		entries: make(map[string]*Health),
		now:     time.Now,
	}
}

func (r *HealthRegistry) entry(key string) *Health {
	h, ok := r.entries[key]
	if !ok {
		h = &Health{Healthy: true}
		r.entries[key] = h
	}
	return h
}

// MarkHealthy resets the error counter and flags the entry healthy.
func (r *HealthRegistry) MarkHealthy(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.entry(key)
	h.Healthy = true
	h.ErrorCount = 0
	h.LastError = ""
}

// MarkUnhealthy increments the error counter and records the message. The
// entry flips to unhealthy once the counter reaches the threshold.
func (r *HealthRegistry) MarkUnhealthy(key, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.entry(key)
	h.ErrorCount++
	h.LastError = msg
	h.LastErrorAt = r.now()
	if h.ErrorCount >= unhealthyThreshold {
		h.Healthy = false
	}
}

// RecordUse updates the last-used timestamp and bumps the use counter.
func (r *HealthRegistry) RecordUse(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.entry(key)
	h.LastUsedAt = r.now()
	h.UseCount++
}

// Snapshot returns a copy of the entry's current state. Unknown keys report
// healthy with zero usage.
func (r *HealthRegistry) Snapshot(key string) Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.entries[key]; ok {
		return *h
	}
	return Health{Healthy: true}
}

// CanRecover reports whether the entry is healthy or has sat out the recovery
// cooldown since its last error.
func (r *HealthRegistry) CanRecover(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[key]
	if !ok || h.Healthy {
		return true
	}
	return r.now().Sub(h.LastErrorAt) >= recoveryCooldown
}

// Forget drops the entry, typically after the credential is quarantined.
func (r *HealthRegistry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}
