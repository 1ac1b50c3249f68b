// Package quota enforces per-API-key limits: validity expiry, per-IP
// concurrency, per-minute rate, and daily/monthly/lifetime request and cost
// ceilings. Checks are ordered cheapest first; in-memory checks short-circuit
// before any database aggregation runs.
package quota

import (
	"fmt"
	"sync"
)

// SlotCounter tracks in-flight requests per (api-key, client-ip) pair.
type SlotCounter struct {
	mu    sync.Mutex
	slots map[string]int64
}

// NewSlotCounter creates an empty counter.
func NewSlotCounter() *SlotCounter {
	return &SlotCounter{slots: make(map[string]int64)}
}

func slotKey(keyID int64, ip string) string {
	return fmt.Sprintf("%d|%s", keyID, ip)
}

// TryAcquire atomically increments the pair's counter unless it has reached
// the ceiling. Returns false when the ceiling is hit.
func (c *SlotCounter) TryAcquire(keyID int64, ip string, ceiling int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := slotKey(keyID, ip)
	if c.slots[k] >= ceiling {
		return false
	}
	c.slots[k]++
	return true
}

// Release decrements the pair's counter, dropping the entry at zero.
func (c *SlotCounter) Release(keyID int64, ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := slotKey(keyID, ip)
	if n := c.slots[k]; n > 1 {
		c.slots[k] = n - 1
	} else {
		delete(c.slots, k)
	}
}

// InFlight reports the current counter for a pair.
func (c *SlotCounter) InFlight(keyID int64, ip string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[slotKey(keyID, ip)]
}
