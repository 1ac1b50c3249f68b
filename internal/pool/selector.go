package pool

import (
	"sort"

	"github.com/tanaikit/pool2api/internal/store"
)

// Select picks the best credential from candidates, skipping excludeKeys.
// Policy, in order:
//  1. Filter out excluded keys; if nothing remains, fall back to the full set.
//  2. Partition into healthy, recoverable-unhealthy, and other; take the first
//     non-empty bucket.
//  3. Within the bucket, prefer lock-free over locked, then least recently
//     used (never-used first), then lowest use count, then shortest waiter
//     queue.
//
// Returns nil when candidates is empty.
func (p *Pool) Select(candidates []*store.Credential, excludeKeys map[string]bool) *store.Credential {
	if len(candidates) == 0 {
		return nil
	}

	eligible := make([]*store.Credential, 0, len(candidates))
	for _, c := range candidates {
		if !excludeKeys[c.Key()] {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		eligible = candidates
	}

	var healthy, recoverable, other []*store.Credential
	for _, c := range eligible {
		h := p.Health.Snapshot(c.Key())
		switch {
		case h.Healthy:
			healthy = append(healthy, c)
		case p.Health.CanRecover(c.Key()):
			recoverable = append(recoverable, c)
		default:
			other = append(other, c)
		}
	}

	bucket := healthy
	if len(bucket) == 0 {
		bucket = recoverable
	}
	if len(bucket) == 0 {
		bucket = other
	}

	type ranked struct {
		cred    *store.Credential
		busy    bool
		health  Health
		waiters int
	}
	rankedSet := make([]ranked, 0, len(bucket))
	for _, c := range bucket {
		key := c.Key()
		rankedSet = append(rankedSet, ranked{
			cred:    c,
			busy:    p.Locks.Busy(key),
			health:  p.Health.Snapshot(key),
			waiters: p.Locks.Waiters(key),
		})
	}

	sort.SliceStable(rankedSet, func(i, j int) bool {
		a, b := rankedSet[i], rankedSet[j]
		if a.busy != b.busy {
			return !a.busy
		}
		// LRU: zero lastUsedAt (never used) sorts first.
		if !a.health.LastUsedAt.Equal(b.health.LastUsedAt) {
			return a.health.LastUsedAt.Before(b.health.LastUsedAt)
		}
		if a.health.UseCount != b.health.UseCount {
			return a.health.UseCount < b.health.UseCount
		}
		return a.waiters < b.waiters
	})

	return rankedSet[0].cred
}
