package quota

import (
	"sync"
	"time"
)

const rateWindowSpan = time.Minute

// RateWindow keeps a sliding 60-second window of request timestamps per
// API key.
type RateWindow struct {
	mu      sync.Mutex
	windows map[int64][]time.Time
	now     func() time.Time
}

// NewRateWindow creates an empty window set.
func NewRateWindow() *RateWindow {
	return &RateWindow{
		windows: make(map[int64][]time.Time),
		now:     time.Now,
	}
}

// Allow drops timestamps older than the window, rejects when the ceiling is
// reached, and otherwise records the request.
func (w *RateWindow) Allow(keyID int64, ceiling int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-rateWindowSpan)
	window := w.windows[keyID]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if int64(len(kept)) >= ceiling {
		w.windows[keyID] = kept
		return false
	}
	w.windows[keyID] = append(kept, now)
	return true
}
