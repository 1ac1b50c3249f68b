package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/tanaikit/pool2api/internal/pricing"
	"github.com/tanaikit/pool2api/internal/store"
)

// Denial describes why a request was rejected. Reason is safe to return to
// the caller.
type Denial struct {
	Reason string
}

func (d *Denial) Error() string { return d.Reason }

// UsageSource supplies windowed request/token aggregates. Satisfied by
// store.Store.
type UsageSource interface {
	APIKeyUsage(ctx context.Context, keyID int64, window store.UsageWindow) ([]store.ModelUsage, error)
}

// Enforcer applies the quota checks for one downstream request. Check order is
// fixed: expiry, concurrency, rate, request ceilings, cost ceilings. The first
// failure short-circuits; concurrency and rate are O(1) in memory and run
// before anything that touches the database.
type Enforcer struct {
	Slots *SlotCounter
	Rate  *RateWindow
	Usage UsageSource
}

// NewEnforcer assembles an enforcer over the given usage source.
func NewEnforcer(usage UsageSource) *Enforcer {
	return &Enforcer{
		Slots: NewSlotCounter(),
		Rate:  NewRateWindow(),
		Usage: usage,
	}
}

// Admit runs all checks for the key. On success it returns a release function
// that must be called exactly once when the request completes (success, error,
// or stream end); the function frees the concurrency slot. On denial it
// returns a *Denial and a nil release.
func (e *Enforcer) Admit(ctx context.Context, key *store.APIKey, clientIP string) (func(), *Denial) {
	if key.Expired(time.Now()) {
		return nil, &Denial{Reason: "api key has expired"}
	}

	release := func() {}
	if key.ConcurrencyLimit > 0 {
		if !e.Slots.TryAcquire(key.ID, clientIP, key.ConcurrencyLimit) {
			return nil, &Denial{Reason: fmt.Sprintf("concurrency limit reached (%d in flight)", key.ConcurrencyLimit)}
		}
		release = func() { e.Slots.Release(key.ID, clientIP) }
	}

	if key.RateLimit > 0 {
		if !e.Rate.Allow(key.ID, key.RateLimit) {
			release()
			return nil, &Denial{Reason: fmt.Sprintf("rate limit reached (%d requests per minute)", key.RateLimit)}
		}
	}

	if denial := e.checkCeilings(ctx, key); denial != nil {
		release()
		return nil, denial
	}

	return release, nil
}

// checkCeilings verifies every request-count ceiling, then every cost ceiling,
// each from the shortest window out. Cost is checked against recorded, not
// estimated, spend: a request at 99% of a cost ceiling is admitted and only
// the next one is rejected.
func (e *Enforcer) checkCeilings(ctx context.Context, key *store.APIKey) *Denial {
	type ceiling struct {
		window    store.UsageWindow
		requests  int64
		cost      float64
		reqLabel  string
		costLabel string
	}
	ceilings := []ceiling{
		{store.WindowDay, key.DailyLimit, key.DailyCostLimit, "daily request limit", "daily cost limit"},
		{store.WindowMonth, key.MonthlyLimit, key.MonthlyCostLimit, "monthly request limit", "monthly cost limit"},
		{store.WindowLifetime, key.TotalLimit, key.TotalCostLimit, "total request limit", "total cost limit"},
	}

	type totals struct {
		requests int64
		cost     float64
	}
	// A window consulted by both passes is queried once.
	cached := make(map[store.UsageWindow]totals, len(ceilings))
	load := func(window store.UsageWindow) (totals, error) {
		if t, ok := cached[window]; ok {
			return t, nil
		}
		rows, err := e.Usage.APIKeyUsage(ctx, key.ID, window)
		if err != nil {
			return totals{}, err
		}
		var t totals
		for _, row := range rows {
			t.requests += row.Requests
			t.cost += pricing.Cost(row.Model, row.InputTokens, row.OutputTokens)
		}
		cached[window] = t
		return t, nil
	}

	for _, c := range ceilings {
		if c.requests <= 0 {
			continue
		}
		t, err := load(c.window)
		if err != nil {
			return &Denial{Reason: "usage accounting unavailable"}
		}
		if t.requests >= c.requests {
			return &Denial{Reason: fmt.Sprintf("%s reached (%d)", c.reqLabel, c.requests)}
		}
	}
	for _, c := range ceilings {
		if c.cost <= 0 {
			continue
		}
		t, err := load(c.window)
		if err != nil {
			return &Denial{Reason: "usage accounting unavailable"}
		}
		if t.cost >= c.cost {
			return &Denial{Reason: fmt.Sprintf("%s reached ($%.2f)", c.costLabel, c.cost)}
		}
	}
	return nil
}
