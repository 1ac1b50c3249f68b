package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanaikit/pool2api/internal/store"
)

type fakeUsage struct {
	rows []store.ModelUsage
	err  error
}

func (f *fakeUsage) APIKeyUsage(context.Context, int64, store.UsageWindow) ([]store.ModelUsage, error) {
	return f.rows, f.err
}

func testKey() *store.APIKey {
	return &store.APIKey{ID: 7, KeyPrefix: "pk-test", CreatedAt: time.Now()}
}

func TestAdmitUnlimitedKey(t *testing.T) {
	e := NewEnforcer(&fakeUsage{})
	release, denial := e.Admit(context.Background(), testKey(), "10.0.0.1")
	require.Nil(t, denial)
	release()
}

func TestAdmitExpiredKey(t *testing.T) {
	e := NewEnforcer(&fakeUsage{})
	key := testKey()
	key.ValidityDays = 1
	key.CreatedAt = time.Now().AddDate(0, 0, -2)

	_, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.NotNil(t, denial)
	assert.Contains(t, denial.Reason, "expired")
}

func TestAdmitConcurrencyBoundary(t *testing.T) {
	e := NewEnforcer(&fakeUsage{})
	key := testKey()
	key.ConcurrencyLimit = 2

	rel1, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.Nil(t, denial)
	rel2, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.Nil(t, denial)

	_, denial = e.Admit(context.Background(), key, "10.0.0.1")
	require.NotNil(t, denial, "third concurrent request is rejected")
	assert.Contains(t, denial.Reason, "concurrency")

	rel1()
	rel3, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.Nil(t, denial, "slot freed by release is reusable")
	rel2()
	rel3()
}

func TestAdmitRateLimit(t *testing.T) {
	e := NewEnforcer(&fakeUsage{})
	key := testKey()
	key.RateLimit = 2

	for i := 0; i < 2; i++ {
		release, denial := e.Admit(context.Background(), key, "10.0.0.1")
		require.Nil(t, denial)
		release()
	}
	_, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.NotNil(t, denial)
	assert.Contains(t, denial.Reason, "rate limit")
}

func TestAdmitRequestCeiling(t *testing.T) {
	usage := &fakeUsage{rows: []store.ModelUsage{{Model: "claude-sonnet-4-5", Requests: 10}}}
	e := NewEnforcer(usage)
	key := testKey()
	key.DailyLimit = 10

	_, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.NotNil(t, denial)
	assert.Contains(t, denial.Reason, "daily request limit")
}

func TestAdmitCostCeilingUsesRecordedSpend(t *testing.T) {
	// 1M input at $3/M plus 1M output at $15/M = $18 recorded spend.
	usage := &fakeUsage{rows: []store.ModelUsage{{
		Model:        "claude-sonnet-4-5",
		Requests:     1,
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	}}}
	e := NewEnforcer(usage)
	key := testKey()

	key.DailyCostLimit = 20
	release, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.Nil(t, denial, "under the ceiling admits regardless of request size")
	release()

	key.DailyCostLimit = 18
	_, denial = e.Admit(context.Background(), key, "10.0.0.1")
	require.NotNil(t, denial)
	assert.Contains(t, denial.Reason, "daily cost limit")
}

func TestAdmitRequestCeilingsCheckedBeforeCostCeilings(t *testing.T) {
	// Recorded usage breaches both the daily cost ceiling and the monthly
	// request ceiling; the request-count denial must surface.
	usage := &fakeUsage{rows: []store.ModelUsage{{
		Model:        "claude-sonnet-4-5",
		Requests:     10,
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	}}}
	e := NewEnforcer(usage)
	key := testKey()
	key.DailyCostLimit = 1
	key.MonthlyLimit = 10

	_, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.NotNil(t, denial)
	assert.Contains(t, denial.Reason, "monthly request limit")
	assert.NotContains(t, denial.Reason, "cost")
}

func TestAdmitConcurrencySlotFreedOnDenial(t *testing.T) {
	usage := &fakeUsage{rows: []store.ModelUsage{{Model: "m", Requests: 5}}}
	e := NewEnforcer(usage)
	key := testKey()
	key.ConcurrencyLimit = 1
	key.DailyLimit = 5

	_, denial := e.Admit(context.Background(), key, "10.0.0.1")
	require.NotNil(t, denial, "ceiling denies")
	assert.Equal(t, int64(0), e.Slots.InFlight(key.ID, "10.0.0.1"),
		"denial after slot acquisition releases the slot")
}
