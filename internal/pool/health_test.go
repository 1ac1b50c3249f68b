package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthRegistryThreshold(t *testing.T) {
	r := NewHealthRegistry()

	r.MarkUnhealthy("kiro/1", "boom")
	r.MarkUnhealthy("kiro/1", "boom")
	assert.True(t, r.Snapshot("kiro/1").Healthy, "two errors stay healthy")

	r.MarkUnhealthy("kiro/1", "boom")
	assert.False(t, r.Snapshot("kiro/1").Healthy, "third error flips unhealthy")

	r.MarkHealthy("kiro/1")
	h := r.Snapshot("kiro/1")
	assert.True(t, h.Healthy)
	assert.Equal(t, 0, h.ErrorCount)
}

func TestHealthRegistryRecoveryCooldown(t *testing.T) {
	r := NewHealthRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		r.MarkUnhealthy("kiro/1", "boom")
	}
	assert.False(t, r.CanRecover("kiro/1"))

	now = now.Add(recoveryCooldown)
	assert.True(t, r.CanRecover("kiro/1"))
}

func TestHealthRegistryRecordUse(t *testing.T) {
	r := NewHealthRegistry()
	r.RecordUse("kiro/1")
	r.RecordUse("kiro/1")
	h := r.Snapshot("kiro/1")
	assert.Equal(t, int64(2), h.UseCount)
	assert.False(t, h.LastUsedAt.IsZero())
	assert.True(t, r.Snapshot("unknown").Healthy)
}
