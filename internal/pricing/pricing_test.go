package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceOfLongestPrefixWins(t *testing.T) {
	// A dated variant resolves through its family prefix.
	assert.Equal(t, prices["claude-sonnet-4-5"], PriceOf("claude-sonnet-4-5-20250929"))

	// "claude-sonnet-4-5" is longer than "claude-sonnet-4" and must win.
	assert.Equal(t, 15.0, PriceOf("claude-sonnet-4-5").OutputPerMillion)
	assert.Equal(t, prices["gpt-4o-mini"], PriceOf("gpt-4o-mini-2024"))
}

func TestPriceOfUnknownModel(t *testing.T) {
	assert.Equal(t, defaultPrice, PriceOf("totally-unknown-model"))
}

func TestCost(t *testing.T) {
	// 1M input at $3 plus 2M output at $15.
	assert.InDelta(t, 33.0, Cost("claude-sonnet-4-5", 1_000_000, 2_000_000), 1e-9)
	assert.Zero(t, Cost("claude-sonnet-4-5", 0, 0))

	// Small requests cost fractions of a cent, not zero.
	got := Cost("gemini-2.5-flash", 1000, 500)
	assert.InDelta(t, 0.3/1000+2.5*500/1e6, got, 1e-12)
	assert.Greater(t, got, 0.0)
}
