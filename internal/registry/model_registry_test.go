package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanaikit/pool2api/internal/constant"
)

func TestResolve(t *testing.T) {
	r := New()

	assert.Equal(t, "CLAUDE_SONNET_4_5_20250929_V1_0",
		r.Resolve(constant.ProviderKiro, "claude-sonnet-4-5"), "alias maps to native name")
	assert.Equal(t, "CLAUDE_SONNET_4_5_20250929_V1_0",
		r.Resolve(constant.ProviderKiro, "CLAUDE_SONNET_4_5_20250929_V1_0"), "native name is identity")
	assert.Equal(t, "CLAUDE_SONNET_4_5_20250929_V1_0",
		r.Resolve(constant.ProviderKiro, "no-such-model"), "unknown model falls back to the default")

	assert.Equal(t, "gemini-2.5-pro",
		r.Resolve(constant.ProviderAntigravity, "claude-sonnet-4-5"),
		"cross-family alias on the Gemini provider")

	assert.Equal(t, "anything", r.Resolve("unknown-provider", "anything"))
}

func TestDownstream(t *testing.T) {
	r := New()
	assert.Equal(t, "orchids-claude-fast",
		r.Downstream(constant.ProviderOrchids, "claude-3-5-haiku-20241022"))
	assert.Equal(t, "gpt-5", r.Downstream(constant.ProviderAgent, "gpt-5"),
		"identity entries stay identity")
}

func TestKnows(t *testing.T) {
	r := New()
	assert.True(t, r.Knows(constant.ProviderKiro, "claude-sonnet-4-5"))
	assert.True(t, r.Knows(constant.ProviderKiro, "CLAUDE_OPUS_4_1_20250805_V1_0"))
	assert.False(t, r.Knows(constant.ProviderKiro, "gemini-2.5-pro"))
	assert.False(t, r.Knows("unknown-provider", "claude-sonnet-4-5"))
}

func TestProviderFor(t *testing.T) {
	r := New()
	assert.Equal(t, constant.ProviderAntigravity, r.ProviderFor("gemini-2.5-flash"))
	assert.Equal(t, constant.ProviderAntigravity, r.ProviderFor("gemini-3-pro-preview"))
	assert.Equal(t, constant.ProviderOrchids, r.ProviderFor("orchids-claude-fast"))
	assert.Equal(t, constant.ProviderKiro, r.ProviderFor("claude-sonnet-4-5"),
		"claude models default to the primary provider even when other tables list them")
	assert.Equal(t, constant.ProviderKiro, r.ProviderFor("unknown"))
}

func TestList(t *testing.T) {
	r := New()
	models := r.List()
	require.NotEmpty(t, models)

	seen := map[string]bool{}
	prev := ""
	for _, m := range models {
		assert.Equal(t, "model", m.Object)
		assert.False(t, seen[m.ID], "no duplicates: %s", m.ID)
		seen[m.ID] = true
		assert.LessOrEqual(t, prev, m.ID, "sorted output")
		prev = m.ID
	}
	assert.True(t, seen["claude-sonnet-4-5"])
	assert.True(t, seen["gemini-2.5-pro"])
	assert.True(t, seen["gpt-5"])
}

func TestRegisterReplacesTable(t *testing.T) {
	r := New()
	r.Register(&ProviderTable{
		Provider: constant.ProviderAgent,
		Default:  "gpt-5",
		OwnedBy:  "openai",
		Aliases:  map[string]string{"gpt-5": "gpt-5"},
	})
	assert.False(t, r.Knows(constant.ProviderAgent, "gpt-4o"))
	assert.True(t, r.Knows(constant.ProviderAgent, "gpt-5"))
}
