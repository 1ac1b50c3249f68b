package registry

import "github.com/tanaikit/pool2api/internal/constant"

// builtinTables returns the per-provider model tables. Downstream names map
// to each provider's native names; identity entries list models the provider
// serves under their public name.
func builtinTables() []*ProviderTable {
	return []*ProviderTable{
		{
			Provider: constant.ProviderKiro,
			Default:  "CLAUDE_SONNET_4_5_20250929_V1_0",
			OwnedBy:  "anthropic",
			Aliases: map[string]string{
				"claude-sonnet-4-5":          "CLAUDE_SONNET_4_5_20250929_V1_0",
				"claude-sonnet-4-5-20250929": "CLAUDE_SONNET_4_5_20250929_V1_0",
				"claude-sonnet-4-20250514":   "CLAUDE_SONNET_4_20250514_V1_0",
				"claude-opus-4-1":            "CLAUDE_OPUS_4_1_20250805_V1_0",
				"claude-opus-4-1-20250805":   "CLAUDE_OPUS_4_1_20250805_V1_0",
				"claude-3-7-sonnet-20250219": "CLAUDE_3_7_SONNET_20250219_V1_0",
				"claude-3-5-haiku-20241022":  "CLAUDE_3_5_HAIKU_20241022_V1_0",
			},
		},
		{
			Provider: constant.ProviderAntigravity,
			Default:  "gemini-2.5-pro",
			OwnedBy:  "google",
			Aliases: map[string]string{
				"gemini-2.5-pro":        "gemini-2.5-pro",
				"gemini-2.5-flash":      "gemini-2.5-flash",
				"gemini-2.5-flash-lite": "gemini-2.5-flash-lite",
				"gemini-3-pro-preview":  "gemini-3-pro-preview",
				// Anthropic-shaped requests routed here keep working.
				"claude-sonnet-4-5": "gemini-2.5-pro",
			},
		},
		{
			Provider: constant.ProviderOrchids,
			Default:  "claude-sonnet-4-5",
			OwnedBy:  "anthropic",
			Aliases: map[string]string{
				"claude-sonnet-4-5":    "claude-sonnet-4-5",
				"claude-opus-4-1":      "claude-opus-4-1",
				"orchids-claude-fast":  "claude-3-5-haiku-20241022",
				"orchids-claude-smart": "claude-sonnet-4-5",
			},
		},
		{
			Provider: constant.ProviderAgent,
			Default:  "gpt-5",
			OwnedBy:  "openai",
			Aliases: map[string]string{
				"gpt-5":       "gpt-5",
				"gpt-5-codex": "gpt-5-codex",
				"gpt-4o":      "gpt-4o",
			},
		},
	}
}
