package agentproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeRequestWireShape(t *testing.T) {
	req := &Request{
		Task: &Task{
			ID: "task-1",
			Messages: []Message{
				{Role: RoleUser, Text: "list files"},
				{Role: RoleAssistant, ToolCalls: []ToolCall{
					{ID: "c1", Tool: ToolShell, ArgsJSON: `{"command":"ls"}`},
				}},
				{Role: RoleUser, ToolResults: []ToolResult{
					{CallID: "c1", Output: "a.txt", IsError: true},
				}},
			},
			Context: &InputContext{SystemPrompt: "be terse"},
			Tools: []ToolDefinition{
				{Tool: ToolShell, Description: "run a command", SchemaJSON: `{"type":"object"}`},
			},
		},
		Model:     "gpt-5",
		Stream:    true,
		MaxTokens: 2048,
	}

	b := EncodeRequest(req)
	require.NotEmpty(t, b)

	// Walk the top-level fields.
	var sawTask, sawModel, sawStream, sawMax bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0)
		b = b[n:]
		switch num {
		case 1:
			require.Equal(t, protowire.BytesType, typ)
			body, n := protowire.ConsumeBytes(b)
			require.GreaterOrEqual(t, n, 0)
			b = b[n:]
			sawTask = len(body) > 0
		case 2:
			s, n := protowire.ConsumeString(b)
			require.GreaterOrEqual(t, n, 0)
			b = b[n:]
			assert.Equal(t, "gpt-5", s)
			sawModel = true
		case 3:
			v, n := protowire.ConsumeVarint(b)
			require.GreaterOrEqual(t, n, 0)
			b = b[n:]
			assert.Equal(t, uint64(1), v)
			sawStream = true
		case 4:
			v, n := protowire.ConsumeVarint(b)
			require.GreaterOrEqual(t, n, 0)
			b = b[n:]
			assert.Equal(t, uint64(2048), v)
			sawMax = true
		default:
			t.Fatalf("unexpected top-level field %d", num)
		}
	}
	assert.True(t, sawTask)
	assert.True(t, sawModel)
	assert.True(t, sawStream)
	assert.True(t, sawMax)
}

func TestDecodeResponseEventOutput(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "hello")

	ev, err := DecodeResponseEvent(b)
	require.NoError(t, err)
	assert.Equal(t, "hello", ev.AgentOutput)
	assert.Nil(t, ev.ToolCall)
	assert.Nil(t, ev.Finished)
}

func TestDecodeResponseEventToolCall(t *testing.T) {
	var call []byte
	call = protowire.AppendTag(call, 1, protowire.BytesType)
	call = protowire.AppendString(call, "c1")
	call = protowire.AppendTag(call, 2, protowire.VarintType)
	call = protowire.AppendVarint(call, uint64(ToolGrepSearch))
	call = protowire.AppendTag(call, 4, protowire.BytesType)
	call = protowire.AppendString(call, `{"pattern":"x"}`)

	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, call)

	ev, err := DecodeResponseEvent(b)
	require.NoError(t, err)
	require.NotNil(t, ev.ToolCall)
	assert.Equal(t, "c1", ev.ToolCall.ID)
	assert.Equal(t, ToolGrepSearch, ev.ToolCall.Tool)
	assert.Equal(t, `{"pattern":"x"}`, ev.ToolCall.ArgsJSON)
}

func TestDecodeResponseEventFinished(t *testing.T) {
	var fin []byte
	fin = protowire.AppendTag(fin, 1, protowire.VarintType)
	fin = protowire.AppendVarint(fin, 12)
	fin = protowire.AppendTag(fin, 2, protowire.VarintType)
	fin = protowire.AppendVarint(fin, 34)
	fin = protowire.AppendTag(fin, 3, protowire.BytesType)
	fin = protowire.AppendString(fin, "end_turn")

	var b []byte
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, fin)

	ev, err := DecodeResponseEvent(b)
	require.NoError(t, err)
	require.NotNil(t, ev.Finished)
	assert.Equal(t, int64(12), ev.Finished.InputTokens)
	assert.Equal(t, int64(34), ev.Finished.OutputTokens)
	assert.Equal(t, "end_turn", ev.Finished.StopReason)
}

func TestDecodeResponseEventSkipsUnknownFields(t *testing.T) {
	var b []byte
	// A field the schema does not define yet.
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "still works")

	ev, err := DecodeResponseEvent(b)
	require.NoError(t, err)
	assert.Equal(t, "still works", ev.AgentOutput)
}

func TestDecodeResponseEventTruncated(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "hello")

	_, err := DecodeResponseEvent(b[:len(b)-2])
	assert.Error(t, err)
}

func TestToolTypeNames(t *testing.T) {
	assert.Equal(t, "run_shell_command", ToolShell.Name())
	assert.Equal(t, "", ToolUnspecified.Name())
	assert.Equal(t, ToolApplyDiffs, ToolTypeForName("apply_file_diffs"))
	assert.Equal(t, ToolMCP, ToolTypeForName("mcp__jira_search"), "unknown names fall back to MCP")
}
