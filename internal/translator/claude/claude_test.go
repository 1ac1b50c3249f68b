package claude

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/tanaikit/pool2api/internal/translator"
)

const sampleRequest = `{
	"model": "claude-sonnet-4-5",
	"max_tokens": 1024,
	"system": "be terse",
	"stream": true,
	"messages": [
		{"role": "user", "content": "list the files"},
		{"role": "assistant", "content": [
			{"type": "text", "text": "on it"},
			{"type": "tool_use", "id": "toolu_1", "name": "Bash", "input": {"command": "ls"}}
		]},
		{"role": "user", "content": [
			{"type": "tool_result", "tool_use_id": "toolu_1", "content": "a.txt\nb.txt"}
		]}
	],
	"tools": [
		{"name": "Bash", "description": "run a command", "input_schema": {"type": "object"}}
	]
}`

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(sampleRequest))
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5", req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.Equal(t, "be terse", req.System)
	assert.True(t, req.Stream)
	require.Len(t, req.Turns, 3)

	assert.Equal(t, translator.PartText, req.Turns[0].Parts[0].Type)
	assert.Equal(t, "list the files", req.Turns[0].Parts[0].Text)

	toolUse := req.Turns[1].Parts[1]
	assert.Equal(t, translator.PartToolUse, toolUse.Type)
	assert.Equal(t, "toolu_1", toolUse.ToolID)
	assert.Equal(t, "Bash", toolUse.ToolName)
	assert.JSONEq(t, `{"command":"ls"}`, toolUse.ToolInput)

	result := req.Turns[2].Parts[0]
	assert.Equal(t, translator.PartToolResult, result.Type)
	assert.Equal(t, "a.txt\nb.txt", result.Result)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "Bash", req.Tools[0].Name)
	assert.Equal(t, "toolu_1", req.Turns[2].Parts[0].ToolID)
	assert.Equal(t, "Bash", req.ToolNameByID("toolu_1"))
}

func TestParseRequestRejectsBadInput(t *testing.T) {
	_, err := ParseRequest([]byte(`{"messages":[]}`))
	assert.Error(t, err, "missing model")

	_, err = ParseRequest([]byte(`{"model":"m"}`))
	assert.Error(t, err, "missing messages")

	_, err = ParseRequest([]byte(`{"model":"m","messages":[{"role":"system","content":"x"}]}`))
	assert.Error(t, err, "unsupported role")
}

func TestRequestRoundTrip(t *testing.T) {
	first, err := ParseRequest([]byte(sampleRequest))
	require.NoError(t, err)

	second, err := ParseRequest(EmitRequest(first))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStreamEmitterInvariants(t *testing.T) {
	e := NewStreamEmitter("claude-sonnet-4-5")
	events := []translator.Event{
		{Type: translator.EventMessageStart, MessageID: "msg_test"},
		{Type: translator.EventTextDelta, Text: "hello "},
		{Type: translator.EventTextDelta, Text: "world"},
		{Type: translator.EventToolUseStart, ToolID: "toolu_1", ToolName: "Bash"},
		{Type: translator.EventToolUseInputDelta, ToolInput: `{"command":`},
		{Type: translator.EventToolUseInputDelta, ToolInput: `"ls"}`},
		{Type: translator.EventToolUseStop},
		{Type: translator.EventMessageStop, StopReason: translator.StopToolUse, Usage: &translator.Usage{InputTokens: 10, OutputTokens: 20}},
	}

	var frames []string
	for _, ev := range events {
		frames = append(frames, e.Emit(ev)...)
	}
	joined := strings.Join(frames, "\n")

	assert.Equal(t, 1, strings.Count(joined, "event: message_start"))
	assert.Equal(t, 1, strings.Count(joined, "event: message_stop"))
	assert.Equal(t, 2, strings.Count(joined, "event: content_block_start"))
	assert.Equal(t, 2, strings.Count(joined, "event: content_block_stop"))

	// The text block closes before the tool block opens.
	firstStop := strings.Index(joined, "event: content_block_stop")
	toolStart := strings.Index(joined, `"tool_use"`)
	require.Greater(t, toolStart, 0)
	assert.Less(t, firstStop, toolStart)

	// The final delta carries stop reason and accumulated usage.
	assert.Contains(t, joined, `"stop_reason":"tool_use"`)
	assert.Contains(t, joined, `"output_tokens":20`)
}

func TestStreamEmitterSeparatesThinkingFromText(t *testing.T) {
	e := NewStreamEmitter("claude-sonnet-4-5")
	var frames []string
	frames = append(frames, e.Emit(translator.Event{Type: translator.EventMessageStart})...)
	frames = append(frames, e.Emit(translator.Event{Type: translator.EventReasoningDelta, Text: "hmm"})...)
	frames = append(frames, e.Emit(translator.Event{Type: translator.EventTextDelta, Text: "answer"})...)
	frames = append(frames, e.Emit(translator.Event{Type: translator.EventMessageStop})...)

	joined := strings.Join(frames, "\n")
	assert.Equal(t, 2, strings.Count(joined, "event: content_block_start"), "thinking and text get separate blocks")
	assert.Contains(t, joined, `"thinking_delta"`)
	assert.Contains(t, joined, `"text_delta"`)
}

func TestCollectResponse(t *testing.T) {
	events := []translator.Event{
		{Type: translator.EventMessageStart},
		{Type: translator.EventTextDelta, Text: "running ls"},
		{Type: translator.EventToolUseStart, ToolID: "toolu_1", ToolName: "Bash"},
		{Type: translator.EventToolUseInputDelta, ToolInput: `{"command":"ls"}`},
		{Type: translator.EventToolUseStop},
		{Type: translator.EventMessageStop, Usage: &translator.Usage{InputTokens: 5, OutputTokens: 9}},
	}
	body := CollectResponse("claude-sonnet-4-5", events)
	root := gjson.ParseBytes(body)

	assert.Equal(t, "message", root.Get("type").String())
	assert.Equal(t, "tool_use", root.Get("stop_reason").String())
	require.Equal(t, int64(2), root.Get("content.#").Int())
	assert.Equal(t, "running ls", root.Get("content.0.text").String())
	assert.Equal(t, "Bash", root.Get("content.1.name").String())
	assert.JSONEq(t, `{"command":"ls"}`, root.Get("content.1.input").Raw)
	assert.Equal(t, int64(9), root.Get("usage.output_tokens").Int())
}

func TestErrorBody(t *testing.T) {
	body := ErrorBody(429, "slow down")
	root := gjson.ParseBytes(body)
	assert.Equal(t, "rate_limit_error", root.Get("error.type").String())
	assert.Equal(t, "slow down", root.Get("error.message").String())
}
