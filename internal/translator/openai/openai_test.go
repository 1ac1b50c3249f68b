package openai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/tanaikit/pool2api/internal/translator"
)

const sampleRequest = `{
	"model": "gpt-5",
	"max_tokens": 2048,
	"stream": true,
	"messages": [
		{"role": "system", "content": "be terse"},
		{"role": "user", "content": "list the files"},
		{"role": "assistant", "content": "on it", "tool_calls": [
			{"id": "call_1", "type": "function", "function": {"name": "Bash", "arguments": "{\"command\":\"ls\"}"}}
		]},
		{"role": "tool", "tool_call_id": "call_1", "content": "a.txt"},
		{"role": "tool", "tool_call_id": "call_2", "content": "b.txt"}
	],
	"tools": [
		{"type": "function", "function": {"name": "Bash", "description": "run a command", "parameters": {"type": "object"}}}
	]
}`

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(sampleRequest))
	require.NoError(t, err)

	assert.Equal(t, "gpt-5", req.Model)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.Equal(t, "be terse", req.System)
	assert.True(t, req.Stream)

	// system is lifted out; consecutive tool messages fold into one turn.
	require.Len(t, req.Turns, 3)
	assert.Equal(t, "user", req.Turns[0].Role)
	assert.Equal(t, "assistant", req.Turns[1].Role)

	assistant := req.Turns[1]
	require.Len(t, assistant.Parts, 2)
	assert.Equal(t, translator.PartText, assistant.Parts[0].Type)
	assert.Equal(t, translator.PartToolUse, assistant.Parts[1].Type)
	assert.Equal(t, "call_1", assistant.Parts[1].ToolID)
	assert.JSONEq(t, `{"command":"ls"}`, assistant.Parts[1].ToolInput)

	results := req.Turns[2]
	assert.Equal(t, "user", results.Role)
	require.Len(t, results.Parts, 2)
	assert.Equal(t, translator.PartToolResult, results.Parts[0].Type)
	assert.Equal(t, "call_2", results.Parts[1].ToolID)
	assert.Equal(t, "b.txt", results.Parts[1].Result)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "Bash", req.Tools[0].Name)
}

func TestParseRequestMaxCompletionTokens(t *testing.T) {
	req, err := ParseRequest([]byte(`{"model":"m","max_completion_tokens":64,"messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 64, req.MaxTokens)
}

func TestRequestRoundTrip(t *testing.T) {
	first, err := ParseRequest([]byte(sampleRequest))
	require.NoError(t, err)

	second, err := ParseRequest(EmitRequest(first))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEmitRequestUnfoldsToolResults(t *testing.T) {
	req := &translator.ChatRequest{
		Model: "gpt-5",
		Turns: []translator.Turn{
			{Role: "user", Parts: []translator.Part{
				{Type: translator.PartToolResult, ToolID: "call_1", Result: "a.txt"},
				{Type: translator.PartToolResult, ToolID: "call_2", Result: "b.txt"},
			}},
		},
	}
	root := gjson.ParseBytes(EmitRequest(req))
	require.Equal(t, int64(2), root.Get("messages.#").Int())
	assert.Equal(t, "tool", root.Get("messages.0.role").String())
	assert.Equal(t, "call_1", root.Get("messages.0.tool_call_id").String())
	assert.Equal(t, "tool", root.Get("messages.1.role").String())
	assert.Equal(t, "b.txt", root.Get("messages.1.content").String())
}

func TestEmitRequestMixedTurnKeepsEveryToolResult(t *testing.T) {
	req := &translator.ChatRequest{
		Model: "gpt-5",
		Turns: []translator.Turn{
			{Role: "user", Parts: []translator.Part{
				{Type: translator.PartText, Text: "both ran"},
				{Type: translator.PartToolResult, ToolID: "call_1", Result: "a.txt"},
				{Type: translator.PartToolResult, ToolID: "call_2", Result: "b.txt"},
			}},
			{Role: "user", Parts: []translator.Part{{Type: translator.PartText, Text: "next"}}},
		},
	}
	root := gjson.ParseBytes(EmitRequest(req))

	require.Equal(t, int64(4), root.Get("messages.#").Int())
	assert.Equal(t, "both ran", root.Get("messages.0.content").String())
	assert.Equal(t, "call_1", root.Get("messages.1.tool_call_id").String())
	assert.Equal(t, "call_2", root.Get("messages.2.tool_call_id").String())
	assert.Equal(t, "b.txt", root.Get("messages.2.content").String())
	assert.Equal(t, "next", root.Get("messages.3.content").String(), "the following turn lands after every tool message")
}

func TestStreamEmitter(t *testing.T) {
	e := NewStreamEmitter("gpt-5")
	events := []translator.Event{
		{Type: translator.EventMessageStart},
		{Type: translator.EventTextDelta, Text: "run"},
		{Type: translator.EventToolUseStart, ToolID: "call_1", ToolName: "Bash"},
		{Type: translator.EventToolUseInputDelta, ToolInput: `{"command":"ls"}`},
		{Type: translator.EventToolUseStop},
		{Type: translator.EventMessageStop, StopReason: translator.StopToolUse, Usage: &translator.Usage{InputTokens: 3, OutputTokens: 7}},
	}

	var frames []string
	for _, ev := range events {
		frames = append(frames, e.Emit(ev)...)
	}

	require.NotEmpty(t, frames)
	assert.Equal(t, DoneFrame, frames[len(frames)-1], "stream ends with the [DONE] sentinel")

	for _, f := range frames[:len(frames)-1] {
		require.True(t, strings.HasPrefix(f, "data: "))
		chunk := gjson.Parse(strings.TrimPrefix(strings.TrimSuffix(f, "\n"), "data: "))
		assert.Equal(t, "chat.completion.chunk", chunk.Get("object").String())
	}

	finish := gjson.Parse(strings.TrimPrefix(strings.TrimSuffix(frames[len(frames)-2], "\n"), "data: "))
	assert.Equal(t, "tool_calls", finish.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(10), finish.Get("usage.total_tokens").Int())
}

func TestStreamEmitterMapsMaxTokens(t *testing.T) {
	e := NewStreamEmitter("gpt-5")
	frames := e.Emit(translator.Event{Type: translator.EventMessageStop, StopReason: translator.StopMaxTokens})
	require.Len(t, frames, 2)
	chunk := gjson.Parse(strings.TrimPrefix(strings.TrimSuffix(frames[0], "\n"), "data: "))
	assert.Equal(t, "length", chunk.Get("choices.0.finish_reason").String())
}

func TestCollectResponse(t *testing.T) {
	events := []translator.Event{
		{Type: translator.EventMessageStart},
		{Type: translator.EventReasoningDelta, Text: "hmm"},
		{Type: translator.EventTextDelta, Text: "done"},
		{Type: translator.EventToolUseStart, ToolID: "call_1", ToolName: "Bash"},
		{Type: translator.EventToolUseInputDelta, ToolInput: `{"command":"ls"}`},
		{Type: translator.EventToolUseStop},
		{Type: translator.EventMessageStop, Usage: &translator.Usage{InputTokens: 4, OutputTokens: 6}},
	}
	root := gjson.ParseBytes(CollectResponse("gpt-5", events))

	assert.Equal(t, "chat.completion", root.Get("object").String())
	assert.Equal(t, "done", root.Get("choices.0.message.content").String())
	assert.Equal(t, "hmm", root.Get("choices.0.message.reasoning_content").String())
	assert.Equal(t, "Bash", root.Get("choices.0.message.tool_calls.0.function.name").String())
	assert.Equal(t, "tool_calls", root.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(10), root.Get("usage.total_tokens").Int())
}

func TestErrorBody(t *testing.T) {
	root := gjson.ParseBytes(ErrorBody(401, "bad key"))
	assert.Equal(t, "authentication_error", root.Get("error.type").String())
	assert.Equal(t, "bad key", root.Get("error.message").String())
	assert.True(t, root.Get("error.param").Exists())
}
