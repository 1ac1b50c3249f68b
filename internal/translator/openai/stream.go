package openai

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/translator"
)

// DoneFrame terminates an OpenAI SSE stream.
const DoneFrame = "data: [DONE]\n"

// StreamEmitter renders normalized events as chat.completion.chunk SSE
// frames. Tool calls get sequential indices within the single choice.
type StreamEmitter struct {
	model      string
	id         string
	created    int64
	toolIndex  int
	toolOpen   bool
	stopReason string
	usage      translator.Usage
}

// NewStreamEmitter creates an emitter for one response.
func NewStreamEmitter(model string) *StreamEmitter {
	return &StreamEmitter{
		model:      model,
		id:         "chatcmpl-" + uuid.NewString(),
		created:    time.Now().Unix(),
		toolIndex:  -1,
		stopReason: "stop",
	}
}

// chunk builds the shared chunk envelope with an empty delta.
func (e *StreamEmitter) chunk() []byte {
	out := []byte(`{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":null}]}`)
	out, _ = sjson.SetBytes(out, "id", e.id)
	out, _ = sjson.SetBytes(out, "model", e.model)
	out, _ = sjson.SetBytes(out, "created", e.created)
	return out
}

func frame(data []byte) string {
	return fmt.Sprintf("data: %s\n", data)
}

// Emit renders one normalized event as zero or more SSE frames.
func (e *StreamEmitter) Emit(ev translator.Event) []string {
	switch ev.Type {
	case translator.EventMessageStart:
		if ev.MessageID != "" {
			e.id = ev.MessageID
		}
		out := e.chunk()
		out, _ = sjson.SetBytes(out, "choices.0.delta.role", "assistant")
		out, _ = sjson.SetBytes(out, "choices.0.delta.content", "")
		return []string{frame(out)}

	case translator.EventTextDelta:
		out := e.chunk()
		out, _ = sjson.SetBytes(out, "choices.0.delta.content", ev.Text)
		return []string{frame(out)}

	case translator.EventReasoningDelta:
		out := e.chunk()
		out, _ = sjson.SetBytes(out, "choices.0.delta.reasoning_content", ev.Text)
		return []string{frame(out)}

	case translator.EventToolUseStart:
		e.toolIndex++
		e.toolOpen = true
		e.stopReason = "tool_calls"
		out := e.chunk()
		base := "choices.0.delta.tool_calls.0"
		out, _ = sjson.SetBytes(out, base+".index", e.toolIndex)
		out, _ = sjson.SetBytes(out, base+".id", ev.ToolID)
		out, _ = sjson.SetBytes(out, base+".type", "function")
		out, _ = sjson.SetBytes(out, base+".function.name", ev.ToolName)
		out, _ = sjson.SetBytes(out, base+".function.arguments", ev.ToolInput)
		return []string{frame(out)}

	case translator.EventToolUseInputDelta:
		if !e.toolOpen {
			return nil
		}
		out := e.chunk()
		base := "choices.0.delta.tool_calls.0"
		out, _ = sjson.SetBytes(out, base+".index", e.toolIndex)
		out, _ = sjson.SetBytes(out, base+".function.arguments", ev.ToolInput)
		return []string{frame(out)}

	case translator.EventToolUseStop:
		e.toolOpen = false
		return nil

	case translator.EventUsageUpdate:
		if ev.Usage != nil {
			e.usage = *ev.Usage
		}
		return nil

	case translator.EventMessageStop:
		if ev.StopReason != "" {
			e.stopReason = mapStopReason(ev.StopReason)
		}
		if ev.Usage != nil {
			e.usage = *ev.Usage
		}
		out := e.chunk()
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", e.stopReason)
		out, _ = sjson.SetBytes(out, "usage.prompt_tokens", e.usage.InputTokens)
		out, _ = sjson.SetBytes(out, "usage.completion_tokens", e.usage.OutputTokens)
		out, _ = sjson.SetBytes(out, "usage.total_tokens", e.usage.InputTokens+e.usage.OutputTokens)
		return []string{frame(out), DoneFrame}

	case translator.EventError:
		msg := "stream error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		out := []byte(`{"error":{"type":"api_error"}}`)
		out, _ = sjson.SetBytes(out, "error.message", msg)
		return []string{frame(out), DoneFrame}
	}
	return nil
}

func mapStopReason(reason string) string {
	switch reason {
	case translator.StopToolUse:
		return "tool_calls"
	case translator.StopMaxTokens:
		return "length"
	default:
		return "stop"
	}
}

// CollectResponse renders a completed event sequence as a non-streaming
// chat.completion response.
func CollectResponse(model string, events []translator.Event) []byte {
	out := []byte(`{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant"}}]}`)
	out, _ = sjson.SetBytes(out, "id", "chatcmpl-"+uuid.NewString())
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetBytes(out, "created", time.Now().Unix())

	text := ""
	reasoning := ""
	type call struct {
		id, name, args string
	}
	var calls []call
	var usage translator.Usage
	stopReason := "stop"

	for _, ev := range events {
		switch ev.Type {
		case translator.EventTextDelta:
			text += ev.Text
		case translator.EventReasoningDelta:
			reasoning += ev.Text
		case translator.EventToolUseStart:
			calls = append(calls, call{id: ev.ToolID, name: ev.ToolName, args: ev.ToolInput})
			stopReason = "tool_calls"
		case translator.EventToolUseInputDelta:
			if len(calls) > 0 {
				calls[len(calls)-1].args += ev.ToolInput
			}
		case translator.EventUsageUpdate:
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		case translator.EventMessageStop:
			if ev.StopReason != "" {
				stopReason = mapStopReason(ev.StopReason)
			}
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		}
	}

	out, _ = sjson.SetBytes(out, "choices.0.message.content", text)
	if reasoning != "" {
		out, _ = sjson.SetBytes(out, "choices.0.message.reasoning_content", reasoning)
	}
	for i, c := range calls {
		base := fmt.Sprintf("choices.0.message.tool_calls.%d", i)
		args := c.args
		if args == "" {
			args = "{}"
		}
		out, _ = sjson.SetBytes(out, base+".id", c.id)
		out, _ = sjson.SetBytes(out, base+".type", "function")
		out, _ = sjson.SetBytes(out, base+".function.name", c.name)
		out, _ = sjson.SetBytes(out, base+".function.arguments", args)
	}
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason", stopReason)
	out, _ = sjson.SetBytes(out, "usage.prompt_tokens", usage.InputTokens)
	out, _ = sjson.SetBytes(out, "usage.completion_tokens", usage.OutputTokens)
	out, _ = sjson.SetBytes(out, "usage.total_tokens", usage.InputTokens+usage.OutputTokens)
	return out
}
