package gemini

import (
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/translator"
)

// StreamEmitter renders normalized events as streamGenerateContent SSE
// frames. Gemini streams carry complete functionCall parts, so tool input
// deltas are buffered until the tool-use block closes.
type StreamEmitter struct {
	model      string
	toolOpen   bool
	toolName   string
	toolInput  string
	usage      translator.Usage
	stopReason string
}

// NewStreamEmitter creates an emitter for one response.
func NewStreamEmitter(model string) *StreamEmitter {
	return &StreamEmitter{model: model, stopReason: "STOP"}
}

func frame(data []byte) string {
	return fmt.Sprintf("data: %s\n", data)
}

// envelope builds the shared candidate chunk.
func (e *StreamEmitter) envelope() []byte {
	out := []byte(`{"candidates":[{"content":{"role":"model","parts":[]},"index":0}]}`)
	out, _ = sjson.SetBytes(out, "modelVersion", e.model)
	return out
}

// Emit renders one normalized event as zero or more SSE frames.
func (e *StreamEmitter) Emit(ev translator.Event) []string {
	switch ev.Type {
	case translator.EventMessageStart:
		return nil

	case translator.EventTextDelta:
		out := e.envelope()
		out, _ = sjson.SetBytes(out, "candidates.0.content.parts.0.text", ev.Text)
		return []string{frame(out)}

	case translator.EventReasoningDelta:
		out := e.envelope()
		out, _ = sjson.SetBytes(out, "candidates.0.content.parts.0.text", ev.Text)
		out, _ = sjson.SetBytes(out, "candidates.0.content.parts.0.thought", true)
		return []string{frame(out)}

	case translator.EventToolUseStart:
		e.toolOpen = true
		e.toolName = ev.ToolName
		e.toolInput = ev.ToolInput
		e.stopReason = "STOP"
		return nil

	case translator.EventToolUseInputDelta:
		if e.toolOpen {
			e.toolInput += ev.ToolInput
		}
		return nil

	case translator.EventToolUseStop:
		if !e.toolOpen {
			return nil
		}
		e.toolOpen = false
		input := e.toolInput
		if input == "" {
			input = "{}"
		}
		out := e.envelope()
		out, _ = sjson.SetBytes(out, "candidates.0.content.parts.0.functionCall.name", e.toolName)
		out, _ = sjson.SetRawBytes(out, "candidates.0.content.parts.0.functionCall.args", []byte(input))
		e.toolName = ""
		e.toolInput = ""
		return []string{frame(out)}

	case translator.EventUsageUpdate:
		if ev.Usage != nil {
			e.usage = *ev.Usage
		}
		return nil

	case translator.EventMessageStop:
		var frames []string
		// Flush a tool call the adapter never closed explicitly.
		if e.toolOpen {
			frames = append(frames, e.Emit(translator.Event{Type: translator.EventToolUseStop})...)
		}
		if ev.StopReason != "" {
			e.stopReason = mapFinishReason(ev.StopReason)
		}
		if ev.Usage != nil {
			e.usage = *ev.Usage
		}
		out := e.envelope()
		out, _ = sjson.SetBytes(out, "candidates.0.finishReason", e.stopReason)
		out, _ = sjson.SetBytes(out, "usageMetadata.promptTokenCount", e.usage.InputTokens)
		out, _ = sjson.SetBytes(out, "usageMetadata.candidatesTokenCount", e.usage.OutputTokens)
		out, _ = sjson.SetBytes(out, "usageMetadata.totalTokenCount", e.usage.InputTokens+e.usage.OutputTokens)
		return append(frames, frame(out))

	case translator.EventError:
		msg := "stream error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		out := []byte(`{"error":{"code":500,"status":"INTERNAL"}}`)
		out, _ = sjson.SetBytes(out, "error.message", msg)
		return []string{frame(out)}
	}
	return nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case translator.StopMaxTokens:
		return "MAX_TOKENS"
	default:
		return "STOP"
	}
}

// CollectResponse renders a completed event sequence as a non-streaming
// generateContent response.
func CollectResponse(model string, events []translator.Event) []byte {
	out := []byte(`{"candidates":[{"content":{"role":"model","parts":[]},"index":0}]}`)
	out, _ = sjson.SetBytes(out, "modelVersion", model)

	type part struct {
		kind    string
		text    string
		name    string
		input   string
		thought bool
	}
	var parts []part
	var usage translator.Usage
	finish := "STOP"

	for _, ev := range events {
		switch ev.Type {
		case translator.EventTextDelta:
			if len(parts) == 0 || parts[len(parts)-1].kind != "text" || parts[len(parts)-1].thought {
				parts = append(parts, part{kind: "text"})
			}
			parts[len(parts)-1].text += ev.Text
		case translator.EventReasoningDelta:
			if len(parts) == 0 || parts[len(parts)-1].kind != "text" || !parts[len(parts)-1].thought {
				parts = append(parts, part{kind: "text", thought: true})
			}
			parts[len(parts)-1].text += ev.Text
		case translator.EventToolUseStart:
			parts = append(parts, part{kind: "call", name: ev.ToolName, input: ev.ToolInput})
		case translator.EventToolUseInputDelta:
			if len(parts) > 0 && parts[len(parts)-1].kind == "call" {
				parts[len(parts)-1].input += ev.ToolInput
			}
		case translator.EventUsageUpdate:
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		case translator.EventMessageStop:
			if ev.StopReason != "" {
				finish = mapFinishReason(ev.StopReason)
			}
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		}
	}

	for i, p := range parts {
		base := fmt.Sprintf("candidates.0.content.parts.%d", i)
		switch p.kind {
		case "text":
			out, _ = sjson.SetBytes(out, base+".text", p.text)
			if p.thought {
				out, _ = sjson.SetBytes(out, base+".thought", true)
			}
		case "call":
			input := p.input
			if input == "" {
				input = "{}"
			}
			out, _ = sjson.SetBytes(out, base+".functionCall.name", p.name)
			out, _ = sjson.SetRawBytes(out, base+".functionCall.args", []byte(input))
		}
	}

	out, _ = sjson.SetBytes(out, "candidates.0.finishReason", finish)
	out, _ = sjson.SetBytes(out, "usageMetadata.promptTokenCount", usage.InputTokens)
	out, _ = sjson.SetBytes(out, "usageMetadata.candidatesTokenCount", usage.OutputTokens)
	out, _ = sjson.SetBytes(out, "usageMetadata.totalTokenCount", usage.InputTokens+usage.OutputTokens)
	return out
}
