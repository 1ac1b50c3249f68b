package claude

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/translator"
)

// StreamEmitter renders normalized events as Anthropic SSE frames. It owns
// content-block index allocation and guarantees the Anthropic invariants:
// one message_start/message_stop pair, a text block is closed before a
// tool-use block opens, and every opened block is closed before message_stop.
type StreamEmitter struct {
	model      string
	messageID  string
	nextIndex  int
	openKind   string
	blockIndex int
	usage      translator.Usage
	stopReason string
	started    bool
}

// NewStreamEmitter creates an emitter for one response.
func NewStreamEmitter(model string) *StreamEmitter {
	return &StreamEmitter{
		model:      model,
		messageID:  "msg_" + uuid.NewString(),
		stopReason: translator.StopEndTurn,
	}
}

func frame(event string, data []byte) string {
	return fmt.Sprintf("event: %s\ndata: %s\n", event, data)
}

// Emit renders one normalized event as zero or more SSE frames.
func (e *StreamEmitter) Emit(ev translator.Event) []string {
	switch ev.Type {
	case translator.EventMessageStart:
		e.started = true
		if ev.MessageID != "" {
			e.messageID = ev.MessageID
		}
		data := []byte(`{"type":"message_start","message":{"type":"message","role":"assistant","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":0,"output_tokens":0}}}`)
		data, _ = sjson.SetBytes(data, "message.id", e.messageID)
		data, _ = sjson.SetBytes(data, "message.model", e.model)
		return []string{frame("message_start", data)}

	case translator.EventTextDelta:
		frames := e.ensureBlock("text", `{"type":"content_block_start","content_block":{"type":"text","text":""}}`)
		delta := []byte(`{"type":"content_block_delta","delta":{"type":"text_delta"}}`)
		delta, _ = sjson.SetBytes(delta, "index", e.blockIndex)
		delta, _ = sjson.SetBytes(delta, "delta.text", ev.Text)
		return append(frames, frame("content_block_delta", delta))

	case translator.EventReasoningDelta:
		// Reasoning rides a thinking block; open it like a text block.
		frames := e.ensureBlock("thinking", `{"type":"content_block_start","content_block":{"type":"thinking","thinking":""}}`)
		delta := []byte(`{"type":"content_block_delta","delta":{"type":"thinking_delta"}}`)
		delta, _ = sjson.SetBytes(delta, "index", e.blockIndex)
		delta, _ = sjson.SetBytes(delta, "delta.thinking", ev.Text)
		return append(frames, frame("content_block_delta", delta))

	case translator.EventToolUseStart:
		frames := e.closeBlock()
		start := []byte(`{"type":"content_block_start","content_block":{"type":"tool_use","input":{}}}`)
		start, _ = sjson.SetBytes(start, "index", e.nextIndex)
		start, _ = sjson.SetBytes(start, "content_block.id", ev.ToolID)
		start, _ = sjson.SetBytes(start, "content_block.name", ev.ToolName)
		frames = append(frames, frame("content_block_start", start))
		e.blockIndex = e.nextIndex
		e.nextIndex++
		e.openKind = "tool"
		e.stopReason = translator.StopToolUse
		if ev.ToolInput != "" {
			frames = append(frames, e.inputDelta(ev.ToolInput))
		}
		return frames

	case translator.EventToolUseInputDelta:
		if e.openKind != "tool" {
			return nil
		}
		return []string{e.inputDelta(ev.ToolInput)}

	case translator.EventToolUseStop:
		if e.openKind != "tool" {
			return nil
		}
		return e.closeBlock()

	case translator.EventUsageUpdate:
		if ev.Usage != nil {
			e.usage = *ev.Usage
		}
		return nil

	case translator.EventMessageStop:
		frames := e.closeBlock()
		if ev.StopReason != "" {
			e.stopReason = ev.StopReason
		}
		if ev.Usage != nil {
			e.usage = *ev.Usage
		}
		delta := []byte(`{"type":"message_delta","delta":{"stop_sequence":null},"usage":{}}`)
		delta, _ = sjson.SetBytes(delta, "delta.stop_reason", e.stopReason)
		delta, _ = sjson.SetBytes(delta, "usage.input_tokens", e.usage.InputTokens)
		delta, _ = sjson.SetBytes(delta, "usage.output_tokens", e.usage.OutputTokens)
		frames = append(frames, frame("message_delta", delta))
		frames = append(frames, frame("message_stop", []byte(`{"type":"message_stop"}`)))
		return frames

	case translator.EventError:
		msg := "stream error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		data := []byte(`{"type":"error","error":{"type":"api_error"}}`)
		data, _ = sjson.SetBytes(data, "error.message", msg)
		return []string{frame("error", data)}
	}
	return nil
}

func (e *StreamEmitter) inputDelta(partial string) string {
	delta := []byte(`{"type":"content_block_delta","delta":{"type":"input_json_delta"}}`)
	delta, _ = sjson.SetBytes(delta, "index", e.blockIndex)
	delta, _ = sjson.SetBytes(delta, "delta.partial_json", partial)
	return frame("content_block_delta", delta)
}

// ensureBlock closes any block of a different kind and opens one of the
// requested kind if needed, returning the frames produced along the way.
func (e *StreamEmitter) ensureBlock(kind, template string) []string {
	var frames []string
	if e.openKind != "" && e.openKind != kind {
		frames = append(frames, e.closeBlock()...)
	}
	if e.openKind == "" {
		start, _ := sjson.SetBytes([]byte(template), "index", e.nextIndex)
		frames = append(frames, frame("content_block_start", start))
		e.blockIndex = e.nextIndex
		e.nextIndex++
		e.openKind = kind
	}
	return frames
}

// closeBlock closes whichever block is open.
func (e *StreamEmitter) closeBlock() []string {
	if e.openKind == "" {
		return nil
	}
	e.openKind = ""
	return []string{e.blockStop()}
}

func (e *StreamEmitter) blockStop() string {
	stop := []byte(`{"type":"content_block_stop"}`)
	stop, _ = sjson.SetBytes(stop, "index", e.blockIndex)
	return frame("content_block_stop", stop)
}

// CollectResponse renders a completed event sequence as a non-streaming
// Anthropic Messages response.
func CollectResponse(model string, events []translator.Event) []byte {
	out := []byte(`{"type":"message","role":"assistant","content":[],"stop_sequence":null}`)
	out, _ = sjson.SetBytes(out, "id", "msg_"+uuid.NewString())
	out, _ = sjson.SetBytes(out, "model", model)

	type block struct {
		kind  string
		text  string
		id    string
		name  string
		input string
	}
	var blocks []block
	var usage translator.Usage
	stopReason := translator.StopEndTurn

	for _, ev := range events {
		switch ev.Type {
		case translator.EventTextDelta:
			if len(blocks) == 0 || blocks[len(blocks)-1].kind != "text" {
				blocks = append(blocks, block{kind: "text"})
			}
			blocks[len(blocks)-1].text += ev.Text
		case translator.EventReasoningDelta:
			if len(blocks) == 0 || blocks[len(blocks)-1].kind != "thinking" {
				blocks = append(blocks, block{kind: "thinking"})
			}
			blocks[len(blocks)-1].text += ev.Text
		case translator.EventToolUseStart:
			blocks = append(blocks, block{kind: "tool_use", id: ev.ToolID, name: ev.ToolName, input: ev.ToolInput})
			stopReason = translator.StopToolUse
		case translator.EventToolUseInputDelta:
			if len(blocks) > 0 && blocks[len(blocks)-1].kind == "tool_use" {
				blocks[len(blocks)-1].input += ev.ToolInput
			}
		case translator.EventUsageUpdate:
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		case translator.EventMessageStop:
			if ev.StopReason != "" {
				stopReason = ev.StopReason
			}
			if ev.Usage != nil {
				usage = *ev.Usage
			}
		}
	}

	for i, b := range blocks {
		base := fmt.Sprintf("content.%d", i)
		switch b.kind {
		case "text":
			out, _ = sjson.SetBytes(out, base+".type", "text")
			out, _ = sjson.SetBytes(out, base+".text", b.text)
		case "thinking":
			out, _ = sjson.SetBytes(out, base+".type", "thinking")
			out, _ = sjson.SetBytes(out, base+".thinking", b.text)
		case "tool_use":
			input := b.input
			if input == "" {
				input = "{}"
			}
			out, _ = sjson.SetBytes(out, base+".type", "tool_use")
			out, _ = sjson.SetBytes(out, base+".id", b.id)
			out, _ = sjson.SetBytes(out, base+".name", b.name)
			out, _ = sjson.SetRawBytes(out, base+".input", []byte(input))
		}
	}

	out, _ = sjson.SetBytes(out, "stop_reason", stopReason)
	out, _ = sjson.SetBytes(out, "usage.input_tokens", usage.InputTokens)
	out, _ = sjson.SetBytes(out, "usage.output_tokens", usage.OutputTokens)
	return out
}
