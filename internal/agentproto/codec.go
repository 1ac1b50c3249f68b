package agentproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeRequest serializes a Request.
func EncodeRequest(r *Request) []byte {
	var b []byte
	if r.Task != nil {
		b = appendMessage(b, 1, encodeTask(r.Task))
	}
	if r.Model != "" {
		b = appendString(b, 2, r.Model)
	}
	if r.Stream {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if r.MaxTokens > 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.MaxTokens))
	}
	return b
}

func encodeTask(t *Task) []byte {
	var b []byte
	if t.ID != "" {
		b = appendString(b, 1, t.ID)
	}
	for _, m := range t.Messages {
		b = appendMessage(b, 2, encodeMessage(&m))
	}
	if t.Context != nil {
		b = appendMessage(b, 3, encodeContext(t.Context))
	}
	for _, d := range t.Tools {
		b = appendMessage(b, 4, encodeToolDefinition(&d))
	}
	return b
}

func encodeMessage(m *Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Role))
	if m.Text != "" {
		b = appendString(b, 2, m.Text)
	}
	for _, c := range m.ToolCalls {
		b = appendMessage(b, 3, encodeToolCall(&c))
	}
	for _, r := range m.ToolResults {
		b = appendMessage(b, 4, encodeToolResult(&r))
	}
	return b
}

func encodeContext(c *InputContext) []byte {
	var b []byte
	if c.SystemPrompt != "" {
		b = appendString(b, 1, c.SystemPrompt)
	}
	for _, f := range c.Files {
		var fb []byte
		fb = appendString(fb, 1, f.Path)
		fb = appendString(fb, 2, f.Content)
		b = appendMessage(b, 2, fb)
	}
	return b
}

func encodeToolCall(c *ToolCall) []byte {
	var b []byte
	if c.ID != "" {
		b = appendString(b, 1, c.ID)
	}
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Tool))
	if c.Name != "" {
		b = appendString(b, 3, c.Name)
	}
	if c.ArgsJSON != "" {
		b = appendString(b, 4, c.ArgsJSON)
	}
	return b
}

func encodeToolResult(r *ToolResult) []byte {
	var b []byte
	b = appendString(b, 1, r.CallID)
	b = appendString(b, 2, r.Output)
	if r.IsError {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func encodeToolDefinition(d *ToolDefinition) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Tool))
	if d.Name != "" {
		b = appendString(b, 2, d.Name)
	}
	if d.Description != "" {
		b = appendString(b, 3, d.Description)
	}
	if d.SchemaJSON != "" {
		b = appendString(b, 4, d.SchemaJSON)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// DecodeResponseEvent parses one ResponseEvent message. Unknown fields are
// skipped so the upstream can extend the schema.
func DecodeResponseEvent(b []byte) (*ResponseEvent, error) {
	ev := &ResponseEvent{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("response event: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("agent_output: %w", protowire.ParseError(n))
			}
			ev.AgentOutput = s
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			body, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("tool_call: %w", protowire.ParseError(n))
			}
			call, err := decodeToolCall(body)
			if err != nil {
				return nil, err
			}
			ev.ToolCall = call
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			body, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("stream_finished: %w", protowire.ParseError(n))
			}
			fin, err := decodeStreamFinished(body)
			if err != nil {
				return nil, err
			}
			ev.Finished = fin
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("error: %w", protowire.ParseError(n))
			}
			ev.ErrorText = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return ev, nil
}

func decodeToolCall(b []byte) (*ToolCall, error) {
	call := &ToolCall{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("tool_call: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			call.ID = s
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			call.Tool = ToolType(v)
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			call.Name = s
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			call.ArgsJSON = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return call, nil
}

func decodeStreamFinished(b []byte) (*StreamFinished, error) {
	fin := &StreamFinished{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("stream_finished: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fin.InputTokens = int64(v)
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fin.OutputTokens = int64(v)
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fin.StopReason = s
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return fin, nil
}
