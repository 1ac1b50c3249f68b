// Package openai implements the OpenAI Chat Completions wire format: request
// parsing into the internal normal form, request emission, and rendering of
// normalized event streams as chat.completion.chunk SSE.
package openai

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/translator"
)

func init() {
	translator.RegisterFormat(constant.OpenAI, translator.Format{
		ParseRequest:     ParseRequest,
		EmitRequest:      EmitRequest,
		NewStreamEmitter: func(model string) translator.StreamEmitter { return NewStreamEmitter(model) },
		CollectResponse:  CollectResponse,
		ErrorBody:        ErrorBody,
	})
}

// ParseRequest converts an OpenAI Chat Completions request body into the
// internal normal form. Consecutive tool messages fold into a single user
// turn carrying the tool results.
func ParseRequest(raw []byte) (*translator.ChatRequest, error) {
	root := gjson.ParseBytes(raw)
	model := root.Get("model").String()
	if model == "" {
		return nil, fmt.Errorf("missing model")
	}
	if !root.Get("messages").IsArray() {
		return nil, fmt.Errorf("missing messages")
	}

	req := &translator.ChatRequest{
		Model:  model,
		Stream: root.Get("stream").Bool(),
	}
	if v := root.Get("max_tokens"); v.Exists() {
		req.MaxTokens = int(v.Int())
	} else if v := root.Get("max_completion_tokens"); v.Exists() {
		req.MaxTokens = int(v.Int())
	}
	if t := root.Get("temperature"); t.Exists() {
		v := t.Float()
		req.Temperature = &v
	}
	if t := root.Get("top_p"); t.Exists() {
		v := t.Float()
		req.TopP = &v
	}

	var parseErr error
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		switch role {
		case "system", "developer":
			if req.System != "" {
				req.System += "\n"
			}
			req.System += contentText(msg.Get("content"))
		case "user":
			req.Turns = append(req.Turns, translator.Turn{
				Role:  "user",
				Parts: []translator.Part{{Type: translator.PartText, Text: contentText(msg.Get("content"))}},
			})
		case "assistant":
			turn := translator.Turn{Role: "assistant"}
			if text := contentText(msg.Get("content")); text != "" {
				turn.Parts = append(turn.Parts, translator.Part{Type: translator.PartText, Text: text})
			}
			msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
				args := call.Get("function.arguments").String()
				if args == "" {
					args = "{}"
				}
				turn.Parts = append(turn.Parts, translator.Part{
					Type:      translator.PartToolUse,
					ToolID:    call.Get("id").String(),
					ToolName:  call.Get("function.name").String(),
					ToolInput: args,
				})
				return true
			})
			req.Turns = append(req.Turns, turn)
		case "tool":
			part := translator.Part{
				Type:   translator.PartToolResult,
				ToolID: msg.Get("tool_call_id").String(),
				Result: contentText(msg.Get("content")),
			}
			// Tool results ride a user turn; merge with the previous one when
			// the provider sent several back to back.
			if n := len(req.Turns); n > 0 && req.Turns[n-1].Role == "user" && onlyResults(req.Turns[n-1]) {
				req.Turns[n-1].Parts = append(req.Turns[n-1].Parts, part)
			} else {
				req.Turns = append(req.Turns, translator.Turn{Role: "user", Parts: []translator.Part{part}})
			}
		default:
			parseErr = fmt.Errorf("unsupported message role %q", role)
			return false
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("type").String() != "function" {
			return true
		}
		fn := tool.Get("function")
		schema := fn.Get("parameters").Raw
		if schema == "" {
			schema = "{}"
		}
		req.Tools = append(req.Tools, translator.Tool{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			InputSchema: schema,
		})
		return true
	})

	return req, nil
}

// contentText reduces an OpenAI content value (string or part array) to
// plain text.
func contentText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		out := ""
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				out += part.Get("text").String()
			}
			return true
		})
		return out
	}
	return ""
}

func onlyResults(turn translator.Turn) bool {
	for _, part := range turn.Parts {
		if part.Type != translator.PartToolResult {
			return false
		}
	}
	return len(turn.Parts) > 0
}

// EmitRequest renders the normal form as an OpenAI Chat Completions request
// body. Tool results become role:"tool" messages.
func EmitRequest(req *translator.ChatRequest) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", req.Model)
	if req.MaxTokens > 0 {
		out, _ = sjson.SetBytes(out, "max_tokens", req.MaxTokens)
	}
	if req.Stream {
		out, _ = sjson.SetBytes(out, "stream", true)
	}
	if req.Temperature != nil {
		out, _ = sjson.SetBytes(out, "temperature", *req.Temperature)
	}
	if req.TopP != nil {
		out, _ = sjson.SetBytes(out, "top_p", *req.TopP)
	}

	out, _ = sjson.SetRawBytes(out, "messages", []byte(`[]`))
	idx := 0
	set := func(path string, value interface{}) {
		out, _ = sjson.SetBytes(out, path, value)
	}
	if req.System != "" {
		base := fmt.Sprintf("messages.%d", idx)
		set(base+".role", "system")
		set(base+".content", req.System)
		idx++
	}
	for _, turn := range req.Turns {
		if turn.Role == "user" && onlyResults(turn) {
			// Unfold merged tool results into individual tool messages.
			for _, part := range turn.Parts {
				base := fmt.Sprintf("messages.%d", idx)
				set(base+".role", "tool")
				set(base+".tool_call_id", part.ToolID)
				set(base+".content", part.Result)
				idx++
			}
			continue
		}
		base := fmt.Sprintf("messages.%d", idx)
		set(base+".role", turn.Role)
		text := ""
		callIdx := 0
		// Tool results inside a mixed turn each become their own tool
		// message appended after this one.
		appended := 0
		for _, part := range turn.Parts {
			switch part.Type {
			case translator.PartText:
				text += part.Text
			case translator.PartToolUse:
				callBase := fmt.Sprintf("%s.tool_calls.%d", base, callIdx)
				set(callBase+".id", part.ToolID)
				set(callBase+".type", "function")
				set(callBase+".function.name", part.ToolName)
				set(callBase+".function.arguments", part.ToolInput)
				callIdx++
			case translator.PartToolResult:
				appended++
				toolBase := fmt.Sprintf("messages.%d", idx+appended)
				set(toolBase+".role", "tool")
				set(toolBase+".tool_call_id", part.ToolID)
				set(toolBase+".content", part.Result)
			}
		}
		set(base+".content", text)
		idx += 1 + appended
	}

	for i, tool := range req.Tools {
		base := fmt.Sprintf("tools.%d", i)
		out, _ = sjson.SetBytes(out, base+".type", "function")
		out, _ = sjson.SetBytes(out, base+".function.name", tool.Name)
		if tool.Description != "" {
			out, _ = sjson.SetBytes(out, base+".function.description", tool.Description)
		}
		out, _ = sjson.SetRawBytes(out, base+".function.parameters", []byte(tool.InputSchema))
	}

	return out
}

// ErrorBody renders an OpenAI error envelope.
func ErrorBody(status int, message string) []byte {
	errType := "api_error"
	switch status {
	case 400:
		errType = "invalid_request_error"
	case 401, 403:
		errType = "authentication_error"
	case 429:
		errType = "rate_limit_error"
	}
	out := []byte(`{"error":{"param":null,"code":null}}`)
	out, _ = sjson.SetBytes(out, "error.type", errType)
	out, _ = sjson.SetBytes(out, "error.message", message)
	return out
}
