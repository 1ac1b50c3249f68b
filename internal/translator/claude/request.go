// Package claude implements the Anthropic Messages wire format: request
// parsing into the internal normal form, request emission, and rendering of
// normalized event streams as Anthropic SSE.
package claude

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/translator"
)

func init() {
	translator.RegisterFormat(constant.Claude, translator.Format{
		ParseRequest:     ParseRequest,
		EmitRequest:      EmitRequest,
		NewStreamEmitter: func(model string) translator.StreamEmitter { return NewStreamEmitter(model) },
		CollectResponse:  CollectResponse,
		ErrorBody:        ErrorBody,
	})
}

// ParseRequest converts an Anthropic Messages request body into the internal
// normal form.
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
		Model:     model,
		Stream:    root.Get("stream").Bool(),
		MaxTokens: int(root.Get("max_tokens").Int()),
	}
	if t := root.Get("temperature"); t.Exists() {
		v := t.Float()
		req.Temperature = &v
	}
	if t := root.Get("top_p"); t.Exists() {
		v := t.Float()
		req.TopP = &v
	}

	// System may be a plain string or an array of text blocks.
	if system := root.Get("system"); system.Exists() {
		if system.IsArray() {
			system.ForEach(func(_, block gjson.Result) bool {
				if req.System != "" {
					req.System += "\n"
				}
				req.System += block.Get("text").String()
				return true
			})
		} else {
			req.System = system.String()
		}
	}

	var parseErr error
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		turn := translator.Turn{Role: msg.Get("role").String()}
		content := msg.Get("content")
		if content.Type == gjson.String {
			turn.Parts = append(turn.Parts, translator.Part{Type: translator.PartText, Text: content.String()})
		} else if content.IsArray() {
			content.ForEach(func(_, block gjson.Result) bool {
				switch block.Get("type").String() {
				case "text":
					turn.Parts = append(turn.Parts, translator.Part{
						Type: translator.PartText,
						Text: block.Get("text").String(),
					})
				case "tool_use":
					input := block.Get("input").Raw
					if input == "" {
						input = "{}"
					}
					turn.Parts = append(turn.Parts, translator.Part{
						Type:      translator.PartToolUse,
						ToolID:    block.Get("id").String(),
						ToolName:  block.Get("name").String(),
						ToolInput: input,
					})
				case "tool_result":
					turn.Parts = append(turn.Parts, translator.Part{
						Type:    translator.PartToolResult,
						ToolID:  block.Get("tool_use_id").String(),
						Result:  flattenResultContent(block.Get("content")),
						IsError: block.Get("is_error").Bool(),
					})
				}
				return true
			})
		}
		if turn.Role != "user" && turn.Role != "assistant" {
			parseErr = fmt.Errorf("unsupported message role %q", turn.Role)
			return false
		}
		req.Turns = append(req.Turns, turn)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		schema := tool.Get("input_schema").Raw
		if schema == "" {
			schema = "{}"
		}
		req.Tools = append(req.Tools, translator.Tool{
			Name:        tool.Get("name").String(),
			Description: tool.Get("description").String(),
			InputSchema: schema,
		})
		return true
	})

	return req, nil
}

// flattenResultContent reduces a tool_result content value (string or block
// array) to plain text.
func flattenResultContent(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		out := ""
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				out += block.Get("text").String()
			}
			return true
		})
		return out
	}
	return ""
}

// EmitRequest renders the normal form as an Anthropic Messages request body.
// Parsing the result yields the same normal form back.
func EmitRequest(req *translator.ChatRequest) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", req.Model)
	if req.MaxTokens > 0 {
		out, _ = sjson.SetBytes(out, "max_tokens", req.MaxTokens)
	}
	if req.System != "" {
		out, _ = sjson.SetBytes(out, "system", req.System)
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
	for i, turn := range req.Turns {
		base := fmt.Sprintf("messages.%d", i)
		out, _ = sjson.SetBytes(out, base+".role", turn.Role)
		for j, part := range turn.Parts {
			blockBase := fmt.Sprintf("%s.content.%d", base, j)
			switch part.Type {
			case translator.PartText:
				out, _ = sjson.SetBytes(out, blockBase+".type", "text")
				out, _ = sjson.SetBytes(out, blockBase+".text", part.Text)
			case translator.PartToolUse:
				out, _ = sjson.SetBytes(out, blockBase+".type", "tool_use")
				out, _ = sjson.SetBytes(out, blockBase+".id", part.ToolID)
				out, _ = sjson.SetBytes(out, blockBase+".name", part.ToolName)
				out, _ = sjson.SetRawBytes(out, blockBase+".input", []byte(part.ToolInput))
			case translator.PartToolResult:
				out, _ = sjson.SetBytes(out, blockBase+".type", "tool_result")
				out, _ = sjson.SetBytes(out, blockBase+".tool_use_id", part.ToolID)
				out, _ = sjson.SetBytes(out, blockBase+".content", part.Result)
				if part.IsError {
					out, _ = sjson.SetBytes(out, blockBase+".is_error", true)
				}
			}
		}
	}

	for i, tool := range req.Tools {
		base := fmt.Sprintf("tools.%d", i)
		out, _ = sjson.SetBytes(out, base+".name", tool.Name)
		if tool.Description != "" {
			out, _ = sjson.SetBytes(out, base+".description", tool.Description)
		}
		out, _ = sjson.SetRawBytes(out, base+".input_schema", []byte(tool.InputSchema))
	}

	return out
}

// ErrorBody renders an Anthropic error envelope.
func ErrorBody(status int, message string) []byte {
	errType := "api_error"
	switch status {
	case 400:
		errType = "invalid_request_error"
	case 401:
		errType = "authentication_error"
	case 403:
		errType = "permission_error"
	case 429:
		errType = "rate_limit_error"
	case 503:
		errType = "overloaded_error"
	}
	out := []byte(`{"type":"error","error":{}}`)
	out, _ = sjson.SetBytes(out, "error.type", errType)
	out, _ = sjson.SetBytes(out, "error.message", message)
	return out
}
