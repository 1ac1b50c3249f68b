// Package gemini implements the Gemini generateContent wire format: request
// parsing into the internal normal form, request emission, and rendering of
// normalized event streams as streamGenerateContent SSE.
package gemini

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/translator"
)

func init() {
	translator.RegisterFormat(constant.Gemini, translator.Format{
		ParseRequest:     ParseRequest,
		EmitRequest:      EmitRequest,
		NewStreamEmitter: func(model string) translator.StreamEmitter { return NewStreamEmitter(model) },
		CollectResponse:  CollectResponse,
		ErrorBody:        ErrorBody,
	})
}

// ParseRequest converts a Gemini generateContent request body into the
// internal normal form. The model is not part of the body on the Gemini
// surface; callers set it from the URL when the body omits it.
func ParseRequest(raw []byte) (*translator.ChatRequest, error) {
	root := gjson.ParseBytes(raw)
	if !root.Get("contents").IsArray() {
		return nil, fmt.Errorf("missing contents")
	}

	req := &translator.ChatRequest{Model: root.Get("model").String()}
	if gc := root.Get("generationConfig"); gc.Exists() {
		if v := gc.Get("maxOutputTokens"); v.Exists() {
			req.MaxTokens = int(v.Int())
		}
		if t := gc.Get("temperature"); t.Exists() {
			v := t.Float()
			req.Temperature = &v
		}
		if t := gc.Get("topP"); t.Exists() {
			v := t.Float()
			req.TopP = &v
		}
	}

	if si := root.Get("systemInstruction"); si.Exists() {
		si.Get("parts").ForEach(func(_, part gjson.Result) bool {
			if req.System != "" {
				req.System += "\n"
			}
			req.System += part.Get("text").String()
			return true
		})
	}

	// Gemini carries function responses by name, not id; the call order keyed
	// by name rebuilds the correlation.
	idsByName := map[string][]string{}

	var parseErr error
	root.Get("contents").ForEach(func(_, content gjson.Result) bool {
		role := content.Get("role").String()
		switch role {
		case "user", "":
			role = "user"
		case "model":
			role = "assistant"
		default:
			parseErr = fmt.Errorf("unsupported content role %q", role)
			return false
		}
		turn := translator.Turn{Role: role}
		callIdx := 0
		content.Get("parts").ForEach(func(_, part gjson.Result) bool {
			switch {
			case part.Get("functionCall").Exists():
				fc := part.Get("functionCall")
				name := fc.Get("name").String()
				args := fc.Get("args").Raw
				if args == "" {
					args = "{}"
				}
				id := fc.Get("id").String()
				if id == "" {
					id = fmt.Sprintf("%s-%d", name, len(idsByName[name]))
				}
				idsByName[name] = append(idsByName[name], id)
				turn.Parts = append(turn.Parts, translator.Part{
					Type:      translator.PartToolUse,
					ToolID:    id,
					ToolName:  name,
					ToolInput: args,
				})
				callIdx++
			case part.Get("functionResponse").Exists():
				fr := part.Get("functionResponse")
				name := fr.Get("name").String()
				id := fr.Get("id").String()
				if id == "" && len(idsByName[name]) > 0 {
					id = idsByName[name][0]
					idsByName[name] = idsByName[name][1:]
				}
				result := fr.Get("response.output").String()
				if result == "" {
					result = fr.Get("response").Raw
				}
				turn.Parts = append(turn.Parts, translator.Part{
					Type:   translator.PartToolResult,
					ToolID: id,
					Result: result,
				})
			case part.Get("text").Exists():
				turn.Parts = append(turn.Parts, translator.Part{
					Type: translator.PartText,
					Text: part.Get("text").String(),
				})
			}
			return true
		})
		req.Turns = append(req.Turns, turn)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		tool.Get("functionDeclarations").ForEach(func(_, decl gjson.Result) bool {
			schema := decl.Get("parameters").Raw
			if schema == "" {
				schema = "{}"
			}
			req.Tools = append(req.Tools, translator.Tool{
				Name:        decl.Get("name").String(),
				Description: decl.Get("description").String(),
				InputSchema: schema,
			})
			return true
		})
		return true
	})

	return req, nil
}

// EmitRequest renders the normal form as a Gemini generateContent request
// body.
func EmitRequest(req *translator.ChatRequest) []byte {
	out := []byte(`{}`)
	if req.System != "" {
		out, _ = sjson.SetBytes(out, "systemInstruction.parts.0.text", req.System)
	}

	out, _ = sjson.SetRawBytes(out, "contents", []byte(`[]`))
	for i, turn := range req.Turns {
		base := fmt.Sprintf("contents.%d", i)
		role := turn.Role
		if role == "assistant" {
			role = "model"
		}
		out, _ = sjson.SetBytes(out, base+".role", role)
		for j, part := range turn.Parts {
			partBase := fmt.Sprintf("%s.parts.%d", base, j)
			switch part.Type {
			case translator.PartText:
				out, _ = sjson.SetBytes(out, partBase+".text", part.Text)
			case translator.PartToolUse:
				out, _ = sjson.SetBytes(out, partBase+".functionCall.name", part.ToolName)
				out, _ = sjson.SetRawBytes(out, partBase+".functionCall.args", []byte(part.ToolInput))
			case translator.PartToolResult:
				// The function name travels in the response envelope; resolve
				// it from the originating call.
				name := reqToolName(req, part.ToolID)
				out, _ = sjson.SetBytes(out, partBase+".functionResponse.name", name)
				out, _ = sjson.SetBytes(out, partBase+".functionResponse.response.output", part.Result)
			}
		}
	}

	for i, tool := range req.Tools {
		base := fmt.Sprintf("tools.0.functionDeclarations.%d", i)
		out, _ = sjson.SetBytes(out, base+".name", tool.Name)
		if tool.Description != "" {
			out, _ = sjson.SetBytes(out, base+".description", tool.Description)
		}
		out, _ = sjson.SetRawBytes(out, base+".parameters", []byte(tool.InputSchema))
	}

	if req.MaxTokens > 0 {
		out, _ = sjson.SetBytes(out, "generationConfig.maxOutputTokens", req.MaxTokens)
	}
	if req.Temperature != nil {
		out, _ = sjson.SetBytes(out, "generationConfig.temperature", *req.Temperature)
	}
	if req.TopP != nil {
		out, _ = sjson.SetBytes(out, "generationConfig.topP", *req.TopP)
	}
	return out
}

func reqToolName(req *translator.ChatRequest, id string) string {
	if name := req.ToolNameByID(id); name != "" {
		return name
	}
	return id
}

// ErrorBody renders a Google API error envelope.
func ErrorBody(status int, message string) []byte {
	reason := "INTERNAL"
	switch status {
	case 400:
		reason = "INVALID_ARGUMENT"
	case 401:
		reason = "UNAUTHENTICATED"
	case 403:
		reason = "PERMISSION_DENIED"
	case 404:
		reason = "NOT_FOUND"
	case 429:
		reason = "RESOURCE_EXHAUSTED"
	case 503:
		reason = "UNAVAILABLE"
	}
	out := []byte(`{"error":{}}`)
	out, _ = sjson.SetBytes(out, "error.code", status)
	out, _ = sjson.SetBytes(out, "error.message", message)
	out, _ = sjson.SetBytes(out, "error.status", reason)
	return out
}
