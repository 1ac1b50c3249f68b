package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/registry"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
)

// KiroExecutor speaks the CodeWhisperer assistant-response protocol: a
// conversation-state JSON request against the region-templated endpoint,
// answered with SSE carrying assistantResponseEvent / toolUseEvent frames.
type KiroExecutor struct {
	httpClient *http.Client
	registry   *registry.Registry
}

// NewKiroExecutor builds the Claude-over-AWS adapter.
func NewKiroExecutor(proxyURL string, reg *registry.Registry) *KiroExecutor {
	return &KiroExecutor{
		httpClient: newHTTPClient(proxyURL, upstreamTimeout),
		registry:   reg,
	}
}

// Identifier implements Executor.
func (e *KiroExecutor) Identifier() string {
	return constant.ProviderKiro
}

// Execute implements Executor.
func (e *KiroExecutor) Execute(ctx context.Context, cred *store.Credential, req *translator.ChatRequest) (translator.Stream, error) {
	body := e.buildRequest(cred, req)

	region := cred.Region
	if region == "" {
		region = constant.KiroDefaultRegion
	}
	endpoint := fmt.Sprintf(constant.KiroGenerateURL, region)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	out := make(chan translator.Event)
	go e.consume(ctx, resp.Body, req.Model, out)
	return out, nil
}

// buildRequest renders the conversation-state JSON. History carries all turns
// but the last user message, which becomes currentMessage.
func (e *KiroExecutor) buildRequest(cred *store.Credential, req *translator.ChatRequest) []byte {
	modelID := e.registry.Resolve(constant.ProviderKiro, req.Model)

	out := []byte(`{"conversationState":{"chatTriggerType":"MANUAL"}}`)
	out, _ = sjson.SetBytes(out, "conversationState.conversationId", uuid.NewString())
	if cred.ProjectID != "" {
		out, _ = sjson.SetBytes(out, "profileArn", cred.ProjectID)
	}

	turns := req.Turns
	var current translator.Turn
	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		current = turns[n-1]
		turns = turns[:n-1]
	} else {
		current = translator.Turn{Role: "user", Parts: []translator.Part{{Type: translator.PartText, Text: "continue"}}}
	}

	histIdx := 0
	for _, turn := range turns {
		base := fmt.Sprintf("conversationState.history.%d", histIdx)
		if turn.Role == "user" {
			out = e.setUserMessage(out, base+".userInputMessage", req, turn, modelID, false)
		} else {
			out = setAssistantMessage(out, base+".assistantResponseMessage", turn)
		}
		histIdx++
	}

	out = e.setUserMessage(out, "conversationState.currentMessage.userInputMessage", req, current, modelID, true)
	return out
}

// setUserMessage renders one user turn. Tool definitions ride only the
// current message; tool results ride whichever turn carries them.
func (e *KiroExecutor) setUserMessage(out []byte, base string, req *translator.ChatRequest, turn translator.Turn, modelID string, current bool) []byte {
	content := ""
	resultIdx := 0
	for _, part := range turn.Parts {
		switch part.Type {
		case translator.PartText:
			content += part.Text
		case translator.PartToolResult:
			resBase := fmt.Sprintf("%s.userInputMessageContext.toolResults.%d", base, resultIdx)
			out, _ = sjson.SetBytes(out, resBase+".toolUseId", part.ToolID)
			out, _ = sjson.SetBytes(out, resBase+".content.0.text", part.Result)
			status := "success"
			if part.IsError {
				status = "error"
			}
			out, _ = sjson.SetBytes(out, resBase+".status", status)
			resultIdx++
		}
	}
	if current && req.System != "" {
		content = req.System + "\n\n" + content
	}
	out, _ = sjson.SetBytes(out, base+".content", content)
	out, _ = sjson.SetBytes(out, base+".modelId", modelID)
	out, _ = sjson.SetBytes(out, base+".origin", "AI_EDITOR")
	if current {
		for i, tool := range req.Tools {
			toolBase := fmt.Sprintf("%s.userInputMessageContext.tools.%d.toolSpecification", base, i)
			out, _ = sjson.SetBytes(out, toolBase+".name", tool.Name)
			out, _ = sjson.SetBytes(out, toolBase+".description", tool.Description)
			out, _ = sjson.SetRawBytes(out, toolBase+".inputSchema.json", []byte(tool.InputSchema))
		}
	}
	return out
}

func setAssistantMessage(out []byte, base string, turn translator.Turn) []byte {
	content := ""
	toolIdx := 0
	for _, part := range turn.Parts {
		switch part.Type {
		case translator.PartText:
			content += part.Text
		case translator.PartToolUse:
			useBase := fmt.Sprintf("%s.toolUses.%d", base, toolIdx)
			out, _ = sjson.SetBytes(out, useBase+".toolUseId", part.ToolID)
			out, _ = sjson.SetBytes(out, useBase+".name", part.ToolName)
			out, _ = sjson.SetRawBytes(out, useBase+".input", []byte(part.ToolInput))
			toolIdx++
		}
	}
	out, _ = sjson.SetBytes(out, base+".content", content)
	return out
}

// consume maps the CodeWhisperer SSE stream onto normalized events.
func (e *KiroExecutor) consume(ctx context.Context, body io.ReadCloser, model string, out chan<- translator.Event) {
	defer close(out)
	defer func() { _ = body.Close() }()

	if !emit(ctx, out, translator.Event{Type: translator.EventMessageStart, Model: model}) {
		return
	}

	var usage translator.Usage
	stopReason := translator.StopEndTurn
	toolOpen := false

	scanner := newSSEScanner(body)
	for {
		ev, ok := scanner.Next()
		if !ok {
			break
		}
		data := gjson.Parse(ev.Data)
		switch ev.Event {
		case "assistantResponseEvent":
			if text := data.Get("content").String(); text != "" {
				if !emit(ctx, out, translator.Event{Type: translator.EventTextDelta, Text: text}) {
					return
				}
			}
		case "toolUseEvent":
			if !toolOpen {
				toolOpen = true
				stopReason = translator.StopToolUse
				if !emit(ctx, out, translator.Event{
					Type:     translator.EventToolUseStart,
					ToolID:   data.Get("toolUseId").String(),
					ToolName: data.Get("name").String(),
				}) {
					return
				}
			}
			if input := data.Get("input").String(); input != "" {
				if !emit(ctx, out, translator.Event{Type: translator.EventToolUseInputDelta, ToolInput: input}) {
					return
				}
			}
			if data.Get("stop").Bool() {
				toolOpen = false
				if !emit(ctx, out, translator.Event{Type: translator.EventToolUseStop}) {
					return
				}
			}
		case "messageMetadataEvent":
			usage.InputTokens = data.Get("inputTokens").Int()
			usage.OutputTokens = data.Get("outputTokens").Int()
			if !emit(ctx, out, translator.Event{Type: translator.EventUsageUpdate, Usage: &translator.Usage{
				InputTokens:  usage.InputTokens,
				OutputTokens: usage.OutputTokens,
			}}) {
				return
			}
		case "errorEvent", "invalidStateEvent":
			fail(ctx, out, &StatusError{StatusCode: http.StatusBadGateway, Message: data.Get("message").String()})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		fail(ctx, out, err)
		return
	}
	emit(ctx, out, translator.Event{
		Type:       translator.EventMessageStop,
		StopReason: stopReason,
		Usage:      &usage,
	})
}
