package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/tanaikit/pool2api/internal/agentproto"
	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/registry"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
	"github.com/tanaikit/pool2api/internal/translator/tools"
)

// AgentExecutor speaks the protobuf command-agent protocol: a protobuf
// Request over HTTPS POST, answered with SSE whose data lines carry
// base64-encoded ResponseEvent messages.
type AgentExecutor struct {
	httpClient *http.Client
	registry   *registry.Registry

	// EndpointURL is overridable for tests.
	EndpointURL string
}

// NewAgentExecutor builds the protobuf agent adapter.
func NewAgentExecutor(proxyURL string, reg *registry.Registry) *AgentExecutor {
	return &AgentExecutor{
		httpClient:  newHTTPClient(proxyURL, upstreamTimeout),
		registry:    reg,
		EndpointURL: constant.AgentEndpointURL,
	}
}

// Identifier implements Executor.
func (e *AgentExecutor) Identifier() string {
	return constant.ProviderAgent
}

// Execute implements Executor.
func (e *AgentExecutor) Execute(ctx context.Context, cred *store.Credential, req *translator.ChatRequest) (translator.Stream, error) {
	body := agentproto.EncodeRequest(e.buildRequest(req))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
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

// buildRequest converts the normal form into the agent's Task schema.
func (e *AgentExecutor) buildRequest(req *translator.ChatRequest) *agentproto.Request {
	task := &agentproto.Task{ID: uuid.NewString()}
	if req.System != "" {
		task.Context = &agentproto.InputContext{SystemPrompt: req.System}
	}
	for _, turn := range req.Turns {
		msg := agentproto.Message{Role: agentproto.RoleUser}
		if turn.Role == "assistant" {
			msg.Role = agentproto.RoleAssistant
		}
		for _, part := range turn.Parts {
			switch part.Type {
			case translator.PartText:
				msg.Text += part.Text
			case translator.PartToolUse:
				native := tools.ToAgent(part.ToolName)
				msg.ToolCalls = append(msg.ToolCalls, agentproto.ToolCall{
					ID:       part.ToolID,
					Tool:     agentproto.ToolTypeForName(native),
					Name:     native,
					ArgsJSON: part.ToolInput,
				})
			case translator.PartToolResult:
				msg.ToolResults = append(msg.ToolResults, agentproto.ToolResult{
					CallID:  part.ToolID,
					Output:  part.Result,
					IsError: part.IsError,
				})
			}
		}
		task.Messages = append(task.Messages, msg)
	}
	for _, tool := range req.Tools {
		native := tools.ToAgent(tool.Name)
		task.Tools = append(task.Tools, agentproto.ToolDefinition{
			Tool:        agentproto.ToolTypeForName(native),
			Name:        native,
			Description: tool.Description,
			SchemaJSON:  tool.InputSchema,
		})
	}
	return &agentproto.Request{
		Task:      task,
		Model:     e.registry.Resolve(constant.ProviderAgent, req.Model),
		Stream:    true,
		MaxTokens: int64(req.MaxTokens),
	}
}

// consume decodes base64 SSE lines into ResponseEvents and maps them onto
// normalized events.
func (e *AgentExecutor) consume(ctx context.Context, body io.ReadCloser, model string, out chan<- translator.Event) {
	defer close(out)
	defer func() { _ = body.Close() }()

	if !emit(ctx, out, translator.Event{Type: translator.EventMessageStart, Model: model}) {
		return
	}

	finished := false
	scanner := newSSEScanner(body)
	for {
		sse, ok := scanner.Next()
		if !ok {
			break
		}
		raw, err := base64.StdEncoding.DecodeString(sse.Data)
		if err != nil {
			fail(ctx, out, err)
			return
		}
		ev, err := agentproto.DecodeResponseEvent(raw)
		if err != nil {
			fail(ctx, out, err)
			return
		}
		switch {
		case ev.AgentOutput != "":
			if !emit(ctx, out, translator.Event{Type: translator.EventTextDelta, Text: ev.AgentOutput}) {
				return
			}
		case ev.ToolCall != nil:
			if !e.emitToolCall(ctx, ev.ToolCall, out) {
				return
			}
		case ev.Finished != nil:
			stopReason := translator.StopEndTurn
			switch ev.Finished.StopReason {
			case "tool_call":
				stopReason = translator.StopToolUse
			case "max_tokens":
				stopReason = translator.StopMaxTokens
			}
			finished = true
			emit(ctx, out, translator.Event{
				Type:       translator.EventMessageStop,
				StopReason: stopReason,
				Usage: &translator.Usage{
					InputTokens:  ev.Finished.InputTokens,
					OutputTokens: ev.Finished.OutputTokens,
				},
			})
			return
		case ev.ErrorText != "":
			fail(ctx, out, &StatusError{StatusCode: http.StatusBadGateway, Message: ev.ErrorText})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		fail(ctx, out, err)
		return
	}
	if !finished {
		emit(ctx, out, translator.Event{Type: translator.EventMessageStop, StopReason: translator.StopEndTurn, Usage: &translator.Usage{}})
	}
}

// emitToolCall maps one native tool call onto a start/stop pair. The payload
// shape disambiguates Write from Edit on the shared apply_file_diffs tool.
func (e *AgentExecutor) emitToolCall(ctx context.Context, call *agentproto.ToolCall, out chan<- translator.Event) bool {
	name := call.Tool.Name()
	if name == "" {
		name = call.Name
	}
	hasDiffs := gjson.Get(call.ArgsJSON, "diffs").Exists()
	args := call.ArgsJSON
	if args == "" {
		args = "{}"
	}
	if !emit(ctx, out, translator.Event{
		Type:      translator.EventToolUseStart,
		ToolID:    call.ID,
		ToolName:  tools.FromAgent(name, hasDiffs),
		ToolInput: args,
	}) {
		return false
	}
	return emit(ctx, out, translator.Event{Type: translator.EventToolUseStop})
}
