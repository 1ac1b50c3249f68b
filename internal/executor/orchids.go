package executor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/registry"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
	"github.com/tanaikit/pool2api/internal/translator/tools"
)

const (
	wsDialTimeout    = 30 * time.Second
	wsMessageTimeout = 120 * time.Second
)

// OrchidsExecutor speaks the WebSocket Claude protocol: one user-request
// frame carrying the whole conversation, answered by a multi-event stream.
// The protocol-internal fs_operation request-reply is serviced with synthetic
// success responses; this proxy never executes filesystem operations.
type OrchidsExecutor struct {
	dialer   *websocket.Dialer
	registry *registry.Registry

	// WSURL is overridable for tests.
	WSURL string
}

// NewOrchidsExecutor builds the WebSocket Claude adapter.
func NewOrchidsExecutor(proxyURL string, reg *registry.Registry) *OrchidsExecutor {
	dialer := &websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			dialer.Proxy = http.ProxyURL(parsed)
		}
	}
	return &OrchidsExecutor{dialer: dialer, registry: reg, WSURL: constant.OrchidsWSURL}
}

// Identifier implements Executor.
func (e *OrchidsExecutor) Identifier() string {
	return constant.ProviderOrchids
}

// Execute implements Executor.
func (e *OrchidsExecutor) Execute(ctx context.Context, cred *store.Credential, req *translator.ChatRequest) (translator.Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.AccessToken)

	conn, resp, err := e.dialer.DialContext(ctx, e.WSURL, header)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, err
	}

	frame := e.buildUserRequest(req)
	_ = conn.SetWriteDeadline(time.Now().Add(wsMessageTimeout))
	if err = conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		_ = conn.Close()
		return nil, err
	}

	out := make(chan translator.Event)
	go e.consume(ctx, conn, req.Model, out)
	return out, nil
}

// buildUserRequest encodes the full prompt, history, and tool definitions as
// the single request frame.
func (e *OrchidsExecutor) buildUserRequest(req *translator.ChatRequest) []byte {
	out := []byte(`{"type":"user_request"}`)
	out, _ = sjson.SetBytes(out, "model", e.registry.Resolve(constant.ProviderOrchids, req.Model))
	if req.System != "" {
		out, _ = sjson.SetBytes(out, "system", req.System)
	}
	if req.MaxTokens > 0 {
		out, _ = sjson.SetBytes(out, "max_tokens", req.MaxTokens)
	}
	for i, turn := range req.Turns {
		base := fmt.Sprintf("messages.%d", i)
		out, _ = sjson.SetBytes(out, base+".role", turn.Role)
		for j, part := range turn.Parts {
			partBase := fmt.Sprintf("%s.parts.%d", base, j)
			switch part.Type {
			case translator.PartText:
				out, _ = sjson.SetBytes(out, partBase+".type", "text")
				out, _ = sjson.SetBytes(out, partBase+".text", part.Text)
			case translator.PartToolUse:
				native := tools.ToOrchids(part.ToolName)
				out, _ = sjson.SetBytes(out, partBase+".type", "tool_use")
				out, _ = sjson.SetBytes(out, partBase+".id", part.ToolID)
				out, _ = sjson.SetBytes(out, partBase+".name", native)
				out, _ = sjson.SetRawBytes(out, partBase+".input", shellToolInput(native, []byte(part.ToolInput)))
			case translator.PartToolResult:
				out, _ = sjson.SetBytes(out, partBase+".type", "tool_result")
				out, _ = sjson.SetBytes(out, partBase+".tool_use_id", part.ToolID)
				out, _ = sjson.SetBytes(out, partBase+".output", part.Result)
				if part.IsError {
					out, _ = sjson.SetBytes(out, partBase+".is_error", true)
				}
			}
		}
	}
	for i, tool := range req.Tools {
		base := fmt.Sprintf("tools.%d", i)
		out, _ = sjson.SetBytes(out, base+".name", tools.ToOrchids(tool.Name))
		out, _ = sjson.SetBytes(out, base+".description", tool.Description)
		out, _ = sjson.SetRawBytes(out, base+".input_schema", []byte(tool.InputSchema))
	}
	return out
}

// shellToolInput annotates shell tool inputs with the provider's command
// classification flags. The provider refuses unclassified shell invocations;
// inputs of other tools pass through unchanged.
func shellToolInput(native string, input []byte) []byte {
	if native != "shell" {
		return input
	}
	if len(input) == 0 {
		input = []byte(`{}`)
	}
	command := gjson.GetBytes(input, "command").String()
	input, _ = sjson.SetBytes(input, "is_read_only", tools.IsReadOnly(command))
	input, _ = sjson.SetBytes(input, "is_risky", tools.IsRisky(command))
	return input
}

// consume reads provider events until stream_end. A watcher goroutine closes
// the connection when the request context is cancelled so a blocked read
// returns promptly.
func (e *OrchidsExecutor) consume(ctx context.Context, conn *websocket.Conn, model string, out chan<- translator.Event) {
	defer close(out)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() { _ = conn.Close() }()

	if !emit(ctx, out, translator.Event{Type: translator.EventMessageStart, Model: model}) {
		return
	}

	var usage translator.Usage
	stopReason := translator.StopEndTurn
	// Tool-use previews open a block; only the complete event closes it.
	openToolID := ""

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsMessageTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(ctx, out, err)
			return
		}
		msg := gjson.ParseBytes(raw)
		switch msg.Get("type").String() {
		case "text_delta":
			if !emit(ctx, out, translator.Event{Type: translator.EventTextDelta, Text: msg.Get("text").String()}) {
				return
			}
		case "thinking_delta":
			if !emit(ctx, out, translator.Event{Type: translator.EventReasoningDelta, Text: msg.Get("text").String()}) {
				return
			}
		case "tool_use_preview":
			// Input preview; the block stays open until the complete event.
			id := msg.Get("id").String()
			if openToolID != id {
				openToolID = id
				stopReason = translator.StopToolUse
				if !emit(ctx, out, translator.Event{
					Type:     translator.EventToolUseStart,
					ToolID:   id,
					ToolName: tools.FromOrchids(msg.Get("name").String()),
				}) {
					return
				}
			}
			if delta := msg.Get("input_delta").String(); delta != "" {
				if !emit(ctx, out, translator.Event{Type: translator.EventToolUseInputDelta, ToolInput: delta}) {
					return
				}
			}
		case "tool_use":
			// Input complete. Replays the full input when no preview ran.
			id := msg.Get("id").String()
			if openToolID != id {
				stopReason = translator.StopToolUse
				input := msg.Get("input").Raw
				if input == "" {
					input = "{}"
				}
				if !emit(ctx, out, translator.Event{
					Type:      translator.EventToolUseStart,
					ToolID:    id,
					ToolName:  tools.FromOrchids(msg.Get("name").String()),
					ToolInput: input,
				}) {
					return
				}
			}
			openToolID = ""
			if !emit(ctx, out, translator.Event{Type: translator.EventToolUseStop}) {
				return
			}
		case "fs_operation":
			if err = e.replyFsOperation(conn, msg); err != nil {
				fail(ctx, out, err)
				return
			}
		case "usage":
			usage.InputTokens = msg.Get("input_tokens").Int()
			usage.OutputTokens = msg.Get("output_tokens").Int()
		case "stream_end":
			if msg.Get("stop_reason").String() == "max_tokens" {
				stopReason = translator.StopMaxTokens
			}
			if tokens := msg.Get("usage"); tokens.Exists() {
				usage.InputTokens = tokens.Get("input_tokens").Int()
				usage.OutputTokens = tokens.Get("output_tokens").Int()
			}
			emit(ctx, out, translator.Event{
				Type:       translator.EventMessageStop,
				StopReason: stopReason,
				Usage:      &usage,
			})
			return
		case "error":
			fail(ctx, out, &StatusError{
				StatusCode: http.StatusBadGateway,
				Message:    msg.Get("message").String(),
			})
			return
		}
	}
}

// replyFsOperation acknowledges a filesystem sub-protocol request with a
// synthetic success. The proxy reports success without executing anything.
func (e *OrchidsExecutor) replyFsOperation(conn *websocket.Conn, msg gjson.Result) error {
	reply := []byte(`{"type":"fs_operation_result","success":true}`)
	reply, _ = sjson.SetBytes(reply, "id", msg.Get("id").String())
	reply, _ = sjson.SetBytes(reply, "operation", msg.Get("operation").String())
	_ = conn.SetWriteDeadline(time.Now().Add(wsMessageTimeout))
	return conn.WriteMessage(websocket.TextMessage, reply)
}
