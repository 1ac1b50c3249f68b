package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/registry"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
	gemini "github.com/tanaikit/pool2api/internal/translator/gemini"
)

// AntigravityExecutor speaks the Gemini generate API on the Antigravity
// v1internal surface. Credentials must carry the Google Cloud project id
// discovered during onboarding; it travels with every call.
type AntigravityExecutor struct {
	httpClient *http.Client
	registry   *registry.Registry

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewAntigravityExecutor builds the Gemini-over-GCP adapter.
func NewAntigravityExecutor(proxyURL string, reg *registry.Registry) *AntigravityExecutor {
	return &AntigravityExecutor{
		httpClient: newHTTPClient(proxyURL, upstreamTimeout),
		registry:   reg,
		BaseURL:    constant.AntigravityBaseURL,
	}
}

// Identifier implements Executor.
func (e *AntigravityExecutor) Identifier() string {
	return constant.ProviderAntigravity
}

// Execute implements Executor.
func (e *AntigravityExecutor) Execute(ctx context.Context, cred *store.Credential, req *translator.ChatRequest) (translator.Stream, error) {
	if cred.ProjectID == "" {
		return nil, &StatusError{StatusCode: http.StatusUnauthorized, Message: "credential has no project id"}
	}

	model := e.registry.Resolve(constant.ProviderAntigravity, req.Model)
	body := gemini.EmitRequest(req)
	body, _ = sjson.SetBytes(body, "model", model)
	body, _ = sjson.SetBytes(body, "project", cred.ProjectID)

	method := ":generateContent"
	if req.Stream {
		method = ":streamGenerateContent?alt=sse"
	}
	endpoint := fmt.Sprintf("%s/models/%s%s", e.BaseURL, model, method)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	httpReq.Header.Set("X-Goog-User-Project", cred.ProjectID)

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
	if req.Stream {
		go e.consumeStream(ctx, resp.Body, req.Model, out)
	} else {
		go e.consumeSingle(ctx, resp.Body, req.Model, out)
	}
	return out, nil
}

// consumeStream maps streamGenerateContent SSE onto normalized events.
func (e *AntigravityExecutor) consumeStream(ctx context.Context, body io.ReadCloser, model string, out chan<- translator.Event) {
	defer close(out)
	defer func() { _ = body.Close() }()

	if !emit(ctx, out, translator.Event{Type: translator.EventMessageStart, Model: model}) {
		return
	}

	var usage translator.Usage
	stopReason := translator.StopEndTurn
	toolCount := 0

	scanner := newSSEScanner(body)
	for {
		ev, ok := scanner.Next()
		if !ok {
			break
		}
		chunk := gjson.Parse(ev.Data)
		if errObj := chunk.Get("error"); errObj.Exists() {
			fail(ctx, out, &StatusError{
				StatusCode: int(errObj.Get("code").Int()),
				Message:    errObj.Get("message").String(),
			})
			return
		}
		if !e.emitParts(ctx, chunk, out, &toolCount, &stopReason) {
			return
		}
		if meta := chunk.Get("usageMetadata"); meta.Exists() {
			usage.InputTokens = meta.Get("promptTokenCount").Int()
			usage.OutputTokens = meta.Get("candidatesTokenCount").Int()
		}
		if finish := chunk.Get("candidates.0.finishReason").String(); finish == "MAX_TOKENS" {
			stopReason = translator.StopMaxTokens
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

// consumeSingle synthesizes the event stream from a non-streamed response.
func (e *AntigravityExecutor) consumeSingle(ctx context.Context, body io.ReadCloser, model string, out chan<- translator.Event) {
	defer close(out)
	raw, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		fail(ctx, out, err)
		return
	}
	if !emit(ctx, out, translator.Event{Type: translator.EventMessageStart, Model: model}) {
		return
	}
	root := gjson.ParseBytes(raw)
	if errObj := root.Get("error"); errObj.Exists() {
		fail(ctx, out, &StatusError{
			StatusCode: int(errObj.Get("code").Int()),
			Message:    errObj.Get("message").String(),
		})
		return
	}
	stopReason := translator.StopEndTurn
	toolCount := 0
	if !e.emitParts(ctx, root, out, &toolCount, &stopReason) {
		return
	}
	if root.Get("candidates.0.finishReason").String() == "MAX_TOKENS" {
		stopReason = translator.StopMaxTokens
	}
	meta := root.Get("usageMetadata")
	emit(ctx, out, translator.Event{
		Type:       translator.EventMessageStop,
		StopReason: stopReason,
		Usage: &translator.Usage{
			InputTokens:  meta.Get("promptTokenCount").Int(),
			OutputTokens: meta.Get("candidatesTokenCount").Int(),
		},
	})
}

// emitParts walks candidate parts: text, thought-flagged text, and complete
// functionCall parts. Gemini delivers tool inputs whole, so each call is a
// start/stop pair.
func (e *AntigravityExecutor) emitParts(ctx context.Context, chunk gjson.Result, out chan<- translator.Event, toolCount *int, stopReason *string) bool {
	ok := true
	chunk.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
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
				id = fmt.Sprintf("call-%s-%d", name, *toolCount)
			}
			*toolCount++
			*stopReason = translator.StopToolUse
			if !emit(ctx, out, translator.Event{
				Type:      translator.EventToolUseStart,
				ToolID:    id,
				ToolName:  name,
				ToolInput: args,
			}) {
				ok = false
				return false
			}
			if !emit(ctx, out, translator.Event{Type: translator.EventToolUseStop}) {
				ok = false
				return false
			}
		case part.Get("text").Exists():
			evType := translator.EventTextDelta
			if part.Get("thought").Bool() {
				evType = translator.EventReasoningDelta
			}
			if !emit(ctx, out, translator.Event{Type: evType, Text: part.Get("text").String()}) {
				ok = false
				return false
			}
		}
		return true
	})
	return ok
}
