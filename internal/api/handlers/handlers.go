// Package handlers implements the downstream HTTP endpoints: the three chat
// surfaces, the model listing, and liveness. Each chat handler parses its
// wire format into the internal normal form, routes to a provider, and
// renders the normalized event stream back in the caller's format.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tanaikit/pool2api/internal/api/middleware"
	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/executor"
	"github.com/tanaikit/pool2api/internal/registry"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
	"github.com/tanaikit/pool2api/internal/usage"
)

// Dispatcher is the dispatch engine surface the handlers need.
type Dispatcher interface {
	Dispatch(ctx context.Context, provider string, req *translator.ChatRequest) (translator.Stream, *store.Credential, error)
}

// Handler carries the shared dependencies of all endpoints.
type Handler struct {
	dispatcher Dispatcher
	registry   *registry.Registry
	usage      *usage.Manager
}

// New assembles the endpoint handlers.
func New(d Dispatcher, reg *registry.Registry, um *usage.Manager) *Handler {
	return &Handler{dispatcher: d, registry: reg, usage: um}
}

// Chat returns the handler for one chat surface. format names the downstream
// wire format; forcedProvider pins the provider for the path-scoped routes
// and is empty on the shared surfaces.
func (h *Handler) Chat(format, forcedProvider string) gin.HandlerFunc {
	f, err := translator.GetFormat(format)
	if err != nil {
		// Unknown formats are a wiring bug, not a runtime condition.
		panic(err)
	}
	return func(c *gin.Context) {
		start := time.Now()
		body, readErr := c.GetRawData()
		if readErr != nil {
			h.respondError(c, f, http.StatusBadRequest, "failed to read request body")
			return
		}
		req, parseErr := f.ParseRequest(body)
		if parseErr != nil {
			h.respondError(c, f, http.StatusBadRequest, parseErr.Error())
			return
		}

		provider := h.routeProvider(c, req.Model, forcedProvider)
		stream, cred, dispatchErr := h.dispatcher.Dispatch(c.Request.Context(), provider, req)
		if dispatchErr != nil {
			status, msg := classifyDispatchError(dispatchErr)
			h.respondError(c, f, status, msg)
			h.publishUsage(c, req, provider, nil, usage.Record{
				StatusCode:   status,
				ErrorMessage: msg,
				Duration:     time.Since(start),
			})
			return
		}

		var record usage.Record
		if req.Stream {
			record = h.streamResponse(c, f, req, stream)
		} else {
			record = h.collectResponse(c, f, req, stream)
		}
		record.Duration = time.Since(start)
		h.publishUsage(c, req, provider, cred, record)
	}
}

// routeProvider applies the routing precedence: Model-Provider header, then
// model-name tables, then the default Claude-over-AWS provider.
func (h *Handler) routeProvider(c *gin.Context, model, forcedProvider string) string {
	if forcedProvider != "" {
		return forcedProvider
	}
	switch strings.ToLower(c.GetHeader("Model-Provider")) {
	case "gemini", "gemini-antigravity":
		return constant.ProviderAntigravity
	case "orchids":
		return constant.ProviderOrchids
	case "agent":
		return constant.ProviderAgent
	}
	return h.registry.ProviderFor(model)
}

// streamResponse renders the event stream as the caller's SSE flavor.
func (h *Handler) streamResponse(c *gin.Context, f translator.Format, req *translator.ChatRequest, stream translator.Stream) usage.Record {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	emitter := f.NewStreamEmitter(req.Model)
	record := usage.Record{StatusCode: http.StatusOK}

	for ev := range stream {
		h.fold(&record, ev)
		for _, frame := range emitter.Emit(ev) {
			if _, werr := c.Writer.WriteString(frame + "\n"); werr != nil {
				// Client is gone; the context cancellation tears down the
				// upstream, this loop just drains.
				log.Debugf("downstream write failed: %v", werr)
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if c.Request.Context().Err() != nil {
		// The client went away mid-stream; whatever tokens were counted
		// before the disconnect still get billed.
		record.StatusCode = 499
		record.ErrorMessage = "client closed request"
	}
	if record.InputTokens == 0 {
		record.InputTokens = usage.EstimateInputTokens(req)
	}
	return record
}

// collectResponse drains the stream and renders one JSON response.
func (h *Handler) collectResponse(c *gin.Context, f translator.Format, req *translator.ChatRequest, stream translator.Stream) usage.Record {
	record := usage.Record{StatusCode: http.StatusOK}
	var events []translator.Event
	for ev := range stream {
		h.fold(&record, ev)
		if ev.Type == translator.EventError {
			status, msg := classifyDispatchError(ev.Err)
			h.respondError(c, f, status, msg)
			record.StatusCode = status
			record.ErrorMessage = msg
			return record
		}
		events = append(events, ev)
	}
	if record.InputTokens == 0 {
		record.InputTokens = usage.EstimateInputTokens(req)
	}
	c.Data(http.StatusOK, "application/json", f.CollectResponse(req.Model, events))
	return record
}

// fold accumulates accounting fields from the event stream.
func (h *Handler) fold(record *usage.Record, ev translator.Event) {
	switch ev.Type {
	case translator.EventUsageUpdate, translator.EventMessageStop:
		if ev.Usage != nil {
			record.InputTokens = ev.Usage.InputTokens
			record.OutputTokens = ev.Usage.OutputTokens
		}
	case translator.EventError:
		if ev.Err != nil {
			record.ErrorMessage = sanitizeUpstreamMessage(ev.Err.Error())
		}
	}
}

// publishUsage emits the accounting record for this request.
func (h *Handler) publishUsage(c *gin.Context, req *translator.ChatRequest, provider string, cred *store.Credential, record usage.Record) {
	key := middleware.GetAPIKey(c)
	if key != nil {
		record.APIKeyID = key.ID
		record.APIKeyPrefix = key.KeyPrefix
	}
	if cred != nil {
		record.CredentialID = cred.ID
	}
	record.RequestID = middleware.GetRequestID(c)
	record.Provider = provider
	record.ClientIP = c.ClientIP()
	record.UserAgent = c.Request.UserAgent()
	record.Method = c.Request.Method
	record.Path = c.Request.URL.Path
	record.Model = req.Model
	record.Stream = req.Stream
	record.RequestedAt = time.Now().Add(-record.Duration)
	h.usage.Publish(c.Request.Context(), record)
}

// respondError renders an error envelope in the caller's format.
func (h *Handler) respondError(c *gin.Context, f translator.Format, status int, message string) {
	c.Data(status, "application/json", f.ErrorBody(status, sanitizeUpstreamMessage(message)))
}

// classifyDispatchError maps dispatch failures onto downstream statuses.
func classifyDispatchError(err error) (int, string) {
	if errors.Is(err, executor.ErrNoCredentials) {
		return http.StatusServiceUnavailable, "no upstream capacity available"
	}
	if status := executor.StatusOf(err); status != 0 {
		switch {
		case status == http.StatusTooManyRequests:
			return http.StatusTooManyRequests, "upstream rate limited"
		case status >= 400 && status < 500:
			return http.StatusBadGateway, sanitizeUpstreamMessage(err.Error())
		default:
			return http.StatusBadGateway, "upstream error"
		}
	}
	if errors.Is(err, context.Canceled) {
		return 499, "client closed request"
	}
	return http.StatusBadGateway, sanitizeUpstreamMessage(err.Error())
}

// revealingFragments are upstream error substrings that would leak which
// service backs the proxy.
var revealingFragments = []string{
	"AccessDeniedException",
	"Please run /login",
	"codewhisperer",
	"CodeWhisperer",
	"cloudcode-pa",
	"kiro",
}

// sanitizeUpstreamMessage rewrites implementation-revealing upstream messages
// before they reach a caller.
func sanitizeUpstreamMessage(msg string) string {
	for _, fragment := range revealingFragments {
		if strings.Contains(msg, fragment) {
			return "service temporarily unavailable"
		}
	}
	return msg
}
