package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/executor"
	"github.com/tanaikit/pool2api/internal/registry"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
	_ "github.com/tanaikit/pool2api/internal/translator/claude"
	_ "github.com/tanaikit/pool2api/internal/translator/openai"
	"github.com/tanaikit/pool2api/internal/usage"
)

type fakeDispatcher struct {
	provider string
	events   []translator.Event
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, provider string, _ *translator.ChatRequest) (translator.Stream, *store.Credential, error) {
	d.provider = provider
	if d.err != nil {
		return nil, nil, d.err
	}
	out := make(chan translator.Event, len(d.events))
	for _, ev := range d.events {
		out <- ev
	}
	close(out)
	return out, &store.Credential{ID: 1, Provider: provider}, nil
}

func newTestRouterWithUsage(d Dispatcher, format, forced string, um *usage.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(d, registry.New(), um)
	r := gin.New()
	r.POST("/chat", h.Chat(format, forced))
	return r
}

func newTestRouter(d Dispatcher, format, forced string) *gin.Engine {
	return newTestRouterWithUsage(d, format, forced, usage.NewManager(16))
}

func doPost(t *testing.T, r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func successEvents() []translator.Event {
	return []translator.Event{
		{Type: translator.EventMessageStart},
		{Type: translator.EventTextDelta, Text: "hello"},
		{Type: translator.EventMessageStop, Usage: &translator.Usage{InputTokens: 3, OutputTokens: 2}},
	}
}

func TestChatNonStreaming(t *testing.T) {
	d := &fakeDispatcher{events: successEvents()}
	r := newTestRouter(d, constant.Claude, "")

	w := doPost(t, r, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	root := gjson.Parse(w.Body.String())
	assert.Equal(t, "message", root.Get("type").String())
	assert.Equal(t, "hello", root.Get("content.0.text").String())
	assert.Equal(t, constant.ProviderKiro, d.provider, "claude models route to the default provider")
}

func TestChatStreaming(t *testing.T) {
	d := &fakeDispatcher{events: successEvents()}
	r := newTestRouter(d, constant.Claude, "")

	w := doPost(t, r, `{"model":"claude-sonnet-4-5","stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event: message_start")
	assert.Contains(t, body, `"text":"hello"`)
	assert.Contains(t, body, "event: message_stop")
}

// disconnectingDispatcher emits a partial stream, drops the request context,
// then ends the stream, mimicking an upstream torn down by the client leaving.
type disconnectingDispatcher struct {
	cancel context.CancelFunc
}

func (d *disconnectingDispatcher) Dispatch(_ context.Context, provider string, _ *translator.ChatRequest) (translator.Stream, *store.Credential, error) {
	out := make(chan translator.Event)
	go func() {
		defer close(out)
		out <- translator.Event{Type: translator.EventMessageStart}
		out <- translator.Event{Type: translator.EventTextDelta, Text: "partial"}
		out <- translator.Event{Type: translator.EventUsageUpdate, Usage: &translator.Usage{InputTokens: 3, OutputTokens: 5}}
		d.cancel()
	}()
	return out, &store.Credential{ID: 1, Provider: provider}, nil
}

type usageSinkFunc func(usage.Record)

func (f usageSinkFunc) HandleUsage(_ context.Context, record usage.Record) { f(record) }

func TestChatStreamingClientDisconnect(t *testing.T) {
	records := make(chan usage.Record, 1)
	um := usage.NewManager(16)
	um.Register(usageSinkFunc(func(r usage.Record) { records <- r }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newTestRouterWithUsage(&disconnectingDispatcher{cancel: cancel}, constant.Claude, "", um)

	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"model":"claude-sonnet-4-5","stream":true,"messages":[{"role":"user","content":"hi"}]}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	select {
	case rec := <-records:
		assert.Equal(t, 499, rec.StatusCode, "a mid-stream disconnect is accounted as client closed request")
		assert.Equal(t, int64(5), rec.OutputTokens, "tokens streamed before the disconnect are kept")
	case <-time.After(time.Second):
		t.Fatal("no usage record published")
	}
}

func TestChatOpenAIStreamEndsWithDone(t *testing.T) {
	d := &fakeDispatcher{events: successEvents()}
	r := newTestRouter(d, constant.OpenAI, "")

	w := doPost(t, r, `{"model":"gpt-5","stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasSuffix(w.Body.String(), "data: [DONE]\n\n"))
}

func TestChatHeaderRouting(t *testing.T) {
	d := &fakeDispatcher{events: successEvents()}
	r := newTestRouter(d, constant.Claude, "")

	doPost(t, r, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"Model-Provider": "orchids"})
	assert.Equal(t, constant.ProviderOrchids, d.provider)

	doPost(t, r, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"Model-Provider": "gemini-antigravity"})
	assert.Equal(t, constant.ProviderAntigravity, d.provider)
}

func TestChatForcedProviderBeatsHeader(t *testing.T) {
	d := &fakeDispatcher{events: successEvents()}
	r := newTestRouter(d, constant.Claude, constant.ProviderOrchids)

	doPost(t, r, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"Model-Provider": "agent"})
	assert.Equal(t, constant.ProviderOrchids, d.provider)
}

func TestChatBadRequest(t *testing.T) {
	r := newTestRouter(&fakeDispatcher{}, constant.Claude, "")
	w := doPost(t, r, `{"messages":[]}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request_error", gjson.Parse(w.Body.String()).Get("error.type").String())
}

func TestChatNoCredentials(t *testing.T) {
	r := newTestRouter(&fakeDispatcher{err: executor.ErrNoCredentials}, constant.Claude, "")
	w := doPost(t, r, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no upstream capacity")
}

func TestChatUpstreamRateLimit(t *testing.T) {
	r := newTestRouter(&fakeDispatcher{err: &executor.StatusError{StatusCode: 429, Message: "slow down"}}, constant.Claude, "")
	w := doPost(t, r, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestChatSanitizesRevealingErrors(t *testing.T) {
	d := &fakeDispatcher{err: &executor.StatusError{
		StatusCode: 403,
		Message:    "AccessDeniedException: CodeWhisperer token invalid, Please run /login",
	}}
	r := newTestRouter(d, constant.Claude, "")
	w := doPost(t, r, `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusBadGateway, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "CodeWhisperer")
	assert.NotContains(t, body, "AccessDeniedException")
	assert.Contains(t, body, "service temporarily unavailable")
}

func TestSanitizeUpstreamMessage(t *testing.T) {
	assert.Equal(t, "service temporarily unavailable", sanitizeUpstreamMessage("kiro backend exploded"))
	assert.Equal(t, "plain timeout", sanitizeUpstreamMessage("plain timeout"))
}
