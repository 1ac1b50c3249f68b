// Package executor implements the upstream provider adapters and the
// dispatch engine that selects, locks, and refreshes credentials around each
// upstream call. Every adapter converts its provider's native response into
// the normalized event stream; handlers never see provider wire formats.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
	"github.com/tanaikit/pool2api/internal/util"
)

// upstreamTimeout bounds a single upstream HTTP call including the stream.
const upstreamTimeout = 120 * time.Second

// Executor is one upstream provider adapter.
type Executor interface {
	// Identifier returns the provider constant this executor serves.
	Identifier() string

	// Execute performs one upstream call. The returned stream closes after
	// EventMessageStop or EventError; cancelling ctx aborts the upstream
	// connection.
	Execute(ctx context.Context, cred *store.Credential, req *translator.ChatRequest) (translator.Stream, error)
}

// StatusError is an upstream failure carrying the upstream HTTP status so the
// dispatcher can classify it for fallback.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// StatusOf extracts the upstream status from an error chain; zero when the
// error carries none.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// newHTTPClient builds an upstream client honoring the configured outbound
// proxy.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	return util.SetProxy(proxyURL, client)
}

// emit delivers an event unless the context is gone.
func emit(ctx context.Context, out chan<- translator.Event, ev translator.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail sends a terminal error event.
func fail(ctx context.Context, out chan<- translator.Event, err error) {
	emit(ctx, out, translator.Event{Type: translator.EventError, Err: err})
}
