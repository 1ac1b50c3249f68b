package executor

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tanaikit/pool2api/internal/pool"
	"github.com/tanaikit/pool2api/internal/store"
	"github.com/tanaikit/pool2api/internal/translator"
)

// maxAttempts caps the fallback loop regardless of pool size.
const maxAttempts = 3

// ErrNoCredentials is returned when a provider's pool is empty.
var ErrNoCredentials = errors.New("no credentials available")

// CredentialSource lists and updates pool credentials. Satisfied by
// store.Store.
type CredentialSource interface {
	ListActiveCredentials(ctx context.Context, provider string) ([]*store.Credential, error)
	IncrementCredentialUse(ctx context.Context, provider string, id int64) error
}

// Dispatcher runs the select-lock-refresh-execute loop with fallback across
// the provider's credential pool.
type Dispatcher struct {
	pool      *pool.Pool
	creds     CredentialSource
	executors map[string]Executor
}

// NewDispatcher assembles the dispatch engine over the registered executors.
func NewDispatcher(p *pool.Pool, creds CredentialSource, executors ...Executor) *Dispatcher {
	m := make(map[string]Executor, len(executors))
	for _, e := range executors {
		m[e.Identifier()] = e
	}
	return &Dispatcher{pool: p, creds: creds, executors: m}
}

// Dispatch executes the request against the named provider. The returned
// stream yields normalized events; the credential lock is held until the
// stream closes. The caller's credential id is reported for logging.
func (d *Dispatcher) Dispatch(ctx context.Context, provider string, req *translator.ChatRequest) (translator.Stream, *store.Credential, error) {
	exec, ok := d.executors[provider]
	if !ok {
		return nil, nil, fmt.Errorf("no executor for provider %q", provider)
	}
	candidates, err := d.creds.ListActiveCredentials(ctx, provider)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, ErrNoCredentials
	}

	attempts := len(candidates)
	if attempts > maxAttempts {
		attempts = maxAttempts
	}

	exclude := make(map[string]bool)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		cred := d.pool.Select(candidates, exclude)
		if cred == nil {
			break
		}
		key := cred.Key()
		exclude[key] = true

		if err = d.pool.Locks.Acquire(ctx, key); err != nil {
			return nil, nil, err
		}

		cred, err = d.ensureFresh(ctx, cred)
		if err != nil {
			d.pool.Locks.Release(key)
			d.pool.Health.MarkUnhealthy(key, err.Error())
			lastErr = err
			log.WithField("credential", key).Warnf("token refresh failed, trying next credential: %v", err)
			continue
		}

		d.pool.Health.RecordUse(key)
		if useErr := d.creds.IncrementCredentialUse(ctx, cred.Provider, cred.ID); useErr != nil {
			log.WithField("credential", key).Warnf("failed to persist use count: %v", useErr)
		}

		stream, execErr := exec.Execute(ctx, cred, req)
		if execErr != nil {
			d.pool.Locks.Release(key)
			if !d.retryable(key, execErr) {
				return nil, nil, execErr
			}
			lastErr = execErr
			continue
		}

		return d.releaseOnClose(stream, key), cred, nil
	}

	if lastErr == nil {
		lastErr = ErrNoCredentials
	}
	return nil, nil, lastErr
}

// Probe verifies a specific credential can serve a minimal request. Used by
// the error-retry scheduler before restoring a quarantined credential; it
// bypasses pool selection and locking on purpose.
func (d *Dispatcher) Probe(ctx context.Context, cred *store.Credential) error {
	exec, ok := d.executors[cred.Provider]
	if !ok {
		return fmt.Errorf("no executor for provider %q", cred.Provider)
	}
	req := &translator.ChatRequest{
		Model:     "",
		MaxTokens: 1,
		Turns: []translator.Turn{{
			Role:  "user",
			Parts: []translator.Part{{Type: translator.PartText, Text: "ping"}},
		}},
	}
	stream, err := exec.Execute(ctx, cred, req)
	if err != nil {
		return err
	}
	for ev := range stream {
		if ev.Type == translator.EventError {
			return ev.Err
		}
	}
	return nil
}

// ensureFresh refreshes the credential when its token expires inside the
// provider's proactive window. Providers without a refresher use tokens as
// stored.
func (d *Dispatcher) ensureFresh(ctx context.Context, cred *store.Credential) (*store.Credential, error) {
	if !d.pool.Refresh.CanRefresh(cred.Provider) {
		return cred, nil
	}
	if !cred.ExpiringSoon(pool.ExpiryWindow(cred.Provider)) {
		return cred, nil
	}
	return d.pool.Refresh.Refresh(ctx, cred)
}

// retryable classifies an upstream failure. Auth and rate-limit statuses mark
// the credential unhealthy and allow fallback; server errors allow fallback
// without a health penalty; anything else is terminal for the request.
func (d *Dispatcher) retryable(key string, err error) bool {
	status := StatusOf(err)
	switch {
	case status == 401 || status == 403 || status == 429:
		d.pool.Health.MarkUnhealthy(key, err.Error())
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// releaseOnClose forwards events until the inner stream closes, then records
// the credential's health and releases its lock. Health is judged on the whole
// stream, not on the upstream accepting the request: a clean close marks the
// credential healthy, an auth or rate-limit error event marks it unhealthy,
// and other mid-stream errors leave its state alone. Cancellation closes the
// inner stream through the adapter, so the lock is freed promptly on client
// disconnect too.
func (d *Dispatcher) releaseOnClose(in translator.Stream, key string) translator.Stream {
	out := make(chan translator.Event)
	go func() {
		defer close(out)
		defer d.pool.Locks.Release(key)
		var streamErr error
		for ev := range in {
			if ev.Type == translator.EventError && ev.Err != nil {
				streamErr = ev.Err
			}
			out <- ev
		}
		switch status := StatusOf(streamErr); {
		case streamErr == nil:
			d.pool.Health.MarkHealthy(key)
		case status == 401 || status == 403 || status == 429:
			d.pool.Health.MarkUnhealthy(key, streamErr.Error())
		}
	}()
	return out
}
