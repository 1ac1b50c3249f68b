package pool

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/store"
)

const refreshTimeout = 30 * time.Second

// Refresher performs a provider-specific token refresh. Implementations must
// not mutate the input credential; they return an updated copy.
type Refresher interface {
	Refresh(ctx context.Context, cred *store.Credential) (*store.Credential, error)
}

// Persister saves refreshed tokens and error counters. Satisfied by
// store.Store.
type Persister interface {
	UpdateCredentialTokens(ctx context.Context, cred *store.Credential) error
	RecordCredentialError(ctx context.Context, provider string, id int64, msg string) error
}

// RefreshService coordinates token refreshes with at most one in-flight
// refresh per credential. Concurrent callers for the same credential share the
// result of the single upstream call.
type RefreshService struct {
	refreshers map[string]Refresher
	persister  Persister
	group      singleflight.Group
}

// NewRefreshService wires per-provider refreshers to the persistence gateway.
func NewRefreshService(refreshers map[string]Refresher, persister Persister) *RefreshService {
	return &RefreshService{refreshers: refreshers, persister: persister}
}

// CanRefresh reports whether a refresher is registered for the provider.
// Providers with static tokens (the protobuf agent) have none.
func (s *RefreshService) CanRefresh(provider string) bool {
	_, ok := s.refreshers[provider]
	return ok
}

// ExpiryWindow returns the proactive-refresh window for a provider. A token
// whose expiry falls inside the window is refreshed before use.
func ExpiryWindow(provider string) time.Duration {
	if provider == constant.ProviderAntigravity {
		return 50 * time.Minute
	}
	return 10 * time.Minute
}

// Refresh performs (or joins) the single in-flight refresh for the credential.
// On success the new tokens are persisted and the updated record returned. The
// caller's context does not cancel an in-flight refresh shared with others;
// the refresh runs under its own timeout and its result is cached for the
// waiters.
func (s *RefreshService) Refresh(ctx context.Context, cred *store.Credential) (*store.Credential, error) {
	refresher, ok := s.refreshers[cred.Provider]
	if !ok {
		return nil, fmt.Errorf("no refresher registered for provider %q", cred.Provider)
	}

	result, err, shared := s.group.Do(cred.Key(), func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		updated, refreshErr := refresher.Refresh(refreshCtx, cred)
		if refreshErr != nil {
			if s.persister != nil {
				if recErr := s.persister.RecordCredentialError(refreshCtx, cred.Provider, cred.ID, refreshErr.Error()); recErr != nil {
					log.Errorf("failed to record refresh error for %s: %v", cred.Key(), recErr)
				}
			}
			return nil, refreshErr
		}
		if s.persister != nil {
			if saveErr := s.persister.UpdateCredentialTokens(refreshCtx, updated); saveErr != nil {
				return nil, fmt.Errorf("refreshed but failed to persist tokens: %w", saveErr)
			}
		}
		log.Debugf("refreshed credential %s, new expiry %v", cred.Key(), updated.ExpiresAt.Time)
		return updated, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debugf("joined in-flight refresh for credential %s", cred.Key())
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result.(*store.Credential), nil
}
