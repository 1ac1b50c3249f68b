// Package scheduler runs the background maintenance loops: the proactive
// token refresh sweep, the quarantined-credential retry, and accounting log
// retention. Each loop runs on its own ticker under a shared context.
package scheduler

import (
	"context"
	"database/sql"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/pool"
	"github.com/tanaikit/pool2api/internal/store"
)

const (
	refreshSweepInterval = 12 * time.Hour
	errorRetryInterval   = time.Hour
	logPruneInterval     = 24 * time.Hour

	// sweepExpiryWindow selects credentials due for refresh during a sweep.
	sweepExpiryWindow = 10 * time.Minute

	// sweepStagger spaces refreshes so a sweep never bursts the auth
	// endpoints.
	sweepStagger = 2 * time.Second
)

var allProviders = []string{
	constant.ProviderKiro,
	constant.ProviderAntigravity,
	constant.ProviderOrchids,
	constant.ProviderAgent,
}

// Store is the persistence surface the scheduler needs. Satisfied by
// store.Store.
type Store interface {
	ListActiveCredentials(ctx context.Context, provider string) ([]*store.Credential, error)
	QuarantineCredential(ctx context.Context, cred *store.Credential, msg string) error
	ListErrorCredentials(ctx context.Context, provider string) ([]*store.ErrorCredential, error)
	RestoreCredential(ctx context.Context, ec *store.ErrorCredential, cred *store.Credential) (int64, error)
	PruneLogs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Prober verifies a refreshed credential can serve a request before it is
// restored from quarantine.
type Prober interface {
	Probe(ctx context.Context, cred *store.Credential) error
}

// Scheduler owns the three maintenance loops.
type Scheduler struct {
	store      Store
	pool       *pool.Pool
	refreshers map[string]pool.Refresher
	prober     Prober
	retention  time.Duration
}

// New assembles a scheduler. refreshers is the same provider map the refresh
// service uses; retention is the ApiLog retention window.
func New(s Store, p *pool.Pool, refreshers map[string]pool.Refresher, prober Prober, retention time.Duration) *Scheduler {
	return &Scheduler{
		store:      s,
		pool:       p,
		refreshers: refreshers,
		prober:     prober,
		retention:  retention,
	}
}

// Run starts all loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loop(ctx, refreshSweepInterval, s.refreshSweep)
	go s.loop(ctx, errorRetryInterval, s.errorRetry)
	go s.loop(ctx, logPruneInterval, s.pruneLogs)
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, task func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// refreshSweep refreshes every active credential whose token expires inside
// the sweep window. Failures quarantine the credential.
func (s *Scheduler) refreshSweep(ctx context.Context) {
	for _, provider := range allProviders {
		if !s.pool.Refresh.CanRefresh(provider) {
			continue
		}
		creds, err := s.store.ListActiveCredentials(ctx, provider)
		if err != nil {
			log.Errorf("refresh sweep: failed to list %s credentials: %v", provider, err)
			continue
		}
		for _, cred := range creds {
			if !cred.ExpiringSoon(sweepExpiryWindow) {
				continue
			}
			if _, err = s.pool.Refresh.Refresh(ctx, cred); err != nil {
				log.WithField("credential", cred.Key()).Warnf("sweep refresh failed, quarantining: %v", err)
				if qErr := s.store.QuarantineCredential(ctx, cred, err.Error()); qErr != nil {
					log.Errorf("failed to quarantine %s: %v", cred.Key(), qErr)
				} else {
					s.pool.Health.Forget(cred.Key())
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(sweepStagger):
			}
		}
	}
}

// errorRetry attempts to revive quarantined credentials: refresh, probe, and
// restore on success.
func (s *Scheduler) errorRetry(ctx context.Context) {
	for _, provider := range allProviders {
		refresher, ok := s.refreshers[provider]
		if !ok {
			continue
		}
		errored, err := s.store.ListErrorCredentials(ctx, provider)
		if err != nil {
			log.Errorf("error retry: failed to list %s error credentials: %v", provider, err)
			continue
		}
		for _, ec := range errored {
			cred := credentialFromError(ec)
			refreshed, refreshErr := refresher.Refresh(ctx, cred)
			if refreshErr != nil {
				log.Debugf("error retry: refresh still failing for %s/%d: %v", provider, ec.ID, refreshErr)
				continue
			}
			if s.prober != nil {
				if probeErr := s.prober.Probe(ctx, refreshed); probeErr != nil {
					log.Debugf("error retry: probe failed for %s/%d: %v", provider, ec.ID, probeErr)
					continue
				}
			}
			newID, restoreErr := s.store.RestoreCredential(ctx, ec, refreshed)
			if restoreErr != nil {
				log.Errorf("error retry: failed to restore %s/%d: %v", provider, ec.ID, restoreErr)
				continue
			}
			log.Infof("restored credential %s/%d as id %d", provider, ec.ID, newID)
		}
	}
}

func credentialFromError(ec *store.ErrorCredential) *store.Credential {
	return &store.Credential{
		ID:           ec.ID,
		Name:         ec.Name,
		AuthMethod:   ec.AuthMethod,
		AccessToken:  ec.AccessToken,
		RefreshToken: ec.RefreshToken,
		ClientID:     ec.ClientID,
		ClientSecret: ec.ClientSecret,
		Region:       ec.Region,
		ProjectID:    ec.ProjectID,
		ExpiresAt:    sql.NullTime{Time: ec.ExpiresAt.Time, Valid: ec.ExpiresAt.Valid},
		Provider:     ec.Provider,
	}
}

// pruneLogs enforces the accounting retention window.
func (s *Scheduler) pruneLogs(ctx context.Context) {
	removed, err := s.store.PruneLogs(ctx, s.retention)
	if err != nil {
		log.Errorf("log prune failed: %v", err)
		return
	}
	if removed > 0 {
		log.Infof("pruned %d api log rows older than %v", removed, s.retention)
	}
}
