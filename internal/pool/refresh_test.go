package pool

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/store"
)

type blockingRefresher struct {
	calls   atomic.Int64
	release chan struct{}
}

func (r *blockingRefresher) Refresh(_ context.Context, cred *store.Credential) (*store.Credential, error) {
	r.calls.Add(1)
	<-r.release
	updated := *cred
	updated.AccessToken = "fresh"
	updated.ExpiresAt = sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true}
	return &updated, nil
}

type memPersister struct {
	mu      sync.Mutex
	updates int
	errors  int
}

func (p *memPersister) UpdateCredentialTokens(context.Context, *store.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	return nil
}

func (p *memPersister) RecordCredentialError(context.Context, string, int64, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors++
	return nil
}

func TestRefreshSingleFlight(t *testing.T) {
	refresher := &blockingRefresher{release: make(chan struct{})}
	persister := &memPersister{}
	svc := NewRefreshService(map[string]Refresher{constant.ProviderKiro: refresher}, persister)

	cred := &store.Credential{ID: 1, Provider: constant.ProviderKiro, RefreshToken: "rt"}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*store.Credential, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			updated, err := svc.Refresh(context.Background(), cred)
			require.NoError(t, err)
			results[n] = updated
		}(i)
	}

	// Let all callers pile onto the in-flight refresh before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(refresher.release)
	wg.Wait()

	assert.Equal(t, int64(1), refresher.calls.Load(), "one upstream call for all callers")
	assert.Equal(t, 1, persister.updates)
	for _, updated := range results {
		assert.Equal(t, "fresh", updated.AccessToken)
	}
}

func TestRefreshUnknownProvider(t *testing.T) {
	svc := NewRefreshService(nil, nil)
	_, err := svc.Refresh(context.Background(), &store.Credential{Provider: constant.ProviderAgent})
	assert.Error(t, err)
	assert.False(t, svc.CanRefresh(constant.ProviderAgent))
}

func TestExpiryWindowPerProvider(t *testing.T) {
	assert.Equal(t, 50*time.Minute, ExpiryWindow(constant.ProviderAntigravity))
	assert.Equal(t, 10*time.Minute, ExpiryWindow(constant.ProviderKiro))
	assert.Equal(t, 10*time.Minute, ExpiryWindow(constant.ProviderOrchids))
}
