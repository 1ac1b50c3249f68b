package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/pool"
	"github.com/tanaikit/pool2api/internal/store"
)

type fakeStore struct {
	active      map[string][]*store.Credential
	errored     map[string][]*store.ErrorCredential
	quarantined []int64
	restored    []int64
	pruned      time.Duration
}

func (s *fakeStore) ListActiveCredentials(_ context.Context, provider string) ([]*store.Credential, error) {
	return s.active[provider], nil
}

func (s *fakeStore) QuarantineCredential(_ context.Context, cred *store.Credential, _ string) error {
	s.quarantined = append(s.quarantined, cred.ID)
	return nil
}

func (s *fakeStore) ListErrorCredentials(_ context.Context, provider string) ([]*store.ErrorCredential, error) {
	return s.errored[provider], nil
}

func (s *fakeStore) RestoreCredential(_ context.Context, ec *store.ErrorCredential, _ *store.Credential) (int64, error) {
	s.restored = append(s.restored, ec.ID)
	return ec.ID + 100, nil
}

func (s *fakeStore) PruneLogs(_ context.Context, olderThan time.Duration) (int64, error) {
	s.pruned = olderThan
	return 3, nil
}

type scriptedRefresher struct {
	err   error
	calls int
}

func (r *scriptedRefresher) Refresh(_ context.Context, cred *store.Credential) (*store.Credential, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	updated := *cred
	updated.ExpiresAt = sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true}
	return &updated, nil
}

type scriptedProber struct {
	err    error
	probed []int64
}

func (p *scriptedProber) Probe(_ context.Context, cred *store.Credential) error {
	p.probed = append(p.probed, cred.ID)
	return p.err
}

func expiring(id int64) *store.Credential {
	return &store.Credential{
		ID:        id,
		Provider:  constant.ProviderKiro,
		ExpiresAt: sql.NullTime{Time: time.Now().Add(time.Minute), Valid: true},
	}
}

func TestRefreshSweepQuarantinesOnFailure(t *testing.T) {
	refresher := &scriptedRefresher{err: errors.New("refresh token revoked")}
	refreshers := map[string]pool.Refresher{constant.ProviderKiro: refresher}
	p := pool.New(pool.NewRefreshService(refreshers, nil), false)

	st := &fakeStore{active: map[string][]*store.Credential{
		constant.ProviderKiro: {expiring(1)},
	}}
	s := New(st, p, refreshers, nil, 30*24*time.Hour)

	// Mark the credential unhealthy first; quarantine must clear that state.
	p.Health.MarkUnhealthy("kiro/1", "boom")
	s.refreshSweep(context.Background())

	assert.Equal(t, []int64{1}, st.quarantined)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, 0, p.Health.Snapshot("kiro/1").ErrorCount, "quarantine forgets health state")
}

func TestRefreshSweepSkipsFreshTokens(t *testing.T) {
	refresher := &scriptedRefresher{}
	refreshers := map[string]pool.Refresher{constant.ProviderKiro: refresher}
	p := pool.New(pool.NewRefreshService(refreshers, nil), false)

	fresh := &store.Credential{
		ID:        1,
		Provider:  constant.ProviderKiro,
		ExpiresAt: sql.NullTime{Time: time.Now().Add(2 * time.Hour), Valid: true},
	}
	st := &fakeStore{active: map[string][]*store.Credential{constant.ProviderKiro: {fresh}}}
	New(st, p, refreshers, nil, time.Hour).refreshSweep(context.Background())

	assert.Zero(t, refresher.calls)
	assert.Empty(t, st.quarantined)
}

func TestErrorRetryRestoresAfterProbe(t *testing.T) {
	refresher := &scriptedRefresher{}
	refreshers := map[string]pool.Refresher{constant.ProviderKiro: refresher}
	p := pool.New(pool.NewRefreshService(refreshers, nil), false)
	prober := &scriptedProber{}

	st := &fakeStore{errored: map[string][]*store.ErrorCredential{
		constant.ProviderKiro: {{ID: 5, Provider: constant.ProviderKiro, RefreshToken: "rt"}},
	}}
	New(st, p, refreshers, prober, time.Hour).errorRetry(context.Background())

	assert.Equal(t, []int64{5}, prober.probed, "probe runs before restore")
	assert.Equal(t, []int64{5}, st.restored)
}

func TestErrorRetrySkipsOnProbeFailure(t *testing.T) {
	refreshers := map[string]pool.Refresher{constant.ProviderKiro: &scriptedRefresher{}}
	p := pool.New(pool.NewRefreshService(refreshers, nil), false)
	prober := &scriptedProber{err: errors.New("still unauthorized")}

	st := &fakeStore{errored: map[string][]*store.ErrorCredential{
		constant.ProviderKiro: {{ID: 5, Provider: constant.ProviderKiro}},
	}}
	New(st, p, refreshers, prober, time.Hour).errorRetry(context.Background())

	assert.Empty(t, st.restored, "failing probe keeps the credential quarantined")
}

func TestErrorRetrySkipsOnRefreshFailure(t *testing.T) {
	refresher := &scriptedRefresher{err: errors.New("revoked")}
	refreshers := map[string]pool.Refresher{constant.ProviderKiro: refresher}
	p := pool.New(pool.NewRefreshService(refreshers, nil), false)
	prober := &scriptedProber{}

	st := &fakeStore{errored: map[string][]*store.ErrorCredential{
		constant.ProviderKiro: {{ID: 5, Provider: constant.ProviderKiro}},
	}}
	New(st, p, refreshers, prober, time.Hour).errorRetry(context.Background())

	assert.Empty(t, prober.probed)
	assert.Empty(t, st.restored)
}

func TestPruneLogsUsesRetention(t *testing.T) {
	refreshers := map[string]pool.Refresher{}
	p := pool.New(pool.NewRefreshService(refreshers, nil), false)
	st := &fakeStore{}

	retention := 7 * 24 * time.Hour
	New(st, p, refreshers, nil, retention).pruneLogs(context.Background())
	require.Equal(t, retention, st.pruned)
}
