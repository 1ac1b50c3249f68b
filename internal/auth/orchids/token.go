// Package orchids implements session token refresh for the WebSocket Claude
// provider. The stored client JWT authenticates against the Clerk sessions
// endpoint; the freshest session JWT becomes the access token used to open
// the WebSocket.
package orchids

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/store"
)

// Clerk session JWTs are short-lived; treat them as valid for 50 seconds and
// let the proactive-refresh window handle renewal.
const sessionTokenLifetime = 50 * time.Second

// TokenRefresher obtains fresh session JWTs from Clerk.
type TokenRefresher struct {
	httpClient *http.Client

	// SessionsURL overrides the Clerk endpoint. Tests point this at a
	// fixture server.
	SessionsURL string
}

// NewTokenRefresher creates a refresher using the given HTTP client.
func NewTokenRefresher(httpClient *http.Client) *TokenRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenRefresher{httpClient: httpClient, SessionsURL: constant.OrchidsSessionsURL}
}

// Refresh lists the client's Clerk sessions and extracts the most recently
// issued session JWT. The client JWT itself (the refresh token) is long-lived
// and unchanged.
func (r *TokenRefresher) Refresh(ctx context.Context, cred *store.Credential) (*store.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.SessionsURL+"?__clerk_api_version=2021-02-05", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", cred.RefreshToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clerk sessions request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clerk sessions rejected with status %d: %s", resp.StatusCode, string(data))
	}

	var freshest gjson.Result
	var freshestIssued int64
	gjson.GetBytes(data, "response").ForEach(func(_, session gjson.Result) bool {
		token := session.Get("last_active_token.jwt")
		issued := session.Get("last_active_token.created_at").Int()
		if token.Exists() && issued >= freshestIssued {
			freshest = token
			freshestIssued = issued
		}
		return true
	})
	if !freshest.Exists() || freshest.String() == "" {
		return nil, fmt.Errorf("no active clerk session found")
	}

	updated := *cred
	updated.AccessToken = freshest.String()
	updated.ExpiresAt = sql.NullTime{Time: time.Now().Add(sessionTokenLifetime), Valid: true}
	return &updated, nil
}
