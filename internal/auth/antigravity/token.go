// Package antigravity implements Google OAuth token refresh and one-time
// project onboarding for the Gemini-over-GCP provider.
package antigravity

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tanaikit/pool2api/internal/store"
)

// OAuth client identity used by the Antigravity desktop application.
const (
	oauthClientID     = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
	oauthClientSecret = "d-FL95Q19q7MQmFpd7hHD0Ty"
)

// TokenRefresher refreshes Google OAuth access tokens using the stored
// refresh token grant.
type TokenRefresher struct {
	httpClient *http.Client

	// Onboard discovers the GCP project id on first use. Optional; when set
	// and the credential has no project id, refresh performs onboarding and
	// records the discovered id on the returned credential.
	Onboard *Onboarder
}

// NewTokenRefresher creates a refresher using the given HTTP client.
func NewTokenRefresher(httpClient *http.Client) *TokenRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenRefresher{httpClient: httpClient}
}

// Refresh exchanges the stored refresh token for a new access token. When the
// credential carries no project id yet, the onboarding call runs once and its
// result is persisted with the refreshed tokens.
func (r *TokenRefresher) Refresh(ctx context.Context, cred *store.Credential) (*store.Credential, error) {
	clientID := cred.ClientID
	clientSecret := cred.ClientSecret
	if clientID == "" {
		clientID = oauthClientID
		clientSecret = oauthClientSecret
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("google token refresh failed: %w", err)
	}

	updated := *cred
	updated.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		updated.RefreshToken = token.RefreshToken
	}
	updated.ExpiresAt = sql.NullTime{Time: token.Expiry, Valid: !token.Expiry.IsZero()}

	if updated.ProjectID == "" && r.Onboard != nil {
		projectID, onboardErr := r.Onboard.Discover(ctx, token.AccessToken)
		if onboardErr != nil {
			return nil, fmt.Errorf("project onboarding failed: %w", onboardErr)
		}
		updated.ProjectID = projectID
	}
	return &updated, nil
}
