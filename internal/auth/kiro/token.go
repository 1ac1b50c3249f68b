// Package kiro implements token refresh for the Claude-over-AWS provider.
// Social credentials refresh against the desktop auth endpoint; DeviceCode and
// IdC credentials refresh against AWS OIDC with their client id and secret.
package kiro

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/store"
)

// TokenRefresher performs HTTP token refreshes for Kiro credentials.
type TokenRefresher struct {
	httpClient *http.Client
}

// NewTokenRefresher creates a refresher using the given HTTP client. A nil
// client falls back to http.DefaultClient.
func NewTokenRefresher(httpClient *http.Client) *TokenRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenRefresher{httpClient: httpClient}
}

type socialRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type idcRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	GrantType    string `json:"grantType"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Refresh exchanges the credential's refresh token for a new access token and
// returns an updated copy of the credential.
func (r *TokenRefresher) Refresh(ctx context.Context, cred *store.Credential) (*store.Credential, error) {
	region := cred.Region
	if region == "" {
		region = constant.KiroDefaultRegion
	}

	var endpoint string
	var payload any
	switch cred.AuthMethod {
	case constant.AuthMethodSocial:
		endpoint = fmt.Sprintf(constant.KiroSocialRefreshURL, region)
		payload = socialRefreshRequest{RefreshToken: cred.RefreshToken}
	case constant.AuthMethodDeviceCode, constant.AuthMethodIdC:
		endpoint = fmt.Sprintf(constant.KiroIdCRefreshURL, region)
		payload = idcRefreshRequest{
			RefreshToken: cred.RefreshToken,
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			GrantType:    "refresh_token",
		}
	default:
		return nil, fmt.Errorf("unsupported kiro auth method %q", cred.AuthMethod)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("refresh rejected with status %d: %s", resp.StatusCode, string(b))
	}

	var result refreshResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("refresh response contained no access token")
	}

	updated := *cred
	updated.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		updated.RefreshToken = result.RefreshToken
	}
	expiresIn := result.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	updated.ExpiresAt = sql.NullTime{Time: time.Now().Add(time.Duration(expiresIn) * time.Second), Valid: true}
	return &updated, nil
}
