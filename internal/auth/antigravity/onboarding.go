package antigravity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/tanaikit/pool2api/internal/constant"
)

// Onboarder performs the one-time loadCodeAssist call that discovers the
// Google Cloud project id bound to a credential. The id is persisted on the
// credential record and attached to every subsequent generate call.
type Onboarder struct {
	httpClient *http.Client

	// BaseURL overrides the Antigravity API root. Tests point this at a
	// fixture server.
	BaseURL string
}

// NewOnboarder creates an onboarder using the given HTTP client.
func NewOnboarder(httpClient *http.Client) *Onboarder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Onboarder{httpClient: httpClient, BaseURL: constant.AntigravityBaseURL}
}

// Discover resolves the cloud project id for the access token. It prefers the
// project already assigned to the account and falls back to the default
// onboarding tier.
func (o *Onboarder) Discover(ctx context.Context, accessToken string) (string, error) {
	body := []byte(`{"metadata":{"pluginType":"ANTIGRAVITY"}}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+":loadCodeAssist", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("loadCodeAssist request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("loadCodeAssist rejected with status %d: %s", resp.StatusCode, string(data))
	}

	if projectID := gjson.GetBytes(data, "cloudaicompanionProject").String(); projectID != "" {
		log.Debugf("onboarding resolved existing project %s", projectID)
		return projectID, nil
	}

	// No project assigned yet; run the onboarding flow with the default tier.
	tierID := gjson.GetBytes(data, "allowedTiers.#(isDefault==true).id").String()
	if tierID == "" {
		tierID = "free-tier"
	}
	onboardBody := []byte(fmt.Sprintf(`{"tierId":%q,"metadata":{"pluginType":"ANTIGRAVITY"}}`, tierID))
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+":onboardUser", bytes.NewReader(onboardBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err = o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("onboardUser request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("onboardUser rejected with status %d: %s", resp.StatusCode, string(data))
	}
	projectID := gjson.GetBytes(data, "response.cloudaicompanionProject.id").String()
	if projectID == "" {
		return "", fmt.Errorf("onboarding returned no project id")
	}
	log.Debugf("onboarding provisioned project %s", projectID)
	return projectID, nil
}
