// Package constant defines provider and wire-format identifiers used throughout
// the proxy. These constants keep naming consistent between handlers, the
// dispatcher, and the translator registry.
package constant

// Downstream wire formats.
const (
	// Claude represents the Anthropic Messages API format.
	Claude = "claude"

	// OpenAI represents the OpenAI Chat Completions format.
	OpenAI = "openai"

	// Gemini represents the Google Gemini generateContent format.
	Gemini = "gemini"
)

// Upstream provider identifiers.
const (
	// ProviderKiro is the Claude-over-AWS (CodeWhisperer) provider.
	ProviderKiro = "kiro"

	// ProviderAntigravity is the Gemini-over-GCP provider.
	ProviderAntigravity = "antigravity"

	// ProviderOrchids is the WebSocket Claude provider.
	ProviderOrchids = "orchids"

	// ProviderAgent is the protobuf-over-SSE command agent provider.
	ProviderAgent = "agent"
)

// Credential auth methods.
const (
	AuthMethodSocial      = "social"
	AuthMethodDeviceCode  = "device-code"
	AuthMethodIdC         = "idc"
	AuthMethodGoogleOAuth = "google-oauth"
	AuthMethodRefreshOnly = "refresh-only"
)

// Upstream endpoints. Region-templated entries are formatted with the
// credential's region before use.
const (
	// KiroGenerateURL is the CodeWhisperer assistant response endpoint.
	KiroGenerateURL = "https://codewhisperer.%s.amazonaws.com/GenerateAssistantResponse"

	// KiroSocialRefreshURL refreshes Social auth tokens.
	KiroSocialRefreshURL = "https://prod.%s.auth.desktop.kiro.dev/refreshToken"

	// KiroIdCRefreshURL refreshes DeviceCode/IdC tokens via AWS OIDC.
	KiroIdCRefreshURL = "https://oidc.%s.amazonaws.com/token"

	// KiroDefaultRegion is used when a credential has no region recorded.
	KiroDefaultRegion = "us-east-1"

	// AntigravityBaseURL is the Antigravity v1internal API root.
	AntigravityBaseURL = "https://cloudcode-pa.googleapis.com/v1internal"

	// OrchidsSessionsURL lists Clerk sessions for the stored client JWT.
	OrchidsSessionsURL = "https://clerk.orchids.app/v1/client/sessions"

	// OrchidsWSURL is the single WebSocket endpoint of the Orchids provider.
	OrchidsWSURL = "wss://api.orchids.app/agent/ws"

	// AgentEndpointURL receives protobuf-encoded agent requests.
	AgentEndpointURL = "https://agent.crush.run/api/v1/run"
)
