// Package translator defines the internal chat request normal form and the
// normalized streaming event model that sit between downstream wire formats
// (Anthropic, OpenAI, Gemini) and the upstream provider adapters. Format
// packages register parsers and emitters here; adapters produce normalized
// events; emitters render them as the downstream's expected SSE or JSON shape.
package translator

// EventType enumerates the normalized streaming events. The set is closed:
// adapters must map every provider event onto one of these.
type EventType int

const (
	// EventMessageStart opens a response. Exactly one per response.
	EventMessageStart EventType = iota

	// EventTextDelta appends text to the current text block.
	EventTextDelta

	// EventReasoningDelta appends model reasoning (thinking) text.
	EventReasoningDelta

	// EventToolUseStart opens a tool-use block.
	EventToolUseStart

	// EventToolUseInputDelta appends partial JSON to the open tool-use block.
	EventToolUseInputDelta

	// EventToolUseStop closes the open tool-use block.
	EventToolUseStop

	// EventUsageUpdate reports token usage; the final update wins.
	EventUsageUpdate

	// EventMessageStop closes the response. Exactly one per response.
	EventMessageStop

	// EventError reports a terminal stream failure.
	EventError
)

// Usage carries token accounting attached to UsageUpdate and MessageStop.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Event is one normalized streaming event. Only the fields relevant to the
// Type are set.
type Event struct {
	Type EventType

	// MessageID and Model describe the response, set on MessageStart.
	MessageID string
	Model     string

	// Index is the content block index for block-scoped events.
	Index int

	// Text carries TextDelta and ReasoningDelta payloads.
	Text string

	// ToolID, ToolName identify a tool-use block on ToolUseStart.
	ToolID   string
	ToolName string

	// ToolInput carries partial JSON on ToolUseInputDelta and, when the
	// provider delivers inputs whole, the complete JSON on ToolUseStart.
	ToolInput string

	// Usage is set on UsageUpdate and may accompany MessageStop.
	Usage *Usage

	// StopReason is set on MessageStop: "end_turn", "tool_use", "max_tokens".
	StopReason string

	// Err is set on EventError.
	Err error
}

// Stream is a lazy, finite, non-restartable sequence of normalized events
// produced by a provider adapter. The channel closes after MessageStop or
// EventError. Cancelling the request context closes the source.
type Stream <-chan Event

// Stop reasons shared across formats.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)
