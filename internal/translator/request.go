package translator

import "fmt"

// Part types inside a turn.
const (
	PartText       = "text"
	PartToolUse    = "tool_use"
	PartToolResult = "tool_result"
)

// Part is one content element of a turn.
type Part struct {
	// Type is one of the Part* constants.
	Type string

	// Text carries PartText content.
	Text string

	// ToolID correlates a tool invocation with its result across turns.
	ToolID string

	// ToolName is set on PartToolUse.
	ToolName string

	// ToolInput is the raw JSON input of a PartToolUse.
	ToolInput string

	// Result is the textual payload of a PartToolResult.
	Result string

	// IsError marks a failed tool result.
	IsError bool
}

// Turn is one message of the conversation.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// Parts holds the turn's content in order.
	Parts []Part
}

// Tool is a downstream tool definition.
type Tool struct {
	Name        string
	Description string

	// InputSchema is the raw JSON schema of the tool parameters.
	InputSchema string
}

// ChatRequest is the internal normal form every downstream request is parsed
// into and every provider request is emitted from.
type ChatRequest struct {
	// Model is the downstream-visible model name, before provider aliasing.
	Model string

	// System is the concatenated system prompt.
	System string

	// Turns is the ordered conversation.
	Turns []Turn

	// Tools lists the tool definitions offered to the model.
	Tools []Tool

	// Stream requests a streaming response.
	Stream bool

	// MaxTokens caps the response length; zero means provider default.
	MaxTokens int

	// Temperature and TopP are optional sampling parameters.
	Temperature *float64
	TopP        *float64
}

// ToolNameByID resolves a tool-use id to the tool name recorded in a prior
// assistant turn. Downstream tool_result blocks carry only the id; the
// upstream result shape depends on the tool, so the mapping is rebuilt from
// the conversation on every request.
func (r *ChatRequest) ToolNameByID(id string) string {
	for _, turn := range r.Turns {
		for _, part := range turn.Parts {
			if part.Type == PartToolUse && part.ToolID == id {
				return part.ToolName
			}
		}
	}
	return ""
}

// Format bundles the parser and emitters for one downstream wire format.
type Format struct {
	// ParseRequest converts a downstream request body to the normal form.
	ParseRequest func(raw []byte) (*ChatRequest, error)

	// EmitRequest renders the normal form back as this format's request
	// body. Used for round-trips and for providers that natively speak a
	// downstream format.
	EmitRequest func(req *ChatRequest) []byte

	// NewStreamEmitter creates a stateful renderer that turns the normalized
	// event stream into this format's SSE frames.
	NewStreamEmitter func(model string) StreamEmitter

	// CollectResponse renders a completed event sequence as this format's
	// non-streaming JSON response.
	CollectResponse func(model string, events []Event) []byte

	// ErrorBody renders an error envelope in this format.
	ErrorBody func(status int, message string) []byte
}

// StreamEmitter renders normalized events as wire frames. Emit returns zero
// or more complete SSE frames per event.
type StreamEmitter interface {
	Emit(ev Event) []string
}

var formats = make(map[string]Format)

// RegisterFormat installs a downstream format. Called from format package
// init functions.
func RegisterFormat(name string, f Format) {
	formats[name] = f
}

// GetFormat looks up a registered format.
func GetFormat(name string) (Format, error) {
	f, ok := formats[name]
	if !ok {
		return Format{}, fmt.Errorf("unknown format %q", name)
	}
	return f, nil
}
