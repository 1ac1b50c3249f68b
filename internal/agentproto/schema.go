// Package agentproto defines the wire schema spoken by the protobuf command
// agent and a protowire codec for it. The upstream accepts a protobuf Request
// over HTTPS POST and answers with SSE lines carrying base64-encoded
// ResponseEvent messages.
package agentproto

// ToolType enumerates the agent's native tools.
type ToolType int32

const (
	ToolUnspecified ToolType = 0
	ToolShell       ToolType = 1
	ToolReadFiles   ToolType = 2
	ToolGrepSearch  ToolType = 3
	ToolGlobSearch  ToolType = 4
	ToolApplyDiffs  ToolType = 5
	ToolMCP         ToolType = 6
)

// toolTypeNames pairs enum values with the agent's tool name strings.
var toolTypeNames = map[ToolType]string{
	ToolShell:      "run_shell_command",
	ToolReadFiles:  "read_files",
	ToolGrepSearch: "grep_search",
	ToolGlobSearch: "glob_search",
	ToolApplyDiffs: "apply_file_diffs",
}

// Name returns the agent's tool name string for the enum value.
func (t ToolType) Name() string {
	if name, ok := toolTypeNames[t]; ok {
		return name
	}
	return ""
}

// ToolTypeForName maps an agent tool name back to the enum.
func ToolTypeForName(name string) ToolType {
	for t, n := range toolTypeNames {
		if n == name {
			return t
		}
	}
	return ToolMCP
}

// Role values used in Message.
const (
	RoleUser      int32 = 1
	RoleAssistant int32 = 2
)

// FileContent is one file attached to the task's input context.
type FileContent struct {
	Path    string // field 1
	Content string // field 2
}

// InputContext carries the system prompt and attached files.
type InputContext struct {
	SystemPrompt string        // field 1
	Files        []FileContent // field 2
}

// ToolCall is a tool invocation, in requests (history) and response events.
type ToolCall struct {
	ID       string   // field 1
	Tool     ToolType // field 2
	Name     string   // field 3, set for MCP passthrough tools
	ArgsJSON string   // field 4
}

// ToolResult reports the outcome of a prior tool call back to the agent.
type ToolResult struct {
	CallID  string // field 1
	Output  string // field 2
	IsError bool   // field 3
}

// Message is one turn of the task's conversation.
type Message struct {
	Role        int32        // field 1
	Text        string       // field 2
	ToolCalls   []ToolCall   // field 3
	ToolResults []ToolResult // field 4
}

// ToolDefinition advertises a tool to the agent.
type ToolDefinition struct {
	Tool        ToolType // field 1
	Name        string   // field 2, MCP tools only
	Description string   // field 3
	SchemaJSON  string   // field 4
}

// Task is the unit of work sent to the agent.
type Task struct {
	ID       string           // field 1
	Messages []Message        // field 2
	Context  *InputContext    // field 3
	Tools    []ToolDefinition // field 4
}

// Request is the top-level upstream request body.
type Request struct {
	Task      *Task  // field 1
	Model     string // field 2
	Stream    bool   // field 3
	MaxTokens int64  // field 4
}

// StreamFinished closes a response stream with accounting.
type StreamFinished struct {
	InputTokens  int64  // field 1
	OutputTokens int64  // field 2
	StopReason   string // field 3
}

// ResponseEvent is one decoded SSE line from the agent. Exactly one of the
// pointer/string fields is populated per event.
type ResponseEvent struct {
	AgentOutput string          // field 1
	ToolCall    *ToolCall       // field 2
	Finished    *StreamFinished // field 3
	ErrorText   string          // field 4
}
