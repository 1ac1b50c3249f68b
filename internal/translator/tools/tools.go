// Package tools maps tool names bidirectionally between the Anthropic-style
// downstream names and each provider's native names, and classifies shell
// commands for the side-channel flags some providers require.
package tools

import "strings"

// MCPPrefix marks tools passed through without translation.
const MCPPrefix = "mcp__"

// agentNames maps downstream (Anthropic-style) tool names to the protobuf
// agent's native names. The reverse table is derived at init.
var agentNames = map[string]string{
	"Bash": "run_shell_command",
	"Read": "read_files",
	"Grep": "grep_search",
	"Glob": "glob_search",
	// Write and Edit both land on apply_file_diffs; the payload shape
	// (new_files vs diffs) disambiguates on the way back.
	"Write": "apply_file_diffs",
	"Edit":  "apply_file_diffs",
}

var agentNamesReverse = map[string]string{}

func init() {
	for downstream, native := range agentNames {
		// Write wins the shared apply_file_diffs slot; FromAgent callers use
		// the payload to pick Edit when diffs are present.
		if native == "apply_file_diffs" {
			continue
		}
		agentNamesReverse[native] = downstream
	}
	agentNamesReverse["apply_file_diffs"] = "Write"
}

// ToAgent translates a downstream tool name to the agent's native name.
// Unknown tools pass through with the MCP prefix preserved or added.
func ToAgent(name string) string {
	if native, ok := agentNames[name]; ok {
		return native
	}
	if strings.HasPrefix(name, MCPPrefix) {
		return name
	}
	return MCPPrefix + name
}

// FromAgent translates an agent-native tool name back to the downstream name.
// hasDiffs selects Edit over Write for apply_file_diffs payloads carrying a
// diffs field.
func FromAgent(name string, hasDiffs bool) string {
	if name == "apply_file_diffs" && hasDiffs {
		return "Edit"
	}
	if downstream, ok := agentNamesReverse[name]; ok {
		return downstream
	}
	if strings.HasPrefix(name, MCPPrefix) {
		return name
	}
	return MCPPrefix + name
}

// orchidsNames maps downstream tool names to the WebSocket provider's names.
var orchidsNames = map[string]string{
	"Bash":  "shell",
	"Read":  "read_file",
	"Write": "write_file",
	"Edit":  "edit_file",
	"Grep":  "grep",
	"Glob":  "glob",
}

var orchidsNamesReverse = map[string]string{}

func init() {
	for downstream, native := range orchidsNames {
		orchidsNamesReverse[native] = downstream
	}
}

// ToOrchids translates a downstream tool name to the WebSocket provider's
// native name, with MCP passthrough for unknown tools.
func ToOrchids(name string) string {
	if native, ok := orchidsNames[name]; ok {
		return native
	}
	if strings.HasPrefix(name, MCPPrefix) {
		return name
	}
	return MCPPrefix + name
}

// FromOrchids translates a provider tool name back to the downstream name.
func FromOrchids(name string) string {
	if downstream, ok := orchidsNamesReverse[name]; ok {
		return downstream
	}
	if strings.HasPrefix(name, MCPPrefix) {
		return name
	}
	return MCPPrefix + name
}

// readOnlyPrefixes are commands considered side-effect free. A command
// matches when its first pipeline segment starts with one of these.
var readOnlyPrefixes = []string{
	"ls", "cat", "head", "tail", "grep", "rg", "find", "pwd", "echo", "wc",
	"which", "file", "stat", "du", "df", "env", "printenv", "whoami", "date",
	"git status", "git log", "git diff", "git show", "git branch", "git remote",
}

// riskyPatterns are substrings that mark a command destructive.
var riskyPatterns = []string{
	"rm -rf /", "rm -fr /", "sudo ", "chmod 777", "chmod -r 777", "mkfs",
	"dd if=", "> /dev/sd", ":(){", "shutdown", "reboot", "halt",
	"curl | sh", "curl|sh", "wget | sh", "wget|sh", "| sh", "|sh",
	"eval ", "kill -9 1", "init 0",
}

// IsReadOnly reports whether every pipeline segment of the command starts
// with a read-only prefix.
func IsReadOnly(command string) bool {
	command = strings.TrimSpace(strings.ToLower(command))
	if command == "" {
		return false
	}
	for _, segment := range strings.Split(command, "|") {
		segment = strings.TrimSpace(segment)
		matched := false
		for _, prefix := range readOnlyPrefixes {
			if segment == prefix || strings.HasPrefix(segment, prefix+" ") {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// IsRisky reports whether the command matches the destructive denylist.
func IsRisky(command string) bool {
	command = strings.ToLower(command)
	for _, pattern := range riskyPatterns {
		if strings.Contains(command, pattern) {
			return true
		}
	}
	return false
}
