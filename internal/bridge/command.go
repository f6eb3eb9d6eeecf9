package bridge

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"
)

// Command types routed through the bridge. The bridge never interprets
// payloads; the tool layer on either end owns their semantics.
const (
	CmdFileRead  = "file.read"
	CmdFileWrite = "file.write"
	CmdFileList  = "file.list"
	CmdFileTree  = "file.tree"

	CmdShellExec = "shell.exec"

	CmdCodeSearch = "code.search"

	CmdGitCommit = "git.commit"
	CmdGitPush   = "git.push"

	CmdLogsRead        = "logs.read"
	CmdDiagnosticsRead = "diagnostics.read"

	CmdEditorDefinition  = "editor.definition"
	CmdEditorReferences  = "editor.references"
	CmdEditorHover       = "editor.hover"
	CmdEditorCodeActions = "editor.code_actions"
	CmdEditorFormat      = "editor.format"

	CmdInspectDiff       = "inspect.diff"
	CmdInspectDuplicates = "inspect.duplicates"
)

// knownCommands routes requests by type only; unknown types are rejected
// before hitting the wire.
var knownCommands = map[string]bool{
	CmdFileRead:  true,
	CmdFileWrite: true,
	CmdFileList:  true,
	CmdFileTree:  true,

	CmdShellExec: true,

	CmdCodeSearch: true,

	CmdGitCommit: true,
	CmdGitPush:   true,

	CmdLogsRead:        true,
	CmdDiagnosticsRead: true,

	CmdEditorDefinition:  true,
	CmdEditorReferences:  true,
	CmdEditorHover:       true,
	CmdEditorCodeActions: true,
	CmdEditorFormat:      true,

	CmdInspectDiff:       true,
	CmdInspectDuplicates: true,
}

// KnownCommand reports whether the bridge routes the given command type.
func KnownCommand(cmdType string) bool {
	return knownCommands[cmdType]
}

// Request is one framed command sent to the in-container agent.
type Request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the agent's framed reply, correlated by ID.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// newRequestID composes an id unique among in-flight requests on one
// connection: millisecond timestamp plus a random suffix.
func newRequestID() string {
	return fmt.Sprintf("cmd-%d-%06x", time.Now().UnixMilli(), rand.IntN(1<<24))
}

// CommandError carries a per-command failure reported by the agent.
type CommandError struct {
	Type    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bridge: command %s failed: %s", e.Type, e.Message)
}
