// Package wsproto defines the WebSocket wire protocol shared by the
// gateway and its clients: a closed tagged union of inbound and
// outbound frames.
package wsproto

import (
	"encoding/json"

	"github.com/agentgate/agentgate/internal/gwerrors"
	"github.com/agentgate/agentgate/internal/project"
)

// Frame type tags, preserved verbatim for client compatibility.
const (
	TypeClaudeCommand   = "claude-command"
	TypeAbortSession    = "abort-session"
	TypeSessionCreated  = "session-created"
	TypeAgentResponse   = "agent-response"
	TypeAgentOutput     = "agent-output"
	TypeAgentError      = "agent-error"
	TypeAgentComplete   = "agent-complete"
	TypeSessionAborted  = "session-aborted"
	TypeProjectsUpdated = "projects_updated"
	TypeError           = "error"
)

// Image is one base64 data-URI attachment supplied with a command.
type Image struct {
	Name     string `json:"name"`
	Data     string `json:"data"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// ToolsSettings scopes the agent's tool permissions for one invocation.
type ToolsSettings struct {
	AllowedTools    []string `json:"allowedTools,omitempty"`
	DisallowedTools []string `json:"disallowedTools,omitempty"`
	SkipPermissions bool     `json:"skipPermissions,omitempty"`
}

// CommandOptions carries every optional field of a claude-command frame.
type CommandOptions struct {
	CWD            string            `json:"cwd,omitempty"`
	ProjectPath    string            `json:"projectPath,omitempty"`
	SessionID      string            `json:"sessionId,omitempty"`
	Resume         bool              `json:"resume,omitempty"`
	PermissionMode string            `json:"permissionMode,omitempty"`
	ToolsSettings  *ToolsSettings    `json:"toolsSettings,omitempty"`
	Images         []Image           `json:"images,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

// ClaudeCommand is the inbound frame that starts or resumes an
// invocation.
type ClaudeCommand struct {
	Command string         `json:"command,omitempty"`
	Options CommandOptions `json:"options,omitempty"`
}

// AbortSession is the inbound frame requesting a live invocation stop.
type AbortSession struct {
	SessionID string `json:"sessionId"`
}

// envelope is used only to sniff the discriminator tag before decoding
// into a concrete inbound type.
type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound dispatches raw on a "type" discriminator, returning
// one of *ClaudeCommand or *AbortSession. Unknown tags return an
// InvalidArgument error; the caller replies with an error frame and
// keeps the connection open.
func DecodeInbound(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, gwerrors.New(gwerrors.InvalidArgument, "malformed frame: not valid JSON")
	}
	switch env.Type {
	case TypeClaudeCommand:
		var cmd ClaudeCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, gwerrors.Wrap(gwerrors.InvalidArgument, "malformed claude-command frame", err)
		}
		return &cmd, nil
	case TypeAbortSession:
		var abort AbortSession
		if err := json.Unmarshal(raw, &abort); err != nil {
			return nil, gwerrors.Wrap(gwerrors.InvalidArgument, "malformed abort-session frame", err)
		}
		if abort.SessionID == "" {
			return nil, gwerrors.New(gwerrors.InvalidArgument, "abort-session requires sessionId")
		}
		return &abort, nil
	default:
		return nil, gwerrors.New(gwerrors.InvalidArgument, "unknown frame type: "+env.Type)
	}
}

// Outbound frame constructors. Each returns a value ready for
// json.Marshal with its "type" tag already set.

type SessionCreated struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func NewSessionCreated(sessionID string) SessionCreated {
	return SessionCreated{Type: TypeSessionCreated, SessionID: sessionID}
}

type AgentResponse struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewAgentResponse(data json.RawMessage) AgentResponse {
	return AgentResponse{Type: TypeAgentResponse, Data: data}
}

type AgentOutput struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func NewAgentOutput(line string) AgentOutput {
	return AgentOutput{Type: TypeAgentOutput, Data: line}
}

type AgentError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewAgentError(msg string) AgentError {
	return AgentError{Type: TypeAgentError, Error: msg}
}

type AgentComplete struct {
	Type         string `json:"type"`
	ExitCode     int    `json:"exitCode"`
	IsNewSession bool   `json:"isNewSession"`
}

func NewAgentComplete(exitCode int, isNewSession bool) AgentComplete {
	return AgentComplete{Type: TypeAgentComplete, ExitCode: exitCode, IsNewSession: isNewSession}
}

type SessionAborted struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
}

func NewSessionAborted(sessionID string, success bool) SessionAborted {
	return SessionAborted{Type: TypeSessionAborted, SessionID: sessionID, Success: success}
}

type ProjectsUpdated struct {
	Type        string            `json:"type"`
	Projects    []project.Project `json:"projects"`
	Timestamp   string            `json:"timestamp"`
	ChangeType  string            `json:"changeType"`
	ChangedFile string            `json:"changedFile"`
}

type ProtocolError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewProtocolError(msg string) ProtocolError {
	return ProtocolError{Type: TypeError, Error: msg}
}
