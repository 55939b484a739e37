package ws

import (
	"encoding/json"

	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/runtime"
	"github.com/agent-console/backend/internal/tab"
)

// CommandType tags an inbound command from a connection. The dispatch
// surface is closed: unrecognized tags are dropped at the boundary.
type CommandType string

const (
	CmdPrompt        CommandType = "prompt"
	CmdAbort         CommandType = "abort"
	CmdNewSession    CommandType = "new_session"
	CmdSwitchSession CommandType = "switch_session"
	CmdCloseTab      CommandType = "close_tab"
	CmdListSessions  CommandType = "list_sessions"
	CmdOpenSession   CommandType = "open_session"
	CmdDeleteSession CommandType = "delete_session"
	CmdUIResponse    CommandType = "extension_ui_response"
	CmdPing          CommandType = "ping"
)

// Command is the inbound message envelope. Only the fields relevant to the
// tagged type are populated.
type Command struct {
	Type        CommandType            `json:"type"`
	Message     string                 `json:"message,omitempty"`
	Behavior    runtime.SubmitBehavior `json:"streamingBehavior,omitempty"`
	TabID       string                 `json:"tabId,omitempty"`
	SessionPath string                 `json:"sessionPath,omitempty"`
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name,omitempty"`
	Outcome     json.RawMessage        `json:"outcome,omitempty"`
}

// Server -> client message type tags. Runtime events are forwarded verbatim
// with their own type tags, scoped to the tab that produced them.
const (
	MsgTabsUpdate   = "tabs_update"
	MsgStateSync    = "state_sync"
	MsgSessionsList = "sessions_list"
	MsgPong         = "pong"
	MsgError        = "error"
)

// TabsUpdate announces the current tab list to every connection.
type TabsUpdate struct {
	Type string      `json:"type"`
	Tabs []tab.Entry `json:"tabs"`
}

// StateSync is the full-state snapshot a connection rebuilds its view from.
// The tab identifier lets a receiver discard a sync generated for a binding
// it has already switched away from.
type StateSync struct {
	Type      string          `json:"type"`
	TabID     string          `json:"tabId"`
	Messages  []model.Message `json:"messages"`
	Streaming bool            `json:"streaming"`
	ModelID   string          `json:"modelId"`
	SessionID string          `json:"sessionId"`
}

// SessionsList carries saved-session metadata to one connection.
type SessionsList struct {
	Type     string               `json:"type"`
	Sessions []model.SavedSession `json:"sessions"`
}

// ErrorMessage surfaces a collaborator failure to the requesting connection.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Pong answers a ping.
type Pong struct {
	Type string `json:"type"`
}
