// Package client implements the console synchronization core used by panel
// frontends: a reconnecting console session with an explicit connection state
// machine, an optimistic settings coordinator, and a status projector.
// Wire types mirror the backend protocol without importing server packages.
package client

import "encoding/json"

// ConnectionState is the lifecycle value of a live console channel. It is
// changed only by the session's state machine.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateForbidden    ConnectionState = "forbidden"
)

// ServerState is the lifecycle value of the managed game server process,
// supplied by the backend and consumed read-only here. The empty string
// means "unknown/absent".
type ServerState string

const (
	ServerNotInstalled ServerState = "not_installed"
	ServerInstalling   ServerState = "installing"
	ServerInstalled    ServerState = "installed"
	ServerStarting     ServerState = "starting"
	ServerRunning      ServerState = "running"
	ServerStopping     ServerState = "stopping"
	ServerErrored      ServerState = "error"
)

// Target identifies one console endpoint.
type Target struct {
	BaseURL string // e.g. "http://127.0.0.1:8080"
	Token   string
}

// Key is the registry identity for the target. Two targets with the same
// base URL address the same console regardless of credentials.
func (t Target) Key() string { return t.BaseURL }

// MessageType identifies the kind of console WebSocket message.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgConsole  MessageType = "console"
	MsgState    MessageType = "state"
	MsgInput    MessageType = "input"
	MsgError    MessageType = "error"
)

// WSMessage is the envelope for all console WebSocket messages.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SnapshotPayload struct {
	State ServerState `json:"state"`
	Lines []string    `json:"lines"`
}

type ConsolePayload struct {
	Lines []string `json:"lines"`
}

type StatePayload struct {
	State ServerState `json:"state"`
}

type InputPayload struct {
	Command string `json:"command"`
}

// ServerStatus mirrors the backend's /api/server/status response.
type ServerStatus struct {
	State         ServerState `json:"state"`
	PID           int         `json:"pid,omitempty"`
	UptimeSeconds int64       `json:"uptimeSeconds,omitempty"`
	CPUPercent    float64     `json:"cpuPercent,omitempty"`
	MemoryRSS     uint64      `json:"memoryRss,omitempty"`
	Restarts      int         `json:"restarts"`
	LastError     string      `json:"lastError,omitempty"`
}

// Mod mirrors the backend's mod registry entries.
type Mod struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Enabled bool   `json:"enabled"`
}
