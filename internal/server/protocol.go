package server

import (
	"github.com/forgepanel/backend/internal/gameserver"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot" // backlog + current state, sent on attach
	MsgConsole  MessageType = "console"  // batch of console lines
	MsgState    MessageType = "state"    // server lifecycle state change
	MsgInput    MessageType = "input"    // client -> server console command
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	State gameserver.State `json:"state"`
	Lines []string         `json:"lines"`
}

type ConsolePayload struct {
	Lines []string `json:"lines"`
}

type StatePayload struct {
	State gameserver.State `json:"state"`
}

type InputPayload struct {
	Command string `json:"command"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
