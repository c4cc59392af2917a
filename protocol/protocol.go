package protocol

import (
	"encoding/json"
)

// Data channel application messages.
const (
	MsgMove             = "move"
	MsgGetSnapshot      = "getSnapshot"
	MsgSnapshotResponse = "snapshotResponse"
)

// Signaling frames exchanged over the rendezvous WebSocket.
const (
	MsgWelcome   = "welcome"
	MsgOffer     = "offer"
	MsgAnswer    = "answer"
	MsgCandidate = "candidate"
	MsgError     = "error"
)

const (
	SimTickHz = 40
	NotifyHz  = 40
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"` // raw payload bytes
}
