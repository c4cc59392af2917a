package room

import "arena/protocol"

// Events published on the bus by Service.

// SnapshotReady carries a state that should be forwarded to the client.
type SnapshotReady struct {
	ConnectionID string
	State        protocol.ArenaState
}

// SessionFailed is published when a session's loop ends with a fault.
type SessionFailed struct {
	ConnectionID string
	Err          error
}

// SessionEnded is published once per session when its loop exits.
type SessionEnded struct {
	ConnectionID string
}
