package dispatch

import (
	"context"

	"arena/protocol"
)

// Arena is what the built-in handlers need from the session layer.
type Arena interface {
	MovePlayer(connID string, x, y float64) error
	// PublishSnapshot pushes the connection's current state toward its client.
	PublishSnapshot(connID string) error
}

// MoveHandler retargets the player and answers with a fresh snapshot.
func MoveHandler(a Arena) Handler {
	return Handle(protocol.MsgMove, WithPayload(func(_ context.Context, connID string, m protocol.Move) error {
		if err := a.MovePlayer(connID, m.X, m.Y); err != nil {
			return err
		}
		return a.PublishSnapshot(connID)
	}))
}

func SnapshotHandler(a Arena) Handler {
	return Handle(protocol.MsgGetSnapshot, WithEmptyPayload(func(_ context.Context, connID string) error {
		return a.PublishSnapshot(connID)
	}))
}

// NewArena builds a dispatcher with every built-in handler.
func NewArena(a Arena) (*Dispatcher, error) {
	return New(MoveHandler(a), SnapshotHandler(a))
}
