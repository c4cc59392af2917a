package rtc

import (
	"context"

	"arena/protocol"
)

// Peer is the answering side of one WebRTC connection.
type Peer interface {
	SetRemoteOffer(sdp string) error
	// CreateAnswer creates the answer, installs it as the local description
	// and returns its SDP.
	CreateAnswer() (string, error)
	AddCandidate(c protocol.Candidate) error
	Close() error
}

// DataChannel is an open channel offered by the remote side.
type DataChannel interface {
	Label() string
	SendText(s string) error
	Close() error
}

// PeerEvents are the callbacks a Peer reports through. They may fire on any
// goroutine.
type PeerEvents struct {
	OnLocalCandidate     func(c protocol.Candidate)
	OnDataChannelOpen    func(ch DataChannel)
	OnDataChannelMessage func(ch DataChannel, data []byte)
	OnDataChannelClose   func(ch DataChannel)
}

type PeerFactory interface {
	NewPeer(connID string, events PeerEvents) (Peer, error)
}

// Signaler pushes server candidates back to the client over signaling.
type Signaler interface {
	SendCandidate(connID string, c protocol.Candidate) error
}

type SignalerFunc func(connID string, c protocol.Candidate) error

func (f SignalerFunc) SendCandidate(connID string, c protocol.Candidate) error {
	return f(connID, c)
}

// Dispatcher handles inbound data channel messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, raw []byte) error
}

// SnapshotSource supplies the state sent when a channel opens.
type SnapshotSource interface {
	Snapshot(connID string) (protocol.ArenaState, error)
}
