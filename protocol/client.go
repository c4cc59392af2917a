package protocol

import (
	"errors"
	"math"
)

// Move sets the player's movement target.
type Move struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (m Move) Validate() error {
	if math.IsNaN(m.X) || math.IsNaN(m.Y) || math.IsInf(m.X, 0) || math.IsInf(m.Y, 0) {
		return errors.New("move target must be finite")
	}
	return nil
}

// SessionDescription carries an SDP offer or answer.
type SessionDescription struct {
	SDP string `json:"sdp"`
}

// Candidate mirrors the browser RTCIceCandidateInit dictionary.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func (c Candidate) Validate() error {
	if c.Candidate == "" {
		return errors.New("candidate string is required")
	}
	return nil
}

// Welcome is the first signaling frame; it tells the client its connection id.
type Welcome struct {
	ConnectionID string `json:"connectionId"`
}

type Error struct {
	Message string `json:"message"`
}
