package protocol

import "sync"

const ackWindow = 64

// AckState tracks sequence numbers for one side of a packet connection: the
// next outgoing sequence and a 64-packet receive window relative to the
// latest sequence seen.
type AckState struct {
	mu       sync.Mutex
	lastSent uint32
	latest   uint32
	bits     uint64
}

// Received records an incoming sequence number. Bit 0 of the bitmap is the
// latest sequence, bit n is latest-n.
func (a *AckState) Received(seq uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.latest == 0 && a.bits == 0 {
		a.latest = seq
		a.bits = 1
		return
	}

	if seq > a.latest {
		shift := seq - a.latest
		if shift >= ackWindow {
			a.bits = 1
		} else {
			a.bits = (a.bits << shift) | 1
		}
		a.latest = seq
		return
	}

	diff := a.latest - seq
	if diff < ackWindow {
		a.bits |= 1 << diff
	}
}

// NextHeader stamps a header with the next outgoing sequence and the current
// ack state.
func (a *AckState) NextHeader(t PacketType, conn uint32) Header {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastSent++
	return Header{
		Version:    PacketVersion,
		Type:       t,
		Connection: conn,
		Sequence:   a.lastSent,
		AckLatest:  a.latest,
		AckBitmap:  a.bits,
	}
}

// Acked reports whether seq is inside the receive window and marked.
func (a *AckState) Acked(seq uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq > a.latest {
		return false
	}
	diff := a.latest - seq
	return diff < ackWindow && a.bits&(1<<diff) != 0
}
