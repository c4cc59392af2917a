package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PacketType enumerates the binary transport packet kinds.
type PacketType uint8

const (
	PacketInput           PacketType = 1
	PacketSnapshot        PacketType = 2
	PacketReliableCommand PacketType = 3
)

const (
	PacketVersion = 1
	HeaderSize    = 22
)

var ErrShortPacket = errors.New("packet shorter than header")

// Header is the fixed 22-byte little-endian packet header:
//
//	version:u8 type:u8 connectionId:u32 sequence:u32 ackLatest:u32 ackBitmap:u64
//
// The body follows with no length prefix.
type Header struct {
	Version    uint8
	Type       PacketType
	Connection uint32
	Sequence   uint32
	AckLatest  uint32
	AckBitmap  uint64
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) []byte {
	b = append(b, h.Version, uint8(h.Type))
	b = binary.LittleEndian.AppendUint32(b, h.Connection)
	b = binary.LittleEndian.AppendUint32(b, h.Sequence)
	b = binary.LittleEndian.AppendUint32(b, h.AckLatest)
	b = binary.LittleEndian.AppendUint64(b, h.AckBitmap)
	return b
}

func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize)), nil
}

func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	h.Version = b[0]
	h.Type = PacketType(b[1])
	h.Connection = binary.LittleEndian.Uint32(b[2:6])
	h.Sequence = binary.LittleEndian.Uint32(b[6:10])
	h.AckLatest = binary.LittleEndian.Uint32(b[10:14])
	h.AckBitmap = binary.LittleEndian.Uint64(b[14:22])
	return nil
}

// Packet returns header + body as one datagram.
func Packet(h Header, body []byte) []byte {
	out := h.AppendBinary(make([]byte, 0, HeaderSize+len(body)))
	return append(out, body...)
}

// ParsePacket splits a datagram into its header and body. The body aliases
// data.
func ParsePacket(data []byte) (Header, []byte, error) {
	var h Header
	if err := h.UnmarshalBinary(data); err != nil {
		return h, nil, err
	}
	return h, data[HeaderSize:], nil
}
