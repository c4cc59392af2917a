package protocol

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Packet bodies on the binary transport are msgpack encoded using the JSON
// tags, so both transports share one field vocabulary.

func marshalBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalBody(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func EncodeInputBody(m Move) ([]byte, error) {
	b, err := marshalBody(&m)
	if err != nil {
		return nil, fmt.Errorf("encode input body: %w", err)
	}
	return b, nil
}

func DecodeInputBody(b []byte) (Move, error) {
	var m Move
	if err := unmarshalBody(b, &m); err != nil {
		return Move{}, fmt.Errorf("decode input body: %w", err)
	}
	return m, m.Validate()
}

func EncodeSnapshotBody(s ArenaState) ([]byte, error) {
	b, err := marshalBody(&s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot body: %w", err)
	}
	return b, nil
}

func DecodeSnapshotBody(b []byte) (ArenaState, error) {
	var s ArenaState
	if err := unmarshalBody(b, &s); err != nil {
		return ArenaState{}, fmt.Errorf("decode snapshot body: %w", err)
	}
	return s, nil
}
