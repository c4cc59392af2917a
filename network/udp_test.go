package network

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"arena/eventbus"
	"arena/logger"
	"arena/protocol"
	"arena/room"
)

type fakeCommands struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeCommands) Dispatch(_ context.Context, connID string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[connID]++
	return nil
}

func (f *fakeCommands) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type udpFixture struct {
	srv    *UDPServer
	client net.PacketConn
	arena  *fakeSessions
	cmds   *fakeCommands
	bus    *eventbus.Bus
}

func newUDPFixture(t *testing.T, opts UDPOptions) *udpFixture {
	t.Helper()
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}

	bus := eventbus.New(eventbus.WithLogger(logger.Discard()))
	arena := &fakeSessions{}
	cmds := &fakeCommands{}
	opts.Logger = logger.Discard()
	srv := NewUDPServer(serverConn, arena, cmds, bus, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		client.Close()
		bus.Close()
	})
	return &udpFixture{srv: srv, client: client, arena: arena, cmds: cmds, bus: bus}
}

func (f *udpFixture) send(t *testing.T, h protocol.Header, body []byte) {
	t.Helper()
	if _, err := f.client.WriteTo(protocol.Packet(h, body), f.srv.Addr()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func header(t protocol.PacketType, conn, seq uint32) protocol.Header {
	return protocol.Header{Version: protocol.PacketVersion, Type: t, Connection: conn, Sequence: seq}
}

func TestUDPInputMovesPlayer(t *testing.T) {
	f := newUDPFixture(t, UDPOptions{})

	body, err := protocol.EncodeInputBody(protocol.Move{X: 250, Y: 75})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.send(t, header(protocol.PacketInput, 7, 1), body)

	key := UDPSessionKey(7)
	waitFor(t, "move", func() bool {
		f.arena.mu.Lock()
		defer f.arena.mu.Unlock()
		return f.arena.moves[key] == [2]float64{250, 75}
	})
	created, _ := f.arena.snapshot()
	if len(created) != 1 || created[0] != key {
		t.Fatalf("created = %v, want [%s]", created, key)
	}
}

func TestUDPReliableCommandIsDispatched(t *testing.T) {
	f := newUDPFixture(t, UDPOptions{})

	f.send(t, header(protocol.PacketReliableCommand, 9, 1), []byte(`{"type":"getSnapshot"}`))
	waitFor(t, "dispatch", func() bool { return f.cmds.count(UDPSessionKey(9)) == 1 })
}

func TestUDPDropsBadDatagrams(t *testing.T) {
	f := newUDPFixture(t, UDPOptions{})

	if _, err := f.client.WriteTo([]byte{1, 2, 3}, f.srv.Addr()); err != nil {
		t.Fatalf("write: %v", err)
	}
	bad := header(protocol.PacketInput, 3, 1)
	bad.Version = 9
	f.send(t, bad, nil)

	// A valid packet afterwards proves the loop survived.
	f.send(t, header(protocol.PacketReliableCommand, 4, 1), []byte(`{}`))
	waitFor(t, "dispatch", func() bool { return f.cmds.count(UDPSessionKey(4)) == 1 })
	if f.srv.Len() != 1 {
		t.Fatalf("Len = %d, want only the valid connection", f.srv.Len())
	}
}

func TestUDPSnapshotsCarryAcks(t *testing.T) {
	f := newUDPFixture(t, UDPOptions{})

	f.send(t, header(protocol.PacketReliableCommand, 5, 41), []byte(`{}`))
	f.send(t, header(protocol.PacketReliableCommand, 5, 42), []byte(`{}`))
	waitFor(t, "dispatch", func() bool { return f.cmds.count(UDPSessionKey(5)) == 2 })

	state := protocol.ArenaState{Player: protocol.PlayerState{ID: "p", X: 12}}
	eventbus.Publish(f.bus, room.SnapshotReady{ConnectionID: UDPSessionKey(5), State: state})
	eventbus.Publish(f.bus, room.SnapshotReady{ConnectionID: "not-udp", State: state})

	_ = f.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64*1024)
	n, _, err := f.client.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	h, body, err := protocol.ParsePacket(buf[:n])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if h.Type != protocol.PacketSnapshot || h.Connection != 5 || h.Sequence != 1 {
		t.Fatalf("header = %+v", h)
	}
	if h.AckLatest != 42 || h.AckBitmap&0b11 != 0b11 {
		t.Fatalf("ack = %d/%b, want 42 with 41 and 42 marked", h.AckLatest, h.AckBitmap)
	}
	got, err := protocol.DecodeSnapshotBody(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Player.X != 12 {
		t.Fatalf("player x = %v, want 12", got.Player.X)
	}
}

func TestUDPReapsIdleConnections(t *testing.T) {
	now := time.Unix(2000, 0)
	clock := func() time.Time { return now }
	f := newUDPFixture(t, UDPOptions{IdleTimeout: time.Hour, Now: clock})

	f.send(t, header(protocol.PacketReliableCommand, 11, 1), []byte(`{}`))
	waitFor(t, "dispatch", func() bool { return f.cmds.count(UDPSessionKey(11)) == 1 })

	f.srv.reap(now.Add(30 * time.Minute))
	if f.srv.Len() != 1 {
		t.Fatalf("connection reaped too early")
	}
	f.srv.reap(now.Add(2 * time.Hour))
	if f.srv.Len() != 0 {
		t.Fatalf("idle connection not reaped")
	}
	_, closed := f.arena.snapshot()
	if len(closed) != 1 || closed[0] != UDPSessionKey(11) {
		t.Fatalf("closed = %v", closed)
	}
}

func TestUDPRateLimit(t *testing.T) {
	f := newUDPFixture(t, UDPOptions{MaxMessagesPerSecond: 2})

	for seq := uint32(1); seq <= 10; seq++ {
		f.send(t, header(protocol.PacketReliableCommand, 12, seq), []byte(`{}`))
	}
	f.send(t, header(protocol.PacketReliableCommand, 13, 1), []byte(`{}`))
	waitFor(t, "other connection", func() bool { return f.cmds.count(UDPSessionKey(13)) == 1 })

	if n := f.cmds.count(UDPSessionKey(12)); n < 2 || n > 3 {
		t.Fatalf("dispatched %d commands, want the burst of 2 (3 with one refill)", n)
	}
}

func TestUDPCapsNewConnections(t *testing.T) {
	f := newUDPFixture(t, UDPOptions{MaxPeers: 2})

	for conn := uint32(20); conn < 30; conn++ {
		f.send(t, header(protocol.PacketReliableCommand, conn, 1), []byte(`{}`))
	}
	waitFor(t, "first peers", func() bool {
		return f.cmds.count(UDPSessionKey(20)) == 1 && f.cmds.count(UDPSessionKey(21)) == 1
	})
	// Known ids keep working at the cap.
	f.send(t, header(protocol.PacketReliableCommand, 20, 2), []byte(`{}`))
	waitFor(t, "known peer", func() bool { return f.cmds.count(UDPSessionKey(20)) == 2 })

	created, _ := f.arena.snapshot()
	if len(created) != 2 {
		t.Fatalf("created %d sessions, want 2: %v", len(created), created)
	}
	for conn := uint32(22); conn < 30; conn++ {
		if n := f.cmds.count(UDPSessionKey(conn)); n != 0 {
			t.Fatalf("conn %d dispatched %d commands over the cap", conn, n)
		}
	}
}
