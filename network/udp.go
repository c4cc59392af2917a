package network

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"arena/eventbus"
	"arena/logger"
	"arena/protocol"
	"arena/room"
)

const udpKeyPrefix = "udp:"

// UDPSessionKey names the arena session owned by a UDP connection id.
func UDPSessionKey(conn uint32) string {
	return udpKeyPrefix + strconv.FormatUint(uint64(conn), 10)
}

// UDPArena is what the UDP transport drives.
type UDPArena interface {
	InitializeSession(id string) *room.Session
	CloseSession(id string) bool
	MovePlayer(id string, x, y float64) error
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, connID string, raw []byte) error
}

type UDPOptions struct {
	IdleTimeout          time.Duration
	MaxMessagesPerSecond int
	// MaxPeers caps live connection ids. Datagrams for new ids beyond it are
	// dropped before a session is created.
	MaxPeers int
	Logger               logrus.FieldLogger
	Now                  func() time.Time
}

type udpPeer struct {
	id       uint32
	key      string
	addr     net.Addr
	ack      protocol.AckState
	lastSeen time.Time
	limiter  *rate.Limiter
}

// UDPServer carries the binary packet protocol. Each connection id in the
// header owns one arena session keyed by UDPSessionKey.
type UDPServer struct {
	conn       net.PacketConn
	arena      UDPArena
	dispatcher CommandDispatcher
	opts       UDPOptions
	log        logrus.FieldLogger

	mu    sync.Mutex
	peers map[uint32]*udpPeer
	byKey map[string]*udpPeer

	unsubscribe func()
}

func ListenUDP(addr string, arena UDPArena, dispatcher CommandDispatcher, bus *eventbus.Bus, opts UDPOptions) (*UDPServer, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return NewUDPServer(conn, arena, dispatcher, bus, opts), nil
}

func NewUDPServer(conn net.PacketConn, arena UDPArena, dispatcher CommandDispatcher, bus *eventbus.Bus, opts UDPOptions) *UDPServer {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 15 * time.Second
	}
	if opts.MaxPeers <= 0 {
		opts.MaxPeers = 256
	}
	if opts.Logger == nil {
		opts.Logger = logger.Log
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &UDPServer{
		conn:       conn,
		arena:      arena,
		dispatcher: dispatcher,
		opts:       opts,
		log:        opts.Logger.WithField("transport", "udp"),
		peers:      make(map[uint32]*udpPeer),
		byKey:      make(map[string]*udpPeer),
	}
	if bus != nil {
		s.unsubscribe = eventbus.Subscribe(bus, "udp", s.onSnapshotReady)
	}
	return s
}

func (s *UDPServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve reads datagrams until ctx ends, then closes the socket and every
// UDP session.
func (s *UDPServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()
	go s.reapLoop(ctx)
	defer s.shutdown()

	s.log.WithField("addr", s.conn.LocalAddr().String()).Info("udp listening")

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithError(err).Warn("udp read failed")
			continue
		}
		s.handle(ctx, buf[:n], addr)
	}
}

func (s *UDPServer) handle(ctx context.Context, data []byte, addr net.Addr) {
	h, body, err := protocol.ParsePacket(data)
	if err != nil {
		s.log.WithError(err).Debug("dropping datagram")
		return
	}
	if h.Version != protocol.PacketVersion {
		s.log.WithField("version", h.Version).Debug("dropping datagram with unknown version")
		return
	}

	p, ok := s.touch(h.Connection, addr)
	if !ok {
		s.log.WithField("conn", h.Connection).Debug("peer limit reached, dropping datagram")
		return
	}
	p.ack.Received(h.Sequence)
	if !p.limiter.Allow() {
		s.log.WithField("conn", p.key).Debug("rate limited datagram dropped")
		return
	}

	switch h.Type {
	case protocol.PacketInput:
		m, err := protocol.DecodeInputBody(body)
		if err != nil {
			s.log.WithError(err).WithField("conn", p.key).Warn("bad input body")
			return
		}
		if err := s.arena.MovePlayer(p.key, m.X, m.Y); err != nil {
			s.log.WithError(err).WithField("conn", p.key).Warn("move failed")
		}
	case protocol.PacketReliableCommand:
		// Dispatch logs its own failures.
		_ = s.dispatcher.Dispatch(ctx, p.key, body)
	default:
		s.log.WithField("type", h.Type).Debug("ignoring packet type from client")
	}
}

// touch returns the peer for conn, creating it and its session on first
// contact, and records addr as the reply address. It reports false when conn
// is new and the peer limit is reached.
func (s *UDPServer) touch(conn uint32, addr net.Addr) (*udpPeer, bool) {
	now := s.opts.Now()

	s.mu.Lock()
	p, ok := s.peers[conn]
	if ok {
		p.addr = addr
		p.lastSeen = now
		s.mu.Unlock()
		return p, true
	}
	if len(s.peers) >= s.opts.MaxPeers {
		s.mu.Unlock()
		return nil, false
	}
	p = &udpPeer{
		id:       conn,
		key:      UDPSessionKey(conn),
		addr:     addr,
		lastSeen: now,
		limiter:  newLimiter(s.opts.MaxMessagesPerSecond),
	}
	s.peers[conn] = p
	s.byKey[p.key] = p
	s.mu.Unlock()

	s.log.WithField("conn", p.key).WithField("addr", addr.String()).Info("udp client connected")
	s.arena.InitializeSession(p.key)
	return p, true
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

func (s *UDPServer) onSnapshotReady(ev room.SnapshotReady) {
	if !strings.HasPrefix(ev.ConnectionID, udpKeyPrefix) {
		return
	}
	s.mu.Lock()
	p, ok := s.byKey[ev.ConnectionID]
	var addr net.Addr
	if ok {
		addr = p.addr
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	body, err := protocol.EncodeSnapshotBody(ev.State)
	if err != nil {
		s.log.WithError(err).Error("failed to encode snapshot body")
		return
	}
	h := p.ack.NextHeader(protocol.PacketSnapshot, p.id)
	if _, err := s.conn.WriteTo(protocol.Packet(h, body), addr); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.WithError(err).WithField("conn", p.key).Debug("snapshot write failed")
	}
}

func (s *UDPServer) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap(s.opts.Now())
		}
	}
}

// reap closes connections silent for longer than the idle timeout.
func (s *UDPServer) reap(now time.Time) {
	var idle []*udpPeer
	s.mu.Lock()
	for id, p := range s.peers {
		if now.Sub(p.lastSeen) > s.opts.IdleTimeout {
			idle = append(idle, p)
			delete(s.peers, id)
			delete(s.byKey, p.key)
		}
	}
	s.mu.Unlock()

	for _, p := range idle {
		s.log.WithField("conn", p.key).Info("udp client idle, closing session")
		s.arena.CloseSession(p.key)
	}
}

func (s *UDPServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *UDPServer) shutdown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[uint32]*udpPeer)
	s.byKey = make(map[string]*udpPeer)
	s.mu.Unlock()
	for _, p := range peers {
		s.arena.CloseSession(p.key)
	}
}
