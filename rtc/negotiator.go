package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"arena/eventbus"
	"arena/logger"
	"arena/protocol"
	"arena/room"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrSuperseded        = errors.New("offer superseded by a newer one")
	ErrClosed            = errors.New("connection closed")
	ErrEmptyOffer        = errors.New("empty offer")
)

var tracer = otel.Tracer("arena/rtc")

type Options struct {
	// NegotiationTimeout bounds how long an attempt may take to reach an open
	// data channel. 0 disables the limit.
	NegotiationTimeout time.Duration
	// TombstoneTTL is how long a closed connection id keeps rejecting late
	// signaling.
	TombstoneTTL         time.Duration
	JanitorInterval      time.Duration
	MaxMessagesPerSecond int
	Logger               logrus.FieldLogger
	Now                  func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TombstoneTTL <= 0 {
		o.TombstoneTTL = time.Minute
	}
	if o.JanitorInterval <= 0 {
		o.JanitorInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logger.Log
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Deps struct {
	Factory    PeerFactory
	Dispatcher Dispatcher
	Snapshots  SnapshotSource
	// Bus carries room.SnapshotReady events to open channels. Optional.
	Bus *eventbus.Bus
}

type peerRecord struct {
	peer      Peer
	state     State
	channel   DataChannel
	remoteSet bool
	pending   []protocol.Candidate
	limiter   *rate.Limiter
	created   time.Time
}

type candidateBuffer struct {
	candidates []protocol.Candidate
	updated    time.Time
}

// Negotiator answers client offers and owns every server-side peer. All maps
// are guarded by mu; peer calls are made without holding it.
type Negotiator struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger

	mu       sync.Mutex
	peers    map[string]*peerRecord
	buffers  map[string]*candidateBuffer
	closed   map[string]time.Time
	signaler Signaler

	unsubscribe func()
}

func New(deps Deps, opts Options) *Negotiator {
	opts = opts.withDefaults()
	n := &Negotiator{
		deps:    deps,
		opts:    opts,
		log:     opts.Logger,
		peers:   make(map[string]*peerRecord),
		buffers: make(map[string]*candidateBuffer),
		closed:  make(map[string]time.Time),
	}
	if deps.Bus != nil {
		n.unsubscribe = eventbus.Subscribe(deps.Bus, "rtc", n.onSnapshotReady)
	}
	return n
}

// SetSignaler installs the candidate back channel. Candidates gathered
// before a signaler is set are dropped.
func (n *Negotiator) SetSignaler(s Signaler) {
	n.mu.Lock()
	n.signaler = s
	n.mu.Unlock()
}

// HandleOffer answers sdpOffer for connID. The peer is registered, with any
// buffered candidates, before the first blocking call so candidates that
// arrive mid-offer are never lost. A newer offer for the same id replaces
// this one and makes it return ErrSuperseded.
func (n *Negotiator) HandleOffer(ctx context.Context, connID, sdpOffer string) (answer string, err error) {
	ctx, span := tracer.Start(ctx, "rtc.HandleOffer", trace.WithAttributes(attribute.String("arena.conn", connID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := n.log.WithField("conn", connID)
	if strings.TrimSpace(sdpOffer) == "" {
		return "", ErrEmptyOffer
	}

	rec := &peerRecord{
		state:   StateOfferReceived,
		limiter: n.newLimiter(),
		created: n.opts.Now(),
	}
	peer, err := n.deps.Factory.NewPeer(connID, n.events(connID, rec))
	if err != nil {
		log.WithError(err).Warn("failed to create peer")
		return "", fmt.Errorf("create peer: %w", err)
	}
	rec.peer = peer

	n.mu.Lock()
	if _, dead := n.closed[connID]; dead {
		n.mu.Unlock()
		_ = peer.Close()
		return "", ErrClosed
	}
	old := n.peers[connID]
	n.peers[connID] = rec
	if buf, ok := n.buffers[connID]; ok {
		rec.pending = append(rec.pending, buf.candidates...)
		delete(n.buffers, connID)
	}
	n.mu.Unlock()

	if old != nil {
		log.Info("replacing previous peer")
		n.closeRecord(old)
	}

	if err := peer.SetRemoteOffer(sdpOffer); err != nil {
		return "", n.abort(connID, rec, fmt.Errorf("set remote description: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return "", n.abort(connID, rec, err)
	}
	answer, err = peer.CreateAnswer()
	if err != nil {
		return "", n.abort(connID, rec, fmt.Errorf("create answer: %w", err))
	}

	n.mu.Lock()
	if n.peers[connID] != rec {
		n.mu.Unlock()
		return "", ErrSuperseded
	}
	rec.remoteSet = true
	pending := rec.pending
	rec.pending = nil
	if rec.state == StateOfferReceived {
		rec.state = StateAnswerSent
	}
	n.mu.Unlock()

	for _, c := range pending {
		if err := peer.AddCandidate(c); err != nil {
			log.WithError(err).Warn("failed to apply buffered candidate")
		}
	}
	log.WithField("buffered", len(pending)).Debug("answer created")
	return answer, nil
}

// AddCandidate applies a remote ICE candidate, or holds it until the peer
// for connID can accept it.
func (n *Negotiator) AddCandidate(connID, candidateJSON string) error {
	var c protocol.Candidate
	if err := json.Unmarshal([]byte(candidateJSON), &c); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}
	return n.addCandidate(connID, c)
}

func (n *Negotiator) addCandidate(connID string, c protocol.Candidate) error {
	n.mu.Lock()
	if _, dead := n.closed[connID]; dead {
		n.mu.Unlock()
		return ErrClosed
	}
	rec, ok := n.peers[connID]
	if !ok {
		buf := n.buffers[connID]
		if buf == nil {
			buf = &candidateBuffer{}
			n.buffers[connID] = buf
		}
		buf.candidates = append(buf.candidates, c)
		buf.updated = n.opts.Now()
		n.mu.Unlock()
		return nil
	}
	if !rec.remoteSet {
		rec.pending = append(rec.pending, c)
		n.mu.Unlock()
		return nil
	}
	peer := rec.peer
	n.mu.Unlock()

	if err := peer.AddCandidate(c); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// Close tears down connID's channel and peer. Errors are swallowed and the
// id rejects further signaling until its tombstone expires.
func (n *Negotiator) Close(connID string) {
	n.mu.Lock()
	rec := n.peers[connID]
	delete(n.peers, connID)
	delete(n.buffers, connID)
	n.closed[connID] = n.opts.Now()
	n.mu.Unlock()

	if rec != nil {
		n.closeRecord(rec)
		n.log.WithField("conn", connID).Info("peer closed")
	}
}

// closeIf closes connID like Close, but only while rec is still its current
// record.
func (n *Negotiator) closeIf(connID string, rec *peerRecord) bool {
	n.mu.Lock()
	if n.peers[connID] != rec {
		n.mu.Unlock()
		return false
	}
	delete(n.peers, connID)
	delete(n.buffers, connID)
	n.closed[connID] = n.opts.Now()
	n.mu.Unlock()

	n.closeRecord(rec)
	return true
}

// Shutdown closes every peer and detaches from the bus.
func (n *Negotiator) Shutdown() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
	n.mu.Lock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	n.mu.Unlock()
	for _, id := range ids {
		n.Close(id)
	}
}

// State reports the negotiation state of connID.
func (n *Negotiator) State(connID string) State {
	n.mu.Lock()
	defer n.mu.Unlock()
	if rec, ok := n.peers[connID]; ok {
		return rec.state
	}
	if _, dead := n.closed[connID]; dead {
		return StateClosed
	}
	return StateIdle
}

// SendSnapshot writes state to connID's open data channel.
func (n *Negotiator) SendSnapshot(connID string, state protocol.ArenaState) error {
	n.mu.Lock()
	var ch DataChannel
	if rec, ok := n.peers[connID]; ok && rec.state == StateDataChannelOpen {
		ch = rec.channel
	}
	n.mu.Unlock()
	if ch == nil {
		return ErrUnknownConnection
	}
	return sendSnapshot(ch, state)
}

func sendSnapshot(ch DataChannel, state protocol.ArenaState) error {
	b, err := protocol.Encode(protocol.MsgSnapshotResponse, state)
	if err != nil {
		return err
	}
	return ch.SendText(string(b))
}

func (n *Negotiator) onSnapshotReady(ev room.SnapshotReady) {
	err := n.SendSnapshot(ev.ConnectionID, ev.State)
	if err != nil && !errors.Is(err, ErrUnknownConnection) {
		n.log.WithError(err).WithField("conn", ev.ConnectionID).Debug("snapshot not delivered")
	}
}

func (n *Negotiator) newLimiter() *rate.Limiter {
	if n.opts.MaxMessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(n.opts.MaxMessagesPerSecond), n.opts.MaxMessagesPerSecond)
}

func (n *Negotiator) current(connID string, rec *peerRecord) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers[connID] == rec && rec.state != StateClosed
}

// abort drops a failed attempt. An attempt already replaced by a newer offer
// reports ErrSuperseded instead of its own failure.
func (n *Negotiator) abort(connID string, rec *peerRecord, err error) error {
	n.mu.Lock()
	current := n.peers[connID] == rec
	if current {
		delete(n.peers, connID)
	}
	n.mu.Unlock()
	n.closeRecord(rec)

	if !current {
		return ErrSuperseded
	}
	n.log.WithError(err).WithField("conn", connID).Warn("negotiation failed")
	return err
}

func (n *Negotiator) closeRecord(rec *peerRecord) {
	n.mu.Lock()
	ch := rec.channel
	rec.channel = nil
	rec.state = StateClosed
	rec.pending = nil
	n.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if rec.peer != nil {
		_ = rec.peer.Close()
	}
}

func (n *Negotiator) events(connID string, rec *peerRecord) PeerEvents {
	log := n.log.WithField("conn", connID)
	return PeerEvents{
		OnLocalCandidate: func(c protocol.Candidate) {
			if !n.current(connID, rec) {
				return
			}
			n.mu.Lock()
			s := n.signaler
			n.mu.Unlock()
			if s == nil {
				return
			}
			if err := s.SendCandidate(connID, c); err != nil {
				log.WithError(err).Debug("failed to send local candidate")
			}
		},
		OnDataChannelOpen: func(ch DataChannel) {
			n.mu.Lock()
			if n.peers[connID] != rec || rec.state == StateClosed {
				n.mu.Unlock()
				_ = ch.Close()
				return
			}
			rec.channel = ch
			rec.state = StateDataChannelOpen
			n.mu.Unlock()

			log.WithField("label", ch.Label()).Info("data channel open")
			if n.deps.Snapshots == nil {
				return
			}
			state, err := n.deps.Snapshots.Snapshot(connID)
			if err != nil {
				log.WithError(err).Warn("no snapshot for new channel")
				return
			}
			if err := sendSnapshot(ch, state); err != nil {
				log.WithError(err).Warn("failed to send initial snapshot")
			}
		},
		OnDataChannelMessage: func(ch DataChannel, data []byte) {
			if !n.current(connID, rec) {
				return
			}
			if !rec.limiter.Allow() {
				log.Debug("rate limited message dropped")
				return
			}
			if n.deps.Dispatcher == nil {
				return
			}
			// Errors are logged by the dispatcher and never reach the client.
			_ = n.deps.Dispatcher.Dispatch(context.Background(), connID, data)
		},
		// A closed channel ends the connection. The peer itself is released
		// by the next offer or by Close.
		OnDataChannelClose: func(ch DataChannel) {
			n.mu.Lock()
			if rec.channel == ch {
				rec.channel = nil
				rec.state = StateClosed
			}
			n.mu.Unlock()
			log.Debug("data channel closed")
		},
	}
}
