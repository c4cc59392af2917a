package rtc

import (
	"context"
	"errors"
	"sync"

	"arena/protocol"
)

type fakePeer struct {
	mu         sync.Mutex
	remote     string
	candidates []protocol.Candidate
	closed     int
	events     PeerEvents

	// onSetRemote runs inside SetRemoteOffer, before it returns.
	onSetRemote func()
	remoteErr   error
}

func (p *fakePeer) SetRemoteOffer(sdp string) error {
	if p.onSetRemote != nil {
		p.onSetRemote()
	}
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.mu.Lock()
	p.remote = sdp
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) CreateAnswer() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "answer-for:" + p.remote, nil
}

func (p *fakePeer) AddCandidate(c protocol.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == "" {
		return errors.New("no remote description")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return errors.New("already closed")
}

func (p *fakePeer) applied() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.candidates))
	for _, c := range p.candidates {
		out = append(out, c.Candidate)
	}
	return out
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	// prepare customizes each new peer before it is returned.
	prepare func(p *fakePeer)
	err     error
}

func (f *fakeFactory) NewPeer(_ string, events PeerEvents) (Peer, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{events: events}
	if f.prepare != nil {
		f.prepare(p)
	}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) peer(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[i]
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (c *fakeChannel) Label() string { return "arena" }

func (c *fakeChannel) SendText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("channel closed")
	}
	c.sent = append(c.sent, s)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return errors.New("close failed")
}

func (c *fakeChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls [][]byte
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ string, raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, raw)
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakeSnapshots struct{}

func (fakeSnapshots) Snapshot(connID string) (protocol.ArenaState, error) {
	return protocol.ArenaState{Player: protocol.PlayerState{ID: "player-" + connID, X: 100, Y: 100}}, nil
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []protocol.Candidate
}

func (s *fakeSignaler) SendCandidate(_ string, c protocol.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	return nil
}
