package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arena/logger"
	"arena/protocol"
	"arena/room"
)

type fakeNegotiator struct {
	mu         sync.Mutex
	offers     []string
	candidates []string
	closed     []string
	offerErr   error
}

func (f *fakeNegotiator) HandleOffer(_ context.Context, connID, sdp string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return "", f.offerErr
	}
	f.offers = append(f.offers, sdp)
	return "answer:" + sdp, nil
}

func (f *fakeNegotiator) AddCandidate(connID, candidateJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidateJSON)
	return nil
}

func (f *fakeNegotiator) Close(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, connID)
}

func (f *fakeNegotiator) closedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

type fakeSessions struct {
	mu      sync.Mutex
	created []string
	closed  []string
	moves   map[string][2]float64
}

func (f *fakeSessions) InitializeSession(id string) *room.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, id)
	return nil
}

func (f *fakeSessions) CloseSession(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return true
}

func (f *fakeSessions) Sessions() []room.Info {
	return []room.Info{{ID: "a", Running: true}}
}

func (f *fakeSessions) MovePlayer(id string, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moves == nil {
		f.moves = make(map[string][2]float64)
	}
	f.moves[id] = [2]float64{x, y}
	return nil
}

func (f *fakeSessions) snapshot() (created, closed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...), append([]string(nil), f.closed...)
}

func newTestHub(t *testing.T, neg *fakeNegotiator, sess *fakeSessions) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(neg, sess, logger.Discard())
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signal"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func writeFrame(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func welcome(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	env := readFrame(t, conn)
	if env.Type != protocol.MsgWelcome {
		t.Fatalf("first frame = %q, want welcome", env.Type)
	}
	w, err := protocol.DecodePayload[protocol.Welcome](env)
	if err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if w.ConnectionID == "" {
		t.Fatalf("empty connection id")
	}
	return w.ConnectionID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubWelcomesAndInitializesSession(t *testing.T) {
	sess := &fakeSessions{}
	_, srv := newTestHub(t, &fakeNegotiator{}, sess)

	conn := dial(t, srv)
	id := welcome(t, conn)

	waitFor(t, "session creation", func() bool {
		created, _ := sess.snapshot()
		return len(created) == 1 && created[0] == id
	})
}

func TestHubOfferAnswerAndCandidates(t *testing.T) {
	neg := &fakeNegotiator{}
	h, srv := newTestHub(t, neg, &fakeSessions{})

	conn := dial(t, srv)
	id := welcome(t, conn)

	writeFrame(t, conn, protocol.MsgCandidate, protocol.Candidate{Candidate: "candidate:1"})
	writeFrame(t, conn, protocol.MsgOffer, protocol.SessionDescription{SDP: "v=0"})

	env := readFrame(t, conn)
	if env.Type != protocol.MsgAnswer {
		t.Fatalf("frame = %q, want answer", env.Type)
	}
	answer, _ := protocol.DecodePayload[protocol.SessionDescription](env)
	if answer.SDP != "answer:v=0" {
		t.Fatalf("answer sdp = %q", answer.SDP)
	}

	neg.mu.Lock()
	cands := append([]string(nil), neg.candidates...)
	neg.mu.Unlock()
	if len(cands) != 1 || !strings.Contains(cands[0], "candidate:1") {
		t.Fatalf("negotiator candidates = %v", cands)
	}

	if err := h.SendCandidate(id, protocol.Candidate{Candidate: "server"}); err != nil {
		t.Fatalf("SendCandidate: %v", err)
	}
	env = readFrame(t, conn)
	if env.Type != protocol.MsgCandidate {
		t.Fatalf("frame = %q, want candidate", env.Type)
	}
	c, _ := protocol.DecodePayload[protocol.Candidate](env)
	if c.Candidate != "server" {
		t.Fatalf("candidate = %q, want server", c.Candidate)
	}
}

func TestHubReportsErrors(t *testing.T) {
	neg := &fakeNegotiator{offerErr: errors.New("bad sdp")}
	_, srv := newTestHub(t, neg, &fakeSessions{})

	conn := dial(t, srv)
	welcome(t, conn)

	cases := []struct {
		name string
		send func()
	}{
		{"rejected offer", func() { writeFrame(t, conn, protocol.MsgOffer, protocol.SessionDescription{SDP: "x"}) }},
		{"unknown frame", func() { writeFrame(t, conn, "hello", nil) }},
		{"malformed frame", func() { _ = conn.WriteMessage(websocket.TextMessage, []byte("{")) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.send()
			if env := readFrame(t, conn); env.Type != protocol.MsgError {
				t.Fatalf("frame = %q, want error", env.Type)
			}
		})
	}
}

func TestHubDisconnectClosesPeerAndSession(t *testing.T) {
	neg := &fakeNegotiator{}
	sess := &fakeSessions{}
	h, srv := newTestHub(t, neg, sess)

	conn := dial(t, srv)
	id := welcome(t, conn)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, "cleanup", func() bool {
		_, closed := sess.snapshot()
		ids := neg.closedIDs()
		return len(closed) == 1 && closed[0] == id && len(ids) == 1 && ids[0] == id
	})
	waitFor(t, "client removal", func() bool { return h.Len() == 0 })

	if err := h.SendCandidate(id, protocol.Candidate{Candidate: "late"}); err == nil {
		t.Fatalf("SendCandidate to a gone client should fail")
	}
}

func TestHubHealthAndSessions(t *testing.T) {
	_, srv := newTestHub(t, &fakeNegotiator{}, &fakeSessions{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}
