package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"arena/logger"
	"arena/protocol"
	"arena/room"
)

const (
	readLimit    = 1 << 20
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
	sendQueue    = 64
)

var ErrSlowClient = errors.New("signaling client send queue full")

// Negotiator is the transport side the hub forwards signaling to.
type Negotiator interface {
	HandleOffer(ctx context.Context, connID, sdpOffer string) (string, error)
	AddCandidate(connID, candidateJSON string) error
	Close(connID string)
}

// Sessions is the arena side of a signaling connection's lifetime.
type Sessions interface {
	InitializeSession(id string) *room.Session
	CloseSession(id string) bool
	Sessions() []room.Info
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub is the signaling rendezvous. Each websocket gets a fresh connection id
// that names both its peer and its arena session.
type Hub struct {
	negotiator Negotiator
	sessions   Sessions
	log        logrus.FieldLogger
	upgrader   websocket.Upgrader
	newID      func() string

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(negotiator Negotiator, sessions Sessions, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logger.Log
	}
	return &Hub{
		negotiator: negotiator,
		sessions:   sessions,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// For dev, allow all origins. Lock this down in prod.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		newID:   uuid.NewString,
		clients: make(map[string]*client),
	}
}

// Handler serves the signaling socket, a health probe and a session listing.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/signal", h.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.sessions.Sessions())
	})
	return mux
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:   h.newID(),
		conn: conn,
		send: make(chan []byte, sendQueue),
		done: make(chan struct{}),
	}
	log := h.log.WithField("conn", c.id)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		c.close()
		h.negotiator.Close(c.id)
		h.sessions.CloseSession(c.id)
		log.Info("signaling client disconnected")
	}()

	go h.writeLoop(c)

	log.Info("signaling client connected")
	h.enqueue(c, protocol.MsgWelcome, protocol.Welcome{ConnectionID: c.id})
	h.sessions.InitializeSession(c.id)

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("signaling read failed")
			}
			return
		}
		h.handleFrame(ctx, c, msg)
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *client, msg []byte) {
	log := h.log.WithField("conn", c.id)

	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		log.WithError(err).Warn("discarding malformed signaling frame")
		h.enqueue(c, protocol.MsgError, protocol.Error{Message: err.Error()})
		return
	}

	switch env.Type {
	case protocol.MsgOffer:
		offer, err := protocol.DecodePayload[protocol.SessionDescription](env)
		if err != nil {
			h.enqueue(c, protocol.MsgError, protocol.Error{Message: err.Error()})
			return
		}
		answer, err := h.negotiator.HandleOffer(ctx, c.id, offer.SDP)
		if err != nil {
			log.WithError(err).Warn("offer rejected")
			h.enqueue(c, protocol.MsgError, protocol.Error{Message: "offer rejected: " + err.Error()})
			return
		}
		h.enqueue(c, protocol.MsgAnswer, protocol.SessionDescription{SDP: answer})

	case protocol.MsgCandidate:
		if err := h.negotiator.AddCandidate(c.id, string(env.Payload)); err != nil {
			log.WithError(err).Warn("candidate rejected")
			h.enqueue(c, protocol.MsgError, protocol.Error{Message: "candidate rejected: " + err.Error()})
		}

	default:
		log.WithField("type", env.Type).Warn("unknown signaling frame")
		h.enqueue(c, protocol.MsgError, protocol.Error{Message: "unknown signaling frame: " + env.Type})
	}
}

// SendCandidate pushes a server ICE candidate to connID's socket.
func (h *Hub) SendCandidate(connID string, cand protocol.Candidate) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return errors.New("no signaling client " + connID)
	}
	b, err := protocol.Encode(protocol.MsgCandidate, cand)
	if err != nil {
		return err
	}
	return h.push(c, b)
}

func (h *Hub) enqueue(c *client, typ string, payload any) {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		h.log.WithError(err).Error("failed to encode signaling frame")
		return
	}
	if err := h.push(c, b); err != nil {
		h.log.WithError(err).WithField("conn", c.id).Warn("dropping signaling frame")
	}
}

func (h *Hub) push(c *client, b []byte) error {
	select {
	case <-c.done:
		return errors.New("signaling client closed")
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSlowClient
	}
}

// writeLoop is the only writer on c.conn.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
