// Command arenabot is a headless client: it negotiates a data channel through
// the signaling hub, wanders the player around and logs the reconciled state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"arena/config"
	"arena/logger"
	"arena/protocol"
	"arena/reconcile"
	"arena/rtc"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws/signal", "signaling endpoint")
	duration := flag.Duration("duration", 30*time.Second, "how long to play (0 = until interrupted)")
	moveEvery := flag.Duration("move-every", 2*time.Second, "interval between move commands")
	flag.Parse()

	level, _ := config.GetEnvVariable("LOG_LEVEL")
	format, _ := config.GetEnvVariable("LOG_FORMAT")
	logger.Init(level, format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := play(ctx, *url, *moveEvery); err != nil {
		logger.Log.WithError(err).Fatal("bot failed")
	}
}

type signaling struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *signaling) send(typ string, payload any) error {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func play(ctx context.Context, url string, moveEvery time.Duration) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	sig := &signaling{conn: conn}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	defer pc.Close()

	buffer := reconcile.NewBuffer(reconcile.DefaultOptions())
	log := logger.Log

	dc, err := pc.CreateDataChannel("arena", nil)
	if err != nil {
		return err
	}
	dc.OnOpen(func() {
		log.Info("data channel open")
		go wander(ctx, dc, moveEvery)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		env, err := protocol.DecodeEnvelope(msg.Data)
		if err != nil || env.Type != protocol.MsgSnapshotResponse {
			return
		}
		state, err := protocol.DecodePayload[protocol.ArenaState](env)
		if err != nil {
			log.WithError(err).Warn("bad snapshot")
			return
		}
		buffer.Push(state)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := sig.send(protocol.MsgCandidate, rtc.CandidateFromInit(c.ToJSON())); err != nil {
			log.WithError(err).Warn("failed to send candidate")
		}
	})

	go report(ctx, buffer, log)

	var (
		remoteSet bool
		pending   []protocol.Candidate
	)
	go func() {
		<-ctx.Done()
		sig.mu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		sig.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		env, err := protocol.DecodeEnvelope(msg)
		if err != nil {
			log.WithError(err).Warn("bad signaling frame")
			continue
		}

		switch env.Type {
		case protocol.MsgWelcome:
			w, _ := protocol.DecodePayload[protocol.Welcome](env)
			log.WithField("conn", w.ConnectionID).Info("welcomed, sending offer")
			offer, err := pc.CreateOffer(nil)
			if err != nil {
				return err
			}
			if err := pc.SetLocalDescription(offer); err != nil {
				return err
			}
			if err := sig.send(protocol.MsgOffer, protocol.SessionDescription{SDP: offer.SDP}); err != nil {
				return err
			}

		case protocol.MsgAnswer:
			answer, err := protocol.DecodePayload[protocol.SessionDescription](env)
			if err != nil {
				return err
			}
			if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
				return err
			}
			remoteSet = true
			for _, c := range pending {
				_ = pc.AddICECandidate(rtc.CandidateToInit(c))
			}
			pending = nil

		case protocol.MsgCandidate:
			var c protocol.Candidate
			if err := json.Unmarshal(env.Payload, &c); err != nil {
				continue
			}
			if !remoteSet {
				pending = append(pending, c)
				continue
			}
			if err := pc.AddICECandidate(rtc.CandidateToInit(c)); err != nil {
				log.WithError(err).Warn("failed to add candidate")
			}

		case protocol.MsgError:
			e, _ := protocol.DecodePayload[protocol.Error](env)
			log.WithField("message", e.Message).Warn("server reported an error")
		}
	}
}

func wander(ctx context.Context, dc *webrtc.DataChannel, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		b, err := protocol.Encode(protocol.MsgMove, protocol.Move{X: rand.Float64() * 400, Y: rand.Float64() * 400})
		if err != nil {
			return
		}
		if err := dc.SendText(string(b)); err != nil {
			return
		}
	}
}

func report(ctx context.Context, buffer *reconcile.Buffer, log logrus.FieldLogger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		state, ok := buffer.Current()
		if !ok {
			continue
		}
		log.WithFields(logrus.Fields{
			"x":           state.Player.X,
			"y":           state.Player.Y,
			"health":      state.Player.Health,
			"enemies":     len(state.Enemies),
			"projectiles": len(state.Projectiles),
		}).Info("arena")
	}
}
