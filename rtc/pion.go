package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"arena/logger"
	"arena/protocol"
)

// PionFactory builds real peers with pion/webrtc.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	log    logrus.FieldLogger
}

func NewPionFactory(stunURLs []string, log logrus.FieldLogger) *PionFactory {
	if log == nil {
		log = logger.Log
	}
	cfg := webrtc.Configuration{}
	if len(stunURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
	}
	return &PionFactory{api: webrtc.NewAPI(), config: cfg, log: log}
}

func (f *PionFactory) NewPeer(connID string, events PeerEvents) (Peer, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	log := f.log.WithField("conn", connID)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || events.OnLocalCandidate == nil {
			return
		}
		events.OnLocalCandidate(CandidateFromInit(c.ToJSON()))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.WithField("state", s.String()).Debug("peer connection state")
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		ch := &pionChannel{dc: dc}
		dc.OnOpen(func() {
			if events.OnDataChannelOpen != nil {
				events.OnDataChannelOpen(ch)
			}
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if events.OnDataChannelMessage != nil {
				events.OnDataChannelMessage(ch, msg.Data)
			}
		})
		dc.OnClose(func() {
			if events.OnDataChannelClose != nil {
				events.OnDataChannelClose(ch)
			}
		})
	})

	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) SetRemoteOffer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
}

func (p *pionPeer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (p *pionPeer) AddCandidate(c protocol.Candidate) error {
	return p.pc.AddICECandidate(CandidateToInit(c))
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionChannel) Label() string           { return c.dc.Label() }
func (c *pionChannel) SendText(s string) error { return c.dc.SendText(s) }
func (c *pionChannel) Close() error            { return c.dc.Close() }

func CandidateToInit(c protocol.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func CandidateFromInit(init webrtc.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}
