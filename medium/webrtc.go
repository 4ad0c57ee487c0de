package medium

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// SignalTransport carries SDP offers/answers and ICE candidates between
// two peers during WebRTC negotiation. The spec's design notes call for
// WebRTC signaling to stay behind the PlatformMediums seam rather than
// have the core reimplement a signaling protocol; this interface is that
// seam. This module ships no implementation of it, and cmd/nearbyd
// registers no WebRTC medium for that reason; a deployment supplies one
// backed by whatever signaling channel (the existing offline channel, a
// relay server) the host application already has.
type SignalTransport interface {
	SendSignal(ctx context.Context, toEndpointID string, msg SignalMessage) error
	// RecvSignal blocks until a signaling message addressed to this peer
	// arrives.
	RecvSignal(ctx context.Context) (SignalMessage, error)
}

// SignalMessage is one SDP/ICE exchange unit.
type SignalMessage struct {
	FromEndpointID string          `json:"from"`
	Kind           string          `json:"kind"` // "offer", "answer", or "candidate"
	SDP            string          `json:"sdp,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
}

// WebRTCMedium stands in for the spec's WEB_RTC medium: a single ordered,
// reliable pion/webrtc data channel per endpoint.
type WebRTCMedium struct {
	signal SignalTransport
	config webrtc.Configuration
}

// NewWebRTCMedium constructs the medium. signal is the caller-supplied
// signaling channel; iceServers configures STUN/TURN as usual.
func NewWebRTCMedium(signal SignalTransport, iceServers []webrtc.ICEServer) *WebRTCMedium {
	return &WebRTCMedium{signal: signal, config: webrtc.Configuration{ICEServers: iceServers}}
}

func (m *WebRTCMedium) Kind() Kind { return KindWebRTC }

// Listen waits for an inbound offer over the signaling transport and
// answers it, producing one Channel per call. Because WebRTC has no
// notion of a long-lived listening socket, the returned Listener's
// Accept simply loops this handshake.
func (m *WebRTCMedium) Listen(ctx context.Context) (Listener, error) {
	return &webRTCListener{medium: m}, nil
}

func (m *WebRTCMedium) Dial(ctx context.Context, remoteEndpointID string) (Channel, error) {
	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("medium: webrtc new peer connection: %w", err)
	}
	dc, err := pc.CreateDataChannel("nearby", nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc create data channel: %w", err)
	}

	ch := newWebRTCChannel(pc, dc, remoteEndpointID)
	m.forwardICECandidates(ctx, pc, remoteEndpointID)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc set local description: %w", err)
	}
	if err := m.signal.SendSignal(ctx, remoteEndpointID, SignalMessage{Kind: "offer", SDP: offer.SDP}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc send offer: %w", err)
	}

	answer, err := m.awaitSignal(ctx, "answer")
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc set remote description: %w", err)
	}

	if err := ch.waitOpen(ctx); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return ch, nil
}

func (m *WebRTCMedium) awaitSignal(ctx context.Context, kind string) (SignalMessage, error) {
	for {
		msg, err := m.signal.RecvSignal(ctx)
		if err != nil {
			return SignalMessage{}, err
		}
		if msg.Kind == kind {
			return msg, nil
		}
	}
}

func (m *WebRTCMedium) forwardICECandidates(ctx context.Context, pc *webrtc.PeerConnection, remoteEndpointID string) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		_ = m.signal.SendSignal(ctx, remoteEndpointID, SignalMessage{Kind: "candidate", Candidate: raw})
	})
}

type webRTCListener struct {
	medium *WebRTCMedium
}

func (l *webRTCListener) Accept(ctx context.Context) (Channel, error) {
	offer, err := l.medium.awaitSignal(ctx, "offer")
	if err != nil {
		return nil, err
	}

	pc, err := webrtc.NewPeerConnection(l.medium.config)
	if err != nil {
		return nil, fmt.Errorf("medium: webrtc new peer connection: %w", err)
	}

	ch := newWebRTCChannel(pc, nil, offer.FromEndpointID)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		ch.bind(dc)
	})
	l.medium.forwardICECandidates(ctx, pc, offer.FromEndpointID)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc set local description: %w", err)
	}
	if err := l.medium.signal.SendSignal(ctx, offer.FromEndpointID, SignalMessage{Kind: "answer", SDP: answer.SDP}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("medium: webrtc send answer: %w", err)
	}

	if err := ch.waitOpen(ctx); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return ch, nil
}

func (l *webRTCListener) Addr() string { return "" }

func (l *webRTCListener) Close() error { return nil }

// webRTCChannel adapts a pion DataChannel to the medium.Channel contract
// via an in-process pipe: pion delivers messages through callbacks, so a
// buffered byte pipe bridges that push model to Go's blocking Read/Write.
type webRTCChannel struct {
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	remoteAddr string
	openCh     chan struct{}
	opened     bool

	readCh chan []byte
	pending []byte
	closed chan struct{}
}

func newWebRTCChannel(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, remoteEndpointID string) *webRTCChannel {
	ch := &webRTCChannel{
		pc:         pc,
		remoteAddr: remoteEndpointID,
		openCh:     make(chan struct{}),
		readCh:     make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
	if dc != nil {
		ch.bind(dc)
	}
	return ch
}

func (c *webRTCChannel) bind(dc *webrtc.DataChannel) {
	c.dc = dc
	dc.OnOpen(func() {
		if !c.opened {
			c.opened = true
			close(c.openCh)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case c.readCh <- msg.Data:
		case <-c.closed:
		}
	})
	dc.OnClose(func() {
		select {
		case <-c.closed:
		default:
			close(c.closed)
		}
	})
}

func (c *webRTCChannel) waitOpen(ctx context.Context) error {
	select {
	case <-c.openCh:
		return nil
	case <-c.closed:
		return fmt.Errorf("medium: webrtc data channel closed before opening")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *webRTCChannel) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		select {
		case msg, ok := <-c.readCh:
			if !ok {
				return 0, fmt.Errorf("medium: webrtc channel closed")
			}
			c.pending = msg
		case <-c.closed:
			return 0, fmt.Errorf("medium: webrtc channel closed")
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *webRTCChannel) Write(p []byte) (int, error) {
	if err := c.dc.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webRTCChannel) Close() error {
	if c.dc != nil {
		_ = c.dc.Close()
	}
	return c.pc.Close()
}

func (c *webRTCChannel) RemoteAddr() string { return c.remoteAddr }

// FramesAreMessages is true: pion delivers exactly one DataChannelMessage
// per wire frame, the same message-oriented guarantee BLE L2CAP gives.
func (c *webRTCChannel) FramesAreMessages() bool { return true }
