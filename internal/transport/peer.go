package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/lanternops/avgateway/internal/logging"
)

var log = logging.L("transport")

// dataChannelLabel is the single ordered, reliable data channel carrying
// framed packets in both directions. The wire contract is one channel;
// there is no control/media channel split.
const dataChannelLabel = "av"

// iceGatherTimeout bounds how long Negotiate waits for ICE gathering to
// complete before returning the answer with whatever candidates have
// gathered so far (trickle continues afterward via onLocalICECandidate).
const iceGatherTimeout = 20 * time.Second

// PeerFactory builds PeerConnections via pion/webrtc with a shared
// webrtc.API holding the registered default codecs.
type PeerFactory struct {
	api *webrtc.API
}

func NewPeerFactory() (*PeerFactory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("transport: register default codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return &PeerFactory{api: api}, nil
}

func (f *PeerFactory) Negotiate(ctx context.Context, offer SDPDescription, iceServers []string, onLocalICECandidate func(ICECandidate)) (PeerTransport, SDPDescription, error) {
	config := webrtc.Configuration{ICEServers: iceServersFrom(iceServers)}

	peerConn, err := f.api.NewPeerConnection(config)
	if err != nil {
		return nil, SDPDescription{}, fmt.Errorf("transport: new peer connection: %w", err)
	}

	pt := &peerTransport{peerConn: peerConn}

	peerConn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || onLocalICECandidate == nil {
			return
		}
		init := c.ToJSON()
		mid := ""
		if init.SDPMid != nil {
			mid = *init.SDPMid
		}
		onLocalICECandidate(ICECandidate{Candidate: init.Candidate, SDPMid: mid})
	})

	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			pt.triggerClose()
		}
	})

	peerConn.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			return
		}
		pt.bindDataChannel(dc)
	})

	if err := peerConn.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		return nil, SDPDescription{}, fmt.Errorf("transport: set remote description: %w", err)
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		return nil, SDPDescription{}, fmt.Errorf("transport: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)
	if err := peerConn.SetLocalDescription(answer); err != nil {
		return nil, SDPDescription{}, fmt.Errorf("transport: set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		log.Warn("ice gathering did not complete before timeout, proceeding with partial candidates")
	case <-ctx.Done():
		return nil, SDPDescription{}, ctx.Err()
	}

	localDesc := peerConn.LocalDescription()
	return pt, SDPDescription{SDP: localDesc.SDP, Type: "answer"}, nil
}

func iceServersFrom(servers []string) []webrtc.ICEServer {
	if len(servers) == 0 {
		return nil
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, uri := range servers {
		out = append(out, webrtc.ICEServer{URLs: []string{uri}})
	}
	return out
}

// peerTransport adapts a pion PeerConnection + its single data channel
// to the PeerTransport interface.
type peerTransport struct {
	peerConn *webrtc.PeerConnection

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	onMessage func([]byte)
	onClose   func()
	// closing guards triggerClose with a compare-and-swap rather than a
	// sync.Once, so the OnClose callback may itself call Close without
	// re-entering a Once that is still running.
	closing atomic.Bool
}

func (p *peerTransport) bindDataChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.mu.Lock()
		cb := p.onMessage
		p.mu.Unlock()
		if cb != nil {
			cb(msg.Data)
		}
	})

	dc.OnClose(func() {
		p.triggerClose()
	})
}

func (p *peerTransport) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil {
		return fmt.Errorf("transport: data channel not yet open")
	}
	return dc.Send(data)
}

func (p *peerTransport) OnMessage(cb func([]byte)) {
	p.mu.Lock()
	p.onMessage = cb
	p.mu.Unlock()
}

func (p *peerTransport) OnClose(cb func()) {
	p.mu.Lock()
	p.onClose = cb
	p.mu.Unlock()
}

func (p *peerTransport) triggerClose() {
	if !p.closing.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	cb := p.onClose
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (p *peerTransport) Close() error {
	p.triggerClose()
	return p.peerConn.Close()
}

func (p *peerTransport) AddICECandidate(candidate ICECandidate) error {
	mid := candidate.SDPMid
	return p.peerConn.AddICECandidate(webrtc.ICECandidateInit{
		Candidate: candidate.Candidate,
		SDPMid:    &mid,
	})
}
