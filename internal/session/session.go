// Package session implements the per-client aggregate (ClientSession)
// that binds one PeerTransport, one SignalingTransport, and zero-or-one
// AVSession together, plus the process-wide SessionRegistry that owns
// every ClientSession.
package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanternops/avgateway/internal/avsession"
	"github.com/lanternops/avgateway/internal/encoder"
	"github.com/lanternops/avgateway/internal/framing"
	"github.com/lanternops/avgateway/internal/logging"
	"github.com/lanternops/avgateway/internal/obsv"
	"github.com/lanternops/avgateway/internal/transport"
)

var log = logging.L("session")

// Config carries everything a ClientSession needs that comes from
// process configuration rather than the wire.
type Config struct {
	AuthKey                string
	ICEServers             []string
	MaxPacketSize          int
	ChunkWaitTimeout       int // seconds
	ChunkWaitCheckInterval int // seconds
	QueueCapacity          int

	// EncoderBinaries maps a processor name to the executable path to
	// use in place of the adapter's default.
	EncoderBinaries map[string]string

	// ResolveSink resolves the destination.Sink for a StreamConfig's
	// destination type, passed straight through to avsession.Config.
	// Nil means no additive cloud destinations are wired; every
	// StreamConfig must then use file/rtmp/"".
	ResolveSink func(ctx context.Context, destType, key string) (sink io.WriteCloser, needed bool, err error)
}

// ClientSession is the per-peer aggregate. Its identity is the
// underlying signaling connection; it is created on inbound signaling
// connection (after auth) and destroyed on signaling close or
// peer-transport close.
type ClientSession struct {
	id      string
	cfg     Config
	codec   *framing.Codec
	factory transport.PeerTransportFactory
	sig     transport.SignalingConn

	mu   sync.Mutex
	peer transport.PeerTransport
	av   *avsession.AVSession

	closing atomic.Bool
	closed  chan struct{}
}

// New constructs a ClientSession bound to an already-authenticated
// signaling connection.
func New(id string, cfg Config, factory transport.PeerTransportFactory, sig transport.SignalingConn) *ClientSession {
	return &ClientSession{
		id:      id,
		cfg:     cfg,
		codec:   framing.NewCodec(cfg.MaxPacketSize),
		factory: factory,
		sig:     sig,
		closed:  make(chan struct{}),
	}
}

// ID returns the connection identity used as the SessionRegistry key.
func (cs *ClientSession) ID() string { return cs.id }

// Run drives the signaling message loop until the connection closes or
// ctx is cancelled: offer -> answer, then ICE trickle in both
// directions.
func (cs *ClientSession) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cs.closed:
			return
		default:
		}

		raw, err := cs.sig.ReadMessage()
		if err != nil {
			log.Debug("signaling read ended", "session", cs.id, "error", err)
			cs.Close()
			return
		}

		var msg signalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("malformed signaling message", "session", cs.id, "error", err)
			continue
		}

		switch msg.Type {
		case "wrtc:offer":
			cs.handleOffer(ctx, msg)
		case "wrtc:ice":
			cs.handleICE(msg)
		default:
			log.Warn("unknown signaling message type", "session", cs.id, "type", msg.Type)
		}
	}
}

func (cs *ClientSession) handleOffer(ctx context.Context, msg signalMessage) {
	if msg.Offer == nil {
		log.Warn("wrtc:offer missing offer payload", "session", cs.id)
		return
	}

	peer, answer, err := cs.factory.Negotiate(ctx, transport.SDPDescription{
		SDP:  msg.Offer.SDP,
		Type: msg.Offer.Type,
	}, cs.cfg.ICEServers, cs.sendLocalICECandidate)
	if err != nil {
		log.Warn("peer negotiation failed", "session", cs.id, "error", err)
		return
	}

	peer.OnMessage(cs.handlePacket)
	peer.OnClose(cs.Close)

	cs.mu.Lock()
	cs.peer = peer
	cs.mu.Unlock()

	cs.sendSignal(signalMessage{Type: "wrtc:answer", Answer: &sdpPayload{SDP: answer.SDP, Type: answer.Type}})
}

func (cs *ClientSession) handleICE(msg signalMessage) {
	if msg.Candidate == nil {
		return
	}
	cs.mu.Lock()
	peer := cs.peer
	cs.mu.Unlock()
	if peer == nil {
		log.Warn("ice candidate before peer transport exists", "session", cs.id)
		return
	}
	if err := peer.AddICECandidate(transport.ICECandidate{
		Candidate: msg.Candidate.Candidate,
		SDPMid:    msg.Candidate.mid(),
	}); err != nil {
		log.Warn("add ice candidate failed", "session", cs.id, "error", err)
	}
}

func (cs *ClientSession) sendLocalICECandidate(c transport.ICECandidate) {
	cs.sendSignal(signalMessage{Type: "wrtc:ice", Candidate: &candidatePayload{Candidate: c.Candidate, Mid: c.SDPMid}})
}

// sendStats relays an AVSession stats event to the peer over the
// signaling channel as `{"type":"av:stats","data":...}`, the one
// server-to-client signaling message, distinct from the data-channel
// packet headers.
func (cs *ClientSession) sendStats(stats encoder.Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		log.Warn("failed to marshal stats", "session", cs.id, "error", err)
		return
	}
	cs.sendSignal(signalMessage{Type: "av:stats", Data: data})
}

func (cs *ClientSession) sendSignal(msg signalMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn("failed to marshal signaling message", "session", cs.id, "error", err)
		return
	}
	if err := cs.sig.WriteMessage(data); err != nil {
		log.Debug("signaling write failed", "session", cs.id, "error", err)
	}
}

// handlePacket routes one inbound framed packet by header. Unknown
// headers are logged and dropped; oversize packets are dropped at the
// framing layer without tearing down the session.
func (cs *ClientSession) handlePacket(data []byte) {
	pkt, err := cs.codec.Decode(data)
	if err != nil {
		log.Warn("dropping malformed packet", "session", cs.id, "error", err)
		return
	}
	obsv.PacketFramed(context.Background(), "in")

	switch pkt.Header {
	case framing.SessionStart:
		cs.handleSessionStart(pkt.Payload)
	case framing.AvChunk:
		cs.handleChunk(pkt.Payload)
	case framing.SessionEnd:
		cs.handleSessionEnd()
	default:
		log.Warn("unknown packet header, dropping", "session", cs.id, "header", pkt.Header)
	}
}

func (cs *ClientSession) handleSessionStart(payload []byte) {
	streamCfg, err := encoder.ParseStreamConfig(payload)
	if err != nil {
		log.Warn("malformed StreamConfig", "session", cs.id, "error", err)
		cs.sendPacket(framing.SessionStartError, nil)
		return
	}

	cs.mu.Lock()
	if cs.av != nil {
		cs.mu.Unlock()
		log.Warn("session start rejected: AVSession already active", "session", cs.id)
		return
	}

	av := avsession.New(avsession.Config{
		ChunkWaitTimeout:       secondsOrDefault(cs.cfg.ChunkWaitTimeout, 10),
		ChunkWaitCheckInterval: secondsOrDefault(cs.cfg.ChunkWaitCheckInterval, 1),
		QueueCapacity:          cs.cfg.QueueCapacity,
		Binaries:               cs.cfg.EncoderBinaries,
		ResolveSink:            cs.cfg.ResolveSink,
	}, avsession.Events{
		OnReady:   func() { cs.sendPacket(framing.AvReady, nil) },
		OnStats:   cs.sendStats,
		OnTimeout: func() { cs.sendPacket(framing.ChunkWaitTimeout, nil) },
		OnError: func(kind avsession.ErrorKind, detail error) {
			if kind == avsession.ErrorKindStart || kind == avsession.ErrorKindRuntime {
				cs.sendPacket(framing.SessionStartError, nil)
			}
		},
		OnClosed: cs.clearAVSession,
	})
	cs.av = av
	cs.mu.Unlock()

	if err := av.Start(context.Background(), streamCfg); err != nil {
		log.Warn("avsession start failed", "session", cs.id, "error", err)
		// Drive the failed session to Closed so its OnClosed callback
		// clears cs.av and a later SessionStart can begin fresh.
		av.Stop()
	}
}

func (cs *ClientSession) handleChunk(payload []byte) {
	cs.mu.Lock()
	av := cs.av
	cs.mu.Unlock()
	if av == nil {
		cs.sendPacket(framing.SessionStartError, nil)
		return
	}
	av.Put(context.Background(), payload)
}

func (cs *ClientSession) handleSessionEnd() {
	cs.mu.Lock()
	av := cs.av
	cs.mu.Unlock()
	if av != nil {
		av.Stop()
	}
}

func (cs *ClientSession) clearAVSession() {
	cs.mu.Lock()
	cs.av = nil
	cs.mu.Unlock()
}

func (cs *ClientSession) sendPacket(header framing.Header, payload []byte) {
	cs.mu.Lock()
	peer := cs.peer
	cs.mu.Unlock()
	if peer == nil {
		return
	}
	packets, err := cs.codec.Encode(header, payload)
	if err != nil {
		log.Warn("failed to encode outbound packet", "session", cs.id, "error", err)
		return
	}
	for _, p := range packets {
		if err := peer.Send(p); err != nil {
			log.Debug("peer send failed", "session", cs.id, "error", err)
			return
		}
		obsv.PacketFramed(context.Background(), "out")
	}
}

// Close tears down any live AVSession and the peer transport, and is
// safe to call more than once (only the first call has effect), including
// re-entrantly from the peer's OnClose callback while peer.Close runs.
func (cs *ClientSession) Close() {
	if !cs.closing.CompareAndSwap(false, true) {
		return
	}
	cs.mu.Lock()
	av := cs.av
	peer := cs.peer
	cs.mu.Unlock()

	if av != nil {
		av.Stop()
	}
	if peer != nil {
		_ = peer.Close()
	}
	_ = cs.sig.Close()
	close(cs.closed)
}

func secondsOrDefault(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
