package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/lanternops/avgateway/internal/encoder"
	"github.com/lanternops/avgateway/internal/framing"
	"github.com/lanternops/avgateway/internal/transport"
)

// fakePeerTransport is a hand-written double implementing
// transport.PeerTransport for routing tests.
type fakePeerTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	onMsg   func([]byte)
	onClose func()
	closed  bool
	sendErr error
}

func (f *fakePeerTransport) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}
func (f *fakePeerTransport) OnMessage(cb func([]byte)) { f.onMsg = cb }
func (f *fakePeerTransport) OnClose(cb func())         { f.onClose = cb }
func (f *fakePeerTransport) Close() error              { f.closed = true; return nil }
func (f *fakePeerTransport) AddICECandidate(transport.ICECandidate) error { return nil }

func (f *fakePeerTransport) sentHeaders() []framing.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	codec := framing.NewCodec(1 << 20)
	var headers []framing.Header
	for _, data := range f.sent {
		pkt, err := codec.Decode(data)
		if err == nil {
			headers = append(headers, pkt.Header)
		}
	}
	return headers
}

type fakeSignalingConn struct {
	mu       sync.Mutex
	inbox    [][]byte
	outbox   [][]byte
	closedAt int
	idx      int
}

func (f *fakeSignalingConn) ReadMessage() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.inbox) {
		return nil, errEOF
	}
	msg := f.inbox[f.idx]
	f.idx++
	return msg, nil
}
func (f *fakeSignalingConn) WriteMessage(data []byte) error {
	f.mu.Lock()
	f.outbox = append(f.outbox, data)
	f.mu.Unlock()
	return nil
}
func (f *fakeSignalingConn) CloseWithCode(code int, reason string) error {
	f.closedAt = code
	return nil
}
func (f *fakeSignalingConn) Close() error { return f.CloseWithCode(1000, "") }

var errEOF = &fakeErr{"eof"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

type fakePeerFactory struct {
	peer *fakePeerTransport
}

func (f *fakePeerFactory) Negotiate(ctx context.Context, offer transport.SDPDescription, iceServers []string, onLocalICECandidate func(transport.ICECandidate)) (transport.PeerTransport, transport.SDPDescription, error) {
	return f.peer, transport.SDPDescription{SDP: "answer-sdp", Type: "answer"}, nil
}

func newTestSession(t *testing.T, peer *fakePeerTransport) (*ClientSession, *fakeSignalingConn) {
	t.Helper()
	sig := &fakeSignalingConn{}
	cs := New("test", Config{MaxPacketSize: 1024, QueueCapacity: 8}, &fakePeerFactory{peer: peer}, sig)
	cs.peer = peer
	return cs, sig
}

func TestHandlePacketUnknownHeaderDropped(t *testing.T) {
	peer := &fakePeerTransport{}
	cs, _ := newTestSession(t, peer)

	cs.handlePacket([]byte{0x99, 1, 2, 3})

	if len(peer.sentHeaders()) != 0 {
		t.Fatalf("expected no response for an unknown header, got %v", peer.sentHeaders())
	}
}

func TestHandlePacketChunkWithoutSessionStartReportsError(t *testing.T) {
	peer := &fakePeerTransport{}
	cs, _ := newTestSession(t, peer)

	cs.handlePacket([]byte{byte(framing.AvChunk), 1, 2, 3})

	headers := peer.sentHeaders()
	if len(headers) != 1 || headers[0] != framing.SessionStartError {
		t.Fatalf("expected a SessionStartError response, got %v", headers)
	}
}

func TestHandleSessionStartUnknownProcessorReportsStartError(t *testing.T) {
	peer := &fakePeerTransport{}
	cs, _ := newTestSession(t, peer)

	cfg := encoder.StreamConfig{Processor: "not-a-real-processor"}
	payload, _ := json.Marshal(cfg)
	cs.handlePacket(append([]byte{byte(framing.SessionStart)}, payload...))

	deadline := time.After(time.Second)
	for len(peer.sentHeaders()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for SessionStartError")
		case <-time.After(5 * time.Millisecond):
		}
	}
	headers := peer.sentHeaders()
	if headers[len(headers)-1] != framing.SessionStartError {
		t.Fatalf("expected SessionStartError, got %v", headers)
	}
}

func TestRegistryAuthEmptyKeyAcceptsAny(t *testing.T) {
	r := NewRegistry(Config{}, &fakePeerFactory{peer: &fakePeerTransport{}})
	if !r.authenticate("") {
		t.Fatal("expected empty configured key to accept a missing client key")
	}
	if !r.authenticate("anything") {
		t.Fatal("expected empty configured key to accept any client key")
	}
}

func TestRegistryAuthRejectsMismatch(t *testing.T) {
	r := NewRegistry(Config{AuthKey: "secret"}, &fakePeerFactory{peer: &fakePeerTransport{}})
	if r.authenticate("wrong") {
		t.Fatal("expected mismatched auth key to be rejected")
	}
	if !r.authenticate("secret") {
		t.Fatal("expected matching auth key to be accepted")
	}
}

func TestRegistryAcceptRejectsBadAuthWithClose1002(t *testing.T) {
	r := NewRegistry(Config{AuthKey: "secret"}, &fakePeerFactory{peer: &fakePeerTransport{}})
	sig := &fakeSignalingConn{}
	r.Accept(context.Background(), sig, "wrong")

	if sig.closedAt != 1002 {
		t.Fatalf("expected close code 1002, got %d", sig.closedAt)
	}
	if r.Len() != 0 {
		t.Fatalf("expected no session registered on auth failure, got %d", r.Len())
	}
}

func TestIDForIsUniquePerCall(t *testing.T) {
	r := NewRegistry(Config{}, &fakePeerFactory{peer: &fakePeerTransport{}})
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := r.newID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
