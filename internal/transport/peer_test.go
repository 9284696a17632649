package transport

import "testing"

func TestICEServersFromEmpty(t *testing.T) {
	if got := iceServersFrom(nil); got != nil {
		t.Fatalf("expected nil for no servers, got %v", got)
	}
}

func TestICEServersFromPreservesOrder(t *testing.T) {
	in := []string{"stun:a.example.com:3478", "turn:b.example.com:3478"}
	out := iceServersFrom(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 ICE servers, got %d", len(out))
	}
	if out[0].URLs[0] != in[0] || out[1].URLs[0] != in[1] {
		t.Fatalf("expected order preserved, got %+v", out)
	}
}

func TestPeerTransportSendBeforeDataChannelOpenFails(t *testing.T) {
	pt := &peerTransport{}
	if err := pt.Send([]byte("hello")); err == nil {
		t.Fatal("expected Send to fail before a data channel is bound")
	}
}

func TestPeerTransportCloseIsIdempotentForCallbacks(t *testing.T) {
	pt := &peerTransport{}
	closed := 0
	pt.OnClose(func() { closed++ })
	pt.triggerClose()
	pt.triggerClose()
	if closed != 1 {
		t.Fatalf("expected OnClose callback to fire exactly once, got %d", closed)
	}
}
