package framing

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec(1024)
	packets, err := c.Encode(AvChunk, []byte("hello world"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}

	p, err := c.Decode(packets[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Header != AvChunk {
		t.Fatalf("expected header AvChunk, got %v", p.Header)
	}
	if !bytes.Equal(p.Payload, []byte("hello world")) {
		t.Fatalf("payload mismatch: %q", p.Payload)
	}
}

func TestEncodeSplitsOversizedPayload(t *testing.T) {
	c := NewCodec(10) // 9 bytes of payload per packet
	payload := bytes.Repeat([]byte("a"), 25)
	packets, err := c.Encode(AvChunk, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}

	var reassembled []byte
	for _, pkt := range packets {
		p, err := c.Decode(pkt)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if p.Header != AvChunk {
			t.Fatalf("expected every split packet to share the header")
		}
		reassembled = append(reassembled, p.Payload...)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatalf("reassembled payload mismatch")
	}
}

func TestDecodeRejectsEmpty(t *testing.T) {
	c := NewCodec(1024)
	if _, err := c.Decode(nil); err != ErrEmptyPacket {
		t.Fatalf("expected ErrEmptyPacket, got %v", err)
	}
}

func TestDecodeRejectsOversize(t *testing.T) {
	c := NewCodec(4)
	_, err := c.Decode([]byte{0x41, 1, 2, 3, 4})
	if err == nil {
		t.Fatal("expected an error for an oversize datagram")
	}
	var oversize *ErrOversizePacket
	if !errors.As(err, &oversize) {
		t.Fatalf("expected ErrOversizePacket, got %v", err)
	}
}

func TestBoundaryExactMaxIsAccepted(t *testing.T) {
	c := NewCodec(4)
	if _, err := c.Decode([]byte{0x41, 1, 2, 3}); err != nil {
		t.Fatalf("expected exactly-max-size datagram to be accepted, got %v", err)
	}
}
