// Package framing implements the wire packet format carried over the
// data channel: a single header byte followed by an opaque payload.
// There is no checksum and no sequence number; integrity and ordering
// are delegated entirely to the underlying transport.
package framing

import "fmt"

// Header identifies the purpose of a packet. Headers form a closed
// enumeration; unknown values are logged and dropped by the caller.
type Header byte

const (
	SessionStart       Header = 0x10
	AvReady            Header = 0x34
	SessionStartError  Header = 0x35
	ChunkWaitTimeout   Header = 0x36
	AvChunk            Header = 0x41
	SessionEnd         Header = 0x84
)

func (h Header) String() string {
	switch h {
	case SessionStart:
		return "SessionStart"
	case AvReady:
		return "AvReady"
	case SessionStartError:
		return "SessionStartError"
	case ChunkWaitTimeout:
		return "ChunkWaitTimeout"
	case AvChunk:
		return "AvChunk"
	case SessionEnd:
		return "SessionEnd"
	default:
		return fmt.Sprintf("Header(0x%02x)", byte(h))
	}
}

// ErrEmptyPacket is returned by Decode when given a zero-length datagram.
var ErrEmptyPacket = fmt.Errorf("framing: packet is empty")

// ErrOversizePacket is returned by Decode when a datagram exceeds the
// configured maxPacketSize. Encode never returns it: it splits instead.
type ErrOversizePacket struct {
	Size, Max int
}

func (e *ErrOversizePacket) Error() string {
	return fmt.Sprintf("framing: packet size %d exceeds max %d", e.Size, e.Max)
}

// Packet is a decoded wire message: the header byte and the payload
// that follows it.
type Packet struct {
	Header  Header
	Payload []byte
}

// Codec encodes and decodes packets against a fixed maxPacketSize ceiling.
type Codec struct {
	MaxPacketSize int
}

// NewCodec returns a Codec bounded to maxPacketSize total bytes per packet
// (header included).
func NewCodec(maxPacketSize int) *Codec {
	return &Codec{MaxPacketSize: maxPacketSize}
}

// Encode serializes header||payload. If payload is larger than
// MaxPacketSize-1 bytes, it is split into consecutive slices of
// MaxPacketSize-1 bytes (the last one holding whatever remains), one
// packet emitted per slice, all sharing the
// same header, in order. There is no per-chunk sequence number: the
// caller relies on transport ordering for reassembly on the other end.
func (c *Codec) Encode(header Header, payload []byte) ([][]byte, error) {
	maxPayload := c.MaxPacketSize - 1
	if maxPayload <= 0 {
		return nil, fmt.Errorf("framing: max packet size %d leaves no room for payload", c.MaxPacketSize)
	}

	if len(payload) <= maxPayload {
		return [][]byte{c.frame(header, payload)}, nil
	}

	var packets [][]byte
	for offset := 0; offset < len(payload); offset += maxPayload {
		end := offset + maxPayload
		if end > len(payload) {
			end = len(payload)
		}
		packets = append(packets, c.frame(header, payload[offset:end]))
	}
	return packets, nil
}

func (c *Codec) frame(header Header, slice []byte) []byte {
	buf := make([]byte, 1+len(slice))
	buf[0] = byte(header)
	copy(buf[1:], slice)
	return buf
}

// Decode parses a received datagram into its header and payload. It
// rejects empty datagrams and datagrams larger than MaxPacketSize; the
// caller is expected to log and drop on error, not tear down the session.
func (c *Codec) Decode(datagram []byte) (Packet, error) {
	if len(datagram) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	if len(datagram) > c.MaxPacketSize {
		return Packet{}, &ErrOversizePacket{Size: len(datagram), Max: c.MaxPacketSize}
	}
	return Packet{Header: Header(datagram[0]), Payload: datagram[1:]}, nil
}
