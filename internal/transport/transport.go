// Package transport defines the two abstract transports the core
// consumes, PeerTransport (the WebRTC data channel) and
// SignalingTransport (the setup-only reliable message channel), and
// provides concrete adapters over pion/webrtc and gorilla/websocket.
package transport

import "context"

// PeerTransport is the ordered, message-oriented binary transport
// between a browser peer and the server. The core never touches SDP,
// ICE, or DTLS/SCTP directly; it only sends/receives framed packets and
// learns of connection lifecycle through callbacks.
type PeerTransport interface {
	// Send writes one binary message (already framed by the codec) to
	// the data channel.
	Send(data []byte) error

	// OnMessage registers the callback invoked for each inbound binary
	// message. Only one callback is supported; a later call replaces
	// an earlier one.
	OnMessage(func(data []byte))

	// OnClose registers the callback invoked once when the transport
	// closes, whatever the cause (remote close, ICE failure, explicit
	// Close).
	OnClose(func())

	// Close tears down the peer connection and its data channel.
	Close() error

	// AddICECandidate hands a trickled remote candidate to the
	// underlying connection. Called only during setup.
	AddICECandidate(candidate ICECandidate) error
}

// SDPDescription mirrors the wire `{sdp, type}` shape carried in the
// signaling offer/answer messages.
type SDPDescription struct {
	SDP  string
	Type string
}

// ICECandidate mirrors the wire `{candidate, mid}` shape.
type ICECandidate struct {
	Candidate string
	SDPMid    string
}

// PeerTransportFactory negotiates a new PeerTransport from an inbound
// offer and returns the SDP answer to relay back over signaling.
type PeerTransportFactory interface {
	// Negotiate constructs a PeerTransport, sets the remote description
	// from offer, creates and sets the local answer, and returns it.
	// ICE candidates gathered after the initial answer are delivered
	// through onLocalICECandidate as they trickle in.
	Negotiate(ctx context.Context, offer SDPDescription, iceServers []string, onLocalICECandidate func(ICECandidate)) (PeerTransport, SDPDescription, error)
}

// SignalingConn is one accepted signaling connection: the reliable
// text-message channel used only during setup (offer/answer/ICE
// trickle, plus server-to-client stats pushes).
type SignalingConn interface {
	// ReadMessage blocks for the next inbound text message.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text message to the peer.
	WriteMessage(data []byte) error

	// CloseWithCode closes the connection with the given close code
	// (e.g. 1002 for auth failure).
	CloseWithCode(code int, reason string) error

	// Close closes the connection with the normal closure code.
	Close() error
}
