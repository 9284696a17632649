package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Keepalive and write-deadline tuning for the signaling socket.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SignalingServer accepts inbound signaling connections over HTTP
// upgrade.
type SignalingServer struct {
	handler func(ctx context.Context, conn SignalingConn, authKey string)
}

// NewSignalingServer constructs a server whose onConnect callback is
// invoked once per accepted connection, receiving the authKey query
// parameter for the caller to validate.
func NewSignalingServer(onConnect func(ctx context.Context, conn SignalingConn, authKey string)) *SignalingServer {
	return &SignalingServer{handler: onConnect}
}

// Handler returns an http.Handler wrapping the upgrade endpoint with
// otelhttp instrumentation, exercising the otel/contrib dependency for
// request-level spans around the signaling accept path.
func (s *SignalingServer) Handler() http.Handler {
	return otelhttp.NewHandler(http.HandlerFunc(s.serveHTTP), "signaling")
}

func (s *SignalingServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("signaling upgrade failed", "error", err)
		return
	}

	wsConn := &wsSignalingConn{conn: conn}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go wsConn.pingLoop(ctx)

	s.handler(ctx, wsConn, r.URL.Query().Get("authKey"))
}

// wsSignalingConn adapts a gorilla/websocket server connection to
// SignalingConn.
type wsSignalingConn struct {
	conn *websocket.Conn
}

func (c *wsSignalingConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsSignalingConn) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsSignalingConn) CloseWithCode(code int, reason string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	return c.conn.Close()
}

func (c *wsSignalingConn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

func (c *wsSignalingConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
