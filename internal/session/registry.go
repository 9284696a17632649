package session

import (
	"context"
	"crypto/subtle"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lanternops/avgateway/internal/transport"
)

// Registry is the process-wide map from connection identity to live
// ClientSession. It guarantees one session per peer and tears sessions
// down on disconnect.
type Registry struct {
	cfg     Config
	factory transport.PeerTransportFactory

	mu       sync.RWMutex
	sessions map[string]*ClientSession
	nextID   int
}

func NewRegistry(cfg Config, factory transport.PeerTransportFactory) *Registry {
	return &Registry{
		cfg:      cfg,
		factory:  factory,
		sessions: make(map[string]*ClientSession),
	}
}

// Accept authenticates an inbound signaling connection and, on success,
// constructs and registers a ClientSession, then drives its signaling
// loop until it closes. On auth failure the connection is closed with
// code 1002 and no session is created. Intended as the onConnect
// callback passed to transport.NewSignalingServer.
func (r *Registry) Accept(ctx context.Context, conn transport.SignalingConn, authKey string) {
	if !r.authenticate(authKey) {
		_ = conn.CloseWithCode(1002, "auth rejected")
		return
	}

	id := r.newID()
	cs := New(id, r.cfg, r.factory, conn)

	r.mu.Lock()
	r.sessions[id] = cs
	r.mu.Unlock()

	defer r.remove(id)
	cs.Run(ctx)
}

// authenticate compares authKey against the configured key in constant
// time. An empty configured key accepts any (including missing) client
// key.
func (r *Registry) authenticate(authKey string) bool {
	if r.cfg.AuthKey == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.cfg.AuthKey), []byte(authKey)) == 1
}

func (r *Registry) newID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return idFor(r.nextID)
}

func idFor(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{alphabet[n%len(alphabet)]}, buf...)
		n /= len(alphabet)
	}
	return "sess-" + string(buf)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of live sessions, for tests and stats.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every live session concurrently.
// ClientSession.Close never returns an error, so the errgroup only
// provides the wait barrier.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*ClientSession, 0, len(r.sessions))
	for _, cs := range r.sessions {
		sessions = append(sessions, cs)
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, cs := range sessions {
		cs := cs
		g.Go(func() error {
			cs.Close()
			return nil
		})
	}
	_ = g.Wait()
}
