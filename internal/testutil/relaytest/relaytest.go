// Package relaytest runs an in-process websocket relay for client tests.
package relaytest

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/danmuck/volsync/internal/protocol"
)

const waitTimeout = 5 * time.Second

type Option func(*Relay)

// WithStatus makes every handshake fail with the given HTTP status.
func WithStatus(status int) Option {
	return func(r *Relay) { r.status = status }
}

// WithTLS serves wss using cfg.
func WithTLS(cfg *tls.Config) Option {
	return func(r *Relay) { r.tlsCfg = cfg }
}

// Relay accepts client sessions and exposes them as Peers.
type Relay struct {
	URL string

	server *httptest.Server
	status int
	tlsCfg *tls.Config

	mu       sync.Mutex
	peers    []*Peer
	attempts int
	accepted chan *Peer
}

func New(t testing.TB, opts ...Option) *Relay {
	t.Helper()
	r := &Relay{accepted: make(chan *Peer, 16)}
	for _, opt := range opts {
		opt(r)
	}

	r.server = httptest.NewUnstartedServer(http.HandlerFunc(r.serveHTTP))
	if r.tlsCfg != nil {
		r.server.TLS = r.tlsCfg
		r.server.StartTLS()
		r.URL = "wss" + strings.TrimPrefix(r.server.URL, "https") + "/ws"
	} else {
		r.server.Start()
		r.URL = "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws"
	}

	t.Cleanup(r.Close)
	return r
}

// Attempts counts handshake requests, rejected ones included.
func (r *Relay) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Accept waits for the next client session.
func (r *Relay) Accept(t testing.TB) *Peer {
	t.Helper()
	select {
	case p := <-r.accepted:
		return p
	case <-time.After(waitTimeout):
		t.Fatalf("relaytest: no client connected within %s", waitTimeout)
		return nil
	}
}

func (r *Relay) Close() {
	r.mu.Lock()
	peers := append([]*Peer(nil), r.peers...)
	r.mu.Unlock()
	for _, p := range peers {
		_ = p.conn.CloseNow()
	}
	r.server.Close()
}

func (r *Relay) serveHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.attempts++
	status := r.status
	r.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		return
	}
	p := &Peer{
		conn:   conn,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	r.mu.Lock()
	r.peers = append(r.peers, p)
	r.mu.Unlock()
	r.accepted <- p

	defer close(p.done)
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		p.frames <- data
	}
}

// Peer is the relay side of one client session.
type Peer struct {
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}
}

// Next returns the next frame the client sent.
func (p *Peer) Next(t testing.TB) []byte {
	t.Helper()
	select {
	case data := <-p.frames:
		return data
	case <-time.After(waitTimeout):
		t.Fatalf("relaytest: no frame within %s", waitTimeout)
		return nil
	}
}

// NextRequest decodes the next client frame.
func (p *Peer) NextRequest(t testing.TB) protocol.Request {
	t.Helper()
	req, err := protocol.DecodeRequest(p.Next(t))
	if err != nil {
		t.Fatalf("relaytest: decode request: %v", err)
	}
	return req
}

// Send writes a raw text frame to the client.
func (p *Peer) Send(t testing.TB, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := p.conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("relaytest: send: %v", err)
	}
}

// SendEvent encodes and writes ev to the client.
func (p *Peer) SendEvent(t testing.TB, ev protocol.Event) {
	t.Helper()
	payload, err := protocol.EncodeEvent(ev)
	if err != nil {
		t.Fatalf("relaytest: encode event: %v", err)
	}
	p.Send(t, string(payload))
}

// Drop closes the session from the relay side.
func (p *Peer) Drop(code websocket.StatusCode, reason string) {
	_ = p.conn.Close(code, reason)
}

// Done is closed once the session's read loop has ended.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}
